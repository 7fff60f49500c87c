package settlement

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nikolaydubina/fpdecimal"
	"github.com/rs/zerolog"

	"github.com/zametkikostik/tonhub-exchange/pkg/core"
	"github.com/zametkikostik/tonhub-exchange/pkg/ledger"
	"github.com/zametkikostik/tonhub-exchange/pkg/messaging"
	"github.com/zametkikostik/tonhub-exchange/pkg/store"
)

// Config tunes deposit and withdrawal handling.
type Config struct {
	// RequiredConfirmations a deposit needs before it credits.
	RequiredConfirmations int
	// WithdrawalFee as a fraction of the withdrawn amount.
	WithdrawalFee fpdecimal.Decimal
	// DailyWithdrawalLimit caps amount plus fee per user per currency
	// over a rolling 24 hours. Zero disables the cap.
	DailyWithdrawalLimit fpdecimal.Decimal
}

// Service settles deposits and withdrawals against the ledger. A
// deposit credits exactly once, when its confirmation count first
// reaches the required threshold; a withdrawal debits amount plus fee
// up front and refunds on failure.
type Service struct {
	backend    store.Backend
	ledger     *ledger.Ledger
	sender     messaging.EventSender
	currencies map[string]bool
	cfg        Config
	logger     zerolog.Logger
	now        func() time.Time

	// mu serializes transaction state transitions.
	mu sync.Mutex
}

// New creates a settlement service restricted to the given currencies.
func New(backend store.Backend, ldgr *ledger.Ledger, sender messaging.EventSender, currencies []string, cfg Config, logger zerolog.Logger) *Service {
	set := make(map[string]bool, len(currencies))
	for _, c := range currencies {
		set[c] = true
	}
	if cfg.RequiredConfirmations < 1 {
		cfg.RequiredConfirmations = 1
	}
	return &Service{
		backend:    backend,
		ledger:     ldgr,
		sender:     sender,
		currencies: set,
		cfg:        cfg,
		logger:     logger.With().Str("component", "settlement").Logger(),
		now:        time.Now,
	}
}

// SetClock overrides the service's clock. Tests only.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// RecordDeposit registers an on-chain deposit observed at zero or more
// confirmations. The balance is not touched until the deposit settles.
func (s *Service) RecordDeposit(ctx context.Context, userID int64, currency string, amount fpdecimal.Decimal, txHash string) (*core.Transaction, error) {
	if !s.currencies[currency] {
		return nil, core.ErrUnsupportedPair
	}
	tx, err := core.NewDeposit(uuid.NewString(), userID, currency, amount, txHash, s.cfg.RequiredConfirmations, s.now())
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.backend.InsertTransaction(tx); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("tx_id", tx.ID()).
		Int64("user_id", userID).
		Str("currency", currency).
		Str("amount", amount.String()).
		Str("tx_hash", txHash).
		Msg("deposit recorded")
	s.publish(ctx, messaging.NewTxEvent(tx, s.now()))
	return tx.Clone(), nil
}

// ApplyConfirmation advances a deposit's confirmation count. Crossing
// the required threshold settles it: the status flips to COMPLETED and
// the amount credits, exactly once no matter how often the same height
// is reported.
func (s *Service) ApplyConfirmation(ctx context.Context, txID string, confirmations int) (*core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := s.backend.Transaction(txID)
	if tx == nil || tx.Type() != core.TxDeposit {
		return nil, core.ErrTxNotFound
	}
	if tx.Status().Terminal() {
		return tx.Clone(), nil
	}

	tx.SetConfirmations(confirmations)
	if tx.Confirmations() < tx.RequiredConfirmations() {
		if err := s.backend.UpdateTransaction(tx); err != nil {
			return nil, err
		}
		return tx.Clone(), nil
	}

	if err := tx.Complete(s.now()); err != nil {
		return nil, err
	}
	if err := s.ledger.Credit(tx.UserID(), tx.Currency(), tx.Amount()); err != nil {
		return nil, err
	}
	if err := s.backend.UpdateTransaction(tx); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("tx_id", tx.ID()).
		Int64("user_id", tx.UserID()).
		Str("amount", tx.Amount().String()).
		Str("currency", tx.Currency()).
		Msg("deposit settled")
	now := s.now()
	s.publish(ctx, messaging.NewTxEvent(tx, now))
	s.publish(ctx, messaging.NewBalanceEvent(s.ledger.Balance(tx.UserID(), tx.Currency()), now))
	return tx.Clone(), nil
}

// RequestWithdrawal debits amount plus fee from the user's available
// balance and records a pending withdrawal. The debit happens at
// request time so the funds cannot be spent while the withdrawal is in
// flight.
func (s *Service) RequestWithdrawal(ctx context.Context, userID int64, currency string, amount fpdecimal.Decimal, toAddress string) (*core.Transaction, error) {
	if !s.currencies[currency] {
		return nil, core.ErrUnsupportedPair
	}

	fee := amount.Mul(s.cfg.WithdrawalFee)
	tx, err := core.NewWithdrawal(uuid.NewString(), userID, currency, amount, fee, toAddress, s.now())
	if err != nil {
		return nil, err
	}
	gross := amount.Add(fee)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.DailyWithdrawalLimit.GreaterThan(fpdecimal.Zero) {
		since := s.now().Add(-24 * time.Hour)
		used := s.backend.WithdrawnSince(userID, currency, since)
		if used.Add(gross).GreaterThan(s.cfg.DailyWithdrawalLimit) {
			return nil, core.ErrWithdrawalLimit
		}
	}

	if err := s.ledger.Debit(userID, currency, gross); err != nil {
		return nil, err
	}
	if err := s.backend.InsertTransaction(tx); err != nil {
		if credErr := s.ledger.Credit(userID, currency, gross); credErr != nil {
			s.logger.Error().Err(credErr).Str("tx_id", tx.ID()).Msg("failed to roll back withdrawal debit")
		}
		return nil, err
	}

	s.logger.Info().
		Str("tx_id", tx.ID()).
		Int64("user_id", userID).
		Str("currency", currency).
		Str("amount", amount.String()).
		Str("fee", fee.String()).
		Str("to_address", toAddress).
		Msg("withdrawal requested")
	now := s.now()
	s.publish(ctx, messaging.NewTxEvent(tx, now))
	s.publish(ctx, messaging.NewBalanceEvent(s.ledger.Balance(userID, currency), now))
	return tx.Clone(), nil
}

// CompleteWithdrawal marks a pending withdrawal as settled on chain.
// The funds already left the ledger at request time.
func (s *Service) CompleteWithdrawal(ctx context.Context, txID string) (*core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := s.backend.Transaction(txID)
	if tx == nil || tx.Type() != core.TxWithdrawal {
		return nil, core.ErrTxNotFound
	}
	if err := tx.Complete(s.now()); err != nil {
		return nil, err
	}
	if err := s.backend.UpdateTransaction(tx); err != nil {
		return nil, err
	}

	s.logger.Info().Str("tx_id", txID).Msg("withdrawal completed")
	s.publish(ctx, messaging.NewTxEvent(tx, s.now()))
	return tx.Clone(), nil
}

// FailWithdrawal flips a pending withdrawal to FAILED and credits
// amount plus fee back to the user.
func (s *Service) FailWithdrawal(ctx context.Context, txID string) (*core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := s.backend.Transaction(txID)
	if tx == nil || tx.Type() != core.TxWithdrawal {
		return nil, core.ErrTxNotFound
	}
	if err := tx.Fail(); err != nil {
		return nil, err
	}
	gross := tx.Amount().Add(tx.Fee())
	if err := s.ledger.Credit(tx.UserID(), tx.Currency(), gross); err != nil {
		return nil, err
	}
	if err := s.backend.UpdateTransaction(tx); err != nil {
		return nil, err
	}

	s.logger.Warn().
		Str("tx_id", txID).
		Str("refunded", gross.String()).
		Msg("withdrawal failed, funds returned")
	now := s.now()
	s.publish(ctx, messaging.NewTxEvent(tx, now))
	s.publish(ctx, messaging.NewBalanceEvent(s.ledger.Balance(tx.UserID(), tx.Currency()), now))
	return tx.Clone(), nil
}

// Transaction returns a detached copy of a transaction owned by userID.
func (s *Service) Transaction(txID string, userID int64) (*core.Transaction, error) {
	tx := s.backend.Transaction(txID)
	if tx == nil || tx.UserID() != userID {
		return nil, core.ErrTxNotFound
	}
	return tx.Clone(), nil
}

// Transactions returns detached copies matching the query.
func (s *Service) Transactions(q store.TransactionQuery) []*core.Transaction {
	return s.backend.Transactions(q)
}

func (s *Service) publish(ctx context.Context, event *messaging.Event) {
	if err := s.sender.Send(ctx, event); err != nil {
		s.logger.Warn().Err(err).Str("type", string(event.Type)).Msg("failed to publish event")
	}
}
