package core

import (
	"encoding/json"
	"time"

	"github.com/nikolaydubina/fpdecimal"
)

// TxType represents the direction of an external transfer
type TxType string

// Transaction types
const (
	TxDeposit    TxType = "DEPOSIT"
	TxWithdrawal TxType = "WITHDRAWAL"
)

// TxStatus represents the lifecycle state of a transaction
type TxStatus string

// Transaction statuses
const (
	TxPending    TxStatus = "PENDING"
	TxProcessing TxStatus = "PROCESSING"
	TxCompleted  TxStatus = "COMPLETED"
	TxFailed     TxStatus = "FAILED"
	TxCancelled  TxStatus = "CANCELLED"
)

// Terminal reports whether the status is absorbing.
func (s TxStatus) Terminal() bool {
	return s == TxCompleted || s == TxFailed || s == TxCancelled
}

// Transaction tracks an external deposit or withdrawal against the ledger.
// A deposit credits the ledger exactly once, on the pending -> completed
// transition; a withdrawal debits at creation, so completion is a no-op
// and failure triggers a compensating credit.
type Transaction struct {
	id            string
	userID        int64
	txType        TxType
	status        TxStatus
	currency      string
	amount        fpdecimal.Decimal
	fee           fpdecimal.Decimal
	confirmations int
	requiredConf  int
	toAddress     string
	txHash        string
	createdAt     time.Time
	completedAt   *time.Time
}

// NewDeposit creates a pending deposit awaiting chain confirmations.
func NewDeposit(id string, userID int64, currency string, amount fpdecimal.Decimal, txHash string, requiredConf int, now time.Time) (*Transaction, error) {
	if amount.LessThanOrEqual(fpdecimal.Zero) {
		return nil, ErrInvalidAmount
	}
	if requiredConf < 1 {
		requiredConf = 1
	}

	return &Transaction{
		id:           id,
		userID:       userID,
		txType:       TxDeposit,
		status:       TxPending,
		currency:     currency,
		amount:       amount,
		fee:          fpdecimal.Zero,
		requiredConf: requiredConf,
		txHash:       txHash,
		createdAt:    now,
	}, nil
}

// NewWithdrawal creates a pending withdrawal. The caller debits the ledger
// before persisting it.
func NewWithdrawal(id string, userID int64, currency string, amount, fee fpdecimal.Decimal, toAddress string, now time.Time) (*Transaction, error) {
	if amount.LessThanOrEqual(fpdecimal.Zero) {
		return nil, ErrInvalidAmount
	}

	return &Transaction{
		id:           id,
		userID:       userID,
		txType:       TxWithdrawal,
		status:       TxPending,
		currency:     currency,
		amount:       amount,
		fee:          fee,
		requiredConf: 1,
		toAddress:    toAddress,
		createdAt:    now,
	}, nil
}

// ID returns the transaction id
func (t *Transaction) ID() string { return t.id }

// UserID returns the owning user's id
func (t *Transaction) UserID() int64 { return t.userID }

// Type returns the transaction type
func (t *Transaction) Type() TxType { return t.txType }

// Status returns the lifecycle status
func (t *Transaction) Status() TxStatus { return t.status }

// Currency returns the transferred currency
func (t *Transaction) Currency() string { return t.currency }

// Amount returns the transferred amount, excluding fee.
func (t *Transaction) Amount() fpdecimal.Decimal { return t.amount }

// Fee returns the fee charged on top of the amount.
func (t *Transaction) Fee() fpdecimal.Decimal { return t.fee }

// Confirmations returns the observed chain confirmation count
func (t *Transaction) Confirmations() int { return t.confirmations }

// RequiredConfirmations returns the completion threshold
func (t *Transaction) RequiredConfirmations() int { return t.requiredConf }

// ToAddress returns the destination address, for withdrawals.
func (t *Transaction) ToAddress() string { return t.toAddress }

// TxHash returns the on-chain transaction hash, if known.
func (t *Transaction) TxHash() string { return t.txHash }

// CreatedAt returns the creation time
func (t *Transaction) CreatedAt() time.Time { return t.createdAt }

// CompletedAt returns the settlement time, if completed.
func (t *Transaction) CompletedAt() *time.Time { return t.completedAt }

// SetConfirmations records the observed confirmation count. The count
// never decreases; stale updates are ignored.
func (t *Transaction) SetConfirmations(n int) {
	if n > t.confirmations {
		t.confirmations = n
	}
}

// Complete flips a non-terminal transaction to COMPLETED.
func (t *Transaction) Complete(now time.Time) error {
	if t.status.Terminal() {
		return ErrTxTerminal
	}
	t.status = TxCompleted
	ts := now
	t.completedAt = &ts
	return nil
}

// Fail flips a non-terminal transaction to FAILED.
func (t *Transaction) Fail() error {
	if t.status.Terminal() {
		return ErrTxTerminal
	}
	t.status = TxFailed
	return nil
}

// Clone returns a copy detached from the store's instance.
func (t *Transaction) Clone() *Transaction {
	c := *t
	if t.completedAt != nil {
		ts := *t.completedAt
		c.completedAt = &ts
	}
	return &c
}

// MarshalJSON implements custom JSON marshaling for Transaction
func (t *Transaction) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID            string     `json:"txId"`
		UserID        int64      `json:"userId"`
		Type          TxType     `json:"type"`
		Status        TxStatus   `json:"status"`
		Currency      string     `json:"currency"`
		Amount        string     `json:"amount"`
		Fee           string     `json:"fee"`
		Confirmations int        `json:"confirmations"`
		RequiredConf  int        `json:"requiredConfirmations"`
		ToAddress     string     `json:"toAddress,omitempty"`
		TxHash        string     `json:"txHash,omitempty"`
		CreatedAt     time.Time  `json:"createdAt"`
		CompletedAt   *time.Time `json:"completedAt,omitempty"`
	}{
		ID:            t.id,
		UserID:        t.userID,
		Type:          t.txType,
		Status:        t.status,
		Currency:      t.currency,
		Amount:        t.amount.String(),
		Fee:           t.fee.String(),
		Confirmations: t.confirmations,
		RequiredConf:  t.requiredConf,
		ToAddress:     t.toAddress,
		TxHash:        t.txHash,
		CreatedAt:     t.createdAt,
		CompletedAt:   t.completedAt,
	})
}

// UnmarshalJSON implements custom JSON unmarshaling for Transaction
func (t *Transaction) UnmarshalJSON(data []byte) error {
	var tj struct {
		ID            string     `json:"txId"`
		UserID        int64      `json:"userId"`
		Type          TxType     `json:"type"`
		Status        TxStatus   `json:"status"`
		Currency      string     `json:"currency"`
		Amount        string     `json:"amount"`
		Fee           string     `json:"fee"`
		Confirmations int        `json:"confirmations"`
		RequiredConf  int        `json:"requiredConfirmations"`
		ToAddress     string     `json:"toAddress,omitempty"`
		TxHash        string     `json:"txHash,omitempty"`
		CreatedAt     time.Time  `json:"createdAt"`
		CompletedAt   *time.Time `json:"completedAt,omitempty"`
	}
	if err := json.Unmarshal(data, &tj); err != nil {
		return err
	}

	t.id = tj.ID
	t.userID = tj.UserID
	t.txType = tj.Type
	t.status = tj.Status
	t.currency = tj.Currency
	t.amount = parseDecimal(tj.Amount)
	t.fee = parseDecimal(tj.Fee)
	t.confirmations = tj.Confirmations
	t.requiredConf = tj.RequiredConf
	t.toAddress = tj.ToAddress
	t.txHash = tj.TxHash
	t.createdAt = tj.CreatedAt
	t.completedAt = tj.CompletedAt
	return nil
}
