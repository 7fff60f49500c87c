package settlement

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/zametkikostik/tonhub-exchange/pkg/store"
)

// Watcher polls pending deposits and feeds confirmation counts into the
// settlement service. The development implementation just advances each
// pending deposit by one confirmation per cycle; a production deployment
// replaces the source with a real chain indexer.
type Watcher struct {
	backend store.Backend
	service *Service
	logger  zerolog.Logger
}

// NewWatcher creates a watcher over the given backend and service.
func NewWatcher(backend store.Backend, service *Service, logger zerolog.Logger) *Watcher {
	return &Watcher{
		backend: backend,
		service: service,
		logger:  logger.With().Str("component", "deposit_watcher").Logger(),
	}
}

// Poll runs one watch cycle.
func (w *Watcher) Poll(ctx context.Context) error {
	pending := w.backend.PendingDeposits()
	for _, tx := range pending {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := w.service.ApplyConfirmation(ctx, tx.ID(), tx.Confirmations()+1); err != nil {
			w.logger.Error().Err(err).Str("tx_id", tx.ID()).Msg("failed to apply confirmation")
		}
	}
	if len(pending) > 0 {
		w.logger.Debug().Int("pending", len(pending)).Msg("watch cycle")
	}
	return nil
}

// Task returns a scheduler task running Poll.
func (w *Watcher) Task() func(context.Context) error {
	return w.Poll
}
