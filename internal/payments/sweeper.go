package payments

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Sweeper periodically flags held escrows that have passed their deadline.
// It only marks them for operator visibility; expiry itself is enforced at
// confirmation time, so a flagged trade still sits in pending_payment until
// the next confirm attempt is rejected.
type Sweeper struct {
	db       *Database
	interval time.Duration
}

func NewSweeper(db *Database, interval time.Duration) *Sweeper {
	return &Sweeper{
		db:       db,
		interval: interval,
	}
}

// Start begins the expiry sweep loop
func (s *Sweeper) Start(ctx context.Context) {
	logger := log.With().Str("component", "escrow_sweeper").Logger()
	logger.Info().Dur("interval", s.interval).Msg("starting escrow expiry sweeper")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down escrow expiry sweeper")
			return
		case <-ticker.C:
			if err := s.sweep(); err != nil {
				logger.Error().Err(err).Msg("escrow expiry sweep failed")
			}
		}
	}
}

func (s *Sweeper) sweep() error {
	logger := log.With().Str("component", "escrow_sweeper").Logger()

	escrows, err := s.db.GetExpiredHeldEscrows(time.Now())
	if err != nil {
		return err
	}
	if len(escrows) == 0 {
		return nil
	}

	logger.Info().Int("expired_count", len(escrows)).Msg("flagging expired escrows")

	for _, escrow := range escrows {
		if err := s.db.FlagEscrowExpired(escrow.EscrowID); err != nil {
			logger.Error().Err(err).
				Str("escrow_id", escrow.EscrowID).
				Msg("failed to flag expired escrow")
			continue
		}
		logger.Warn().
			Str("escrow_id", escrow.EscrowID).
			Str("trade_id", escrow.TradeID).
			Time("expired_at", escrow.ExpiresAt).
			Msg("escrow expired without payment confirmation")
	}

	return nil
}

// GetDB exposes the payments database for the sweeper wiring in main
func (s *Service) GetDB() *Database {
	return s.db
}
