package session

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Purger is implemented by stores that age out entries, such as SQLiteStore.
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// Sweeper runs a scheduled purge of expired sessions. Store-level expiry is
// a backend policy; the sweeper only reclaims rows the backend already
// considers absent.
type Sweeper struct {
	cron   *cron.Cron
	purger Purger
	logger zerolog.Logger
}

// NewSweeper creates a sweeper on the given cron schedule (e.g. "@hourly").
func NewSweeper(purger Purger, schedule string, logger zerolog.Logger) (*Sweeper, error) {
	c := cron.New()
	s := &Sweeper{
		cron:   c,
		purger: purger,
		logger: logger,
	}

	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if _, err := purger.PurgeExpired(ctx); err != nil {
			logger.Warn().Err(err).Msg("Session purge failed")
		}
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Start begins scheduled sweeping.
func (s *Sweeper) Start() {
	s.cron.Start()
	s.logger.Info().Msg("Session sweeper started")
}

// Stop halts the schedule and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info().Msg("Session sweeper stopped")
}
