package session

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingPurger struct {
	calls atomic.Int64
}

func (p *countingPurger) PurgeExpired(context.Context) (int64, error) {
	p.calls.Add(1)
	return 0, nil
}

func TestSweeperRunsOnSchedule(t *testing.T) {
	purger := &countingPurger{}
	sweeper, err := NewSweeper(purger, "@every 50ms", zerolog.Nop())
	require.NoError(t, err)

	sweeper.Start()
	defer sweeper.Stop()

	assert.Eventually(t, func() bool {
		return purger.calls.Load() >= 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSweeperRejectsBadSchedule(t *testing.T) {
	_, err := NewSweeper(&countingPurger{}, "not a schedule", zerolog.Nop())
	assert.Error(t, err)
}
