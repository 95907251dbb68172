package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

type countingTrigger struct {
	calls atomic.Int32
}

func (c *countingTrigger) Trigger() bool {
	c.calls.Inc()
	return true
}

func TestSchedulerDisabled(t *testing.T) {
	target := &countingTrigger{}
	s := New(target, 0, nil)
	require.NoError(t, s.Start())
	defer s.Stop()

	assert.Equal(t, 0, s.Jobs())
	assert.Equal(t, int32(0), target.calls.Load())
}

func TestSchedulerTriggersPeriodically(t *testing.T) {
	target := &countingTrigger{}
	s := New(target, 50*time.Millisecond, nil)
	require.NoError(t, s.Start())
	defer s.Stop()

	assert.Equal(t, 1, s.Jobs())
	require.Eventually(t, func() bool {
		return target.calls.Load() >= 2
	}, 3*time.Second, 10*time.Millisecond)
}
