package testutil

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoll(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	err := Poll(context.Background(), func() bool { return calls.Add(1) >= 3 }, 5*time.Second, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestPoll_Timeout(t *testing.T) {
	t.Parallel()
	err := Poll(context.Background(), func() bool { return false }, 30*time.Millisecond, 5*time.Millisecond)
	assert.ErrorContains(t, err, "not met within")
}

func TestPoll_Cancelled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Poll(ctx, func() bool { return false }, 5*time.Second, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWaitFor_ReturnsLastSeen(t *testing.T) {
	t.Parallel()
	n := 0
	got, err := WaitFor(context.Background(), func() int { n++; return n }, func(v int) bool { return v == 4 }, 5*time.Second, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 4, got)

	got, err = WaitFor(context.Background(), func() int { return 7 }, func(int) bool { return false }, 20*time.Millisecond, 5*time.Millisecond)
	assert.Error(t, err)
	assert.Equal(t, 7, got)
}

func TestRandomValue_Deterministic(t *testing.T) {
	t.Parallel()
	a := RandomValue(NewRand(1), 3)
	b := RandomValue(NewRand(1), 3)
	assert.Equal(t, a.String(), b.String())
}
