package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPanicsOnZeroInterval(t *testing.T) {
	assert.Panics(t, func() { New(Options{}, zerolog.Nop()) })
}

func TestNextTickAlignsToLocalMidnight(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Jerusalem")
	require.NoError(t, err)

	s := New(Options{Interval: 24 * time.Hour, AlignToStart: true, Location: loc}, zerolog.Nop())
	now := time.Date(2024, 3, 5, 14, 30, 0, 0, loc)

	next := s.nextTick(now)
	assert.Equal(t, time.Date(2024, 3, 6, 0, 0, 0, 0, loc), next)
	assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, loc), s.bucketStart(now))
}

func TestAdvanceKeepsWallClockAcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Jerusalem")
	require.NoError(t, err)

	s := New(Options{Interval: 24 * time.Hour, AlignToStart: true, Location: loc}, zerolog.Nop())
	// Israel switched to summer time on 2024-03-29.
	midnight := time.Date(2024, 3, 28, 0, 0, 0, 0, loc)
	assert.Equal(t, time.Date(2024, 3, 29, 0, 0, 0, 0, loc), s.advance(midnight))
	assert.Equal(t, time.Date(2024, 3, 30, 0, 0, 0, 0, loc), s.advance(s.advance(midnight)))
}

func TestNextTickSubDaily(t *testing.T) {
	s := New(Options{Interval: time.Hour, AlignToStart: true}, zerolog.Nop())
	now := time.Date(2024, 3, 5, 14, 30, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 3, 5, 15, 0, 0, 0, time.UTC), s.nextTick(now))

	unaligned := New(Options{Interval: time.Hour}, zerolog.Nop())
	assert.Equal(t, now.Add(time.Hour), unaligned.nextTick(now))
	assert.Equal(t, now, unaligned.bucketStart(now))
}

func TestRunOnStartFiresAndStopsOnCancel(t *testing.T) {
	s := New(Options{Interval: time.Hour, AlignToStart: true, RunOnStart: true}, zerolog.Nop())
	fixed := time.Date(2024, 3, 5, 14, 30, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	ctx, cancel := context.WithCancel(context.Background())
	var (
		mu      sync.Mutex
		buckets []time.Time
	)
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(_ context.Context, bucket time.Time) error {
			mu.Lock()
			buckets = append(buckets, bucket)
			mu.Unlock()
			cancel()
			return nil
		})
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, buckets, 1)
	assert.Equal(t, time.Date(2024, 3, 5, 14, 0, 0, 0, time.UTC), buckets[0])
}
