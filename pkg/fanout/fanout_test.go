package fanout_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/absmach/cohort/pkg/fanout"
	"github.com/stretchr/testify/assert"
)

func TestRunKeepsOrderAndAllOutcomes(t *testing.T) {
	t.Parallel()

	items := []int{1, 2, 3, 4, 5}
	out := fanout.Run(context.Background(), 2, items, func(_ context.Context, n int) error {
		if n%2 == 0 {
			return errors.New("even")
		}

		return nil
	})

	assert.Len(t, out, len(items))
	for i, err := range out {
		if items[i]%2 == 0 {
			assert.Error(t, err)
		} else {
			assert.NoError(t, err)
		}
	}
}

func TestRunBoundsConcurrency(t *testing.T) {
	t.Parallel()

	var inFlight, peak atomic.Int32
	fanout.Run(context.Background(), 3, make([]struct{}, 12), func(context.Context, struct{}) struct{} {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)

		return struct{}{}
	})

	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestSlowLegDoesNotDelayOthers(t *testing.T) {
	t.Parallel()

	var fastDone atomic.Int64
	start := time.Now()
	fanout.Run(context.Background(), 0, []time.Duration{200 * time.Millisecond, 0, 0}, func(_ context.Context, d time.Duration) struct{} {
		time.Sleep(d)
		if d == 0 {
			fastDone.Store(int64(time.Since(start)))
		}

		return struct{}{}
	})

	assert.Less(t, time.Duration(fastDone.Load()), 150*time.Millisecond)
}
