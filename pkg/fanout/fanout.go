// Package fanout runs independent calls concurrently and always yields one
// outcome per input, in input order.
package fanout

import (
	"context"

	"golang.org/x/sync/errgroup"
)

const DefaultLimit = 16

// Run calls fn for each item with at most limit calls in flight. fn reports
// failures through its result, so one leg never cancels the others.
func Run[T, R any](ctx context.Context, limit int, items []T, fn func(context.Context, T) R) []R {
	if limit <= 0 {
		limit = DefaultLimit
	}
	out := make([]R, len(items))

	var g errgroup.Group
	g.SetLimit(limit)
	for i, item := range items {
		g.Go(func() error {
			out[i] = fn(ctx, item)

			return nil
		})
	}
	_ = g.Wait()

	return out
}
