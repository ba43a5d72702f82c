package app

import (
	"context"
	"iter"
)

// paginate turns a keyset page fetcher into a lazy sequence. Pages are
// fetched only as the consumer advances, and every range over the returned
// sequence starts again from the first page.
func paginate[T any](ctx context.Context, pageSize int, fetch func(ctx context.Context, after *Cursor, limit int) ([]T, error), cursorOf func(T) Cursor, keep func(T) bool) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var after *Cursor
		for {
			if err := ctx.Err(); err != nil {
				var zero T
				yield(zero, err)
				return
			}
			page, err := fetch(ctx, after, pageSize)
			if err != nil {
				var zero T
				yield(zero, err)
				return
			}
			for _, item := range page {
				if keep != nil && !keep(item) {
					continue
				}
				if !yield(item, nil) {
					return
				}
			}
			if len(page) < pageSize {
				return
			}
			c := cursorOf(page[len(page)-1])
			after = &c
		}
	}
}

// Collect drains seq, skipping offset items and stopping after limit items
// (limit <= 0 means no limit).
func Collect[T any](seq iter.Seq2[T, error], offset, limit int) ([]T, error) {
	out := []T{}
	for item, err := range seq {
		if err != nil {
			return nil, err
		}
		if offset > 0 {
			offset--
			continue
		}
		out = append(out, item)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
