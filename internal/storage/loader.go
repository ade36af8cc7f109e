package storage

import (
	"context"
	"fmt"
)

// FlushFn writes one batch. It is called with batches in arrival order,
// never concurrently.
type FlushFn[T any] func(ctx context.Context, seq int, batch []T) error

// LoadBatches drains in, groups items into batches of batchSize and
// flushes each batch in order. The final partial batch is flushed when
// in closes. The first flush error stops the loader.
func LoadBatches[T any](ctx context.Context, in <-chan T, batchSize int, flush FlushFn[T]) (int, error) {
	if batchSize <= 0 {
		return 0, fmt.Errorf("batch size must be > 0")
	}
	if flush == nil {
		return 0, fmt.Errorf("flush must not be nil")
	}

	seq := 0
	batch := make([]T, 0, batchSize)
	emit := func() error {
		if len(batch) == 0 {
			return nil
		}
		seq++
		err := flush(ctx, seq, batch)
		batch = make([]T, 0, batchSize)
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return seq, ctx.Err()
		case item, ok := <-in:
			if !ok {
				return seq, emit()
			}
			batch = append(batch, item)
			if len(batch) >= batchSize {
				if err := emit(); err != nil {
					return seq, err
				}
			}
		}
	}
}

// Batches splits items into consecutive batches of at most size.
func Batches[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = 1
	}
	out := make([][]T, 0, (len(items)+size-1)/size)
	for len(items) > 0 {
		n := size
		if n > len(items) {
			n = len(items)
		}
		out = append(out, items[:n:n])
		items = items[n:]
	}
	return out
}
