package transformer

import (
	"context"

	"jobseed/internal/parser"
)

// TransformLoop reads parsed rows from in, normalizes them with p and
// sends records to out in arrival order. Rows failing validation are
// handed to onInvalid and dropped. It returns when in is closed or ctx is
// canceled; it never closes out.
func TransformLoop(
	ctx context.Context,
	p *Plan,
	in <-chan parser.Row,
	out chan<- Record,
	onInvalid func(parser.Row, error),
) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case row, ok := <-in:
			if !ok {
				return nil
			}
			rec, err := p.Apply(row)
			if err != nil {
				if onInvalid != nil {
					onInvalid(row, err)
				}
				continue
			}
			select {
			case out <- rec:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}
