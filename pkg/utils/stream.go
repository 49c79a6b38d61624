package utils

import "context"

// StreamItems hands every item received on ch to fn until ch is closed, ctx is
// cancelled or fn fails. A closed channel and a cancelled ctx both return nil.
func StreamItems[T any](ctx context.Context, ch <-chan T, fn func(T) error) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case item, ok := <-ch:
			if !ok {
				return nil
			}
			if err := fn(item); err != nil {
				return err
			}
		}
	}
}
