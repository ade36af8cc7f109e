package checkpoint

import "context"

// Open picks Redis when redisURL is set, else a file store under dir.
func Open(ctx context.Context, redisURL, dir string) (Store, error) {
	if redisURL != "" {
		return NewRedisStore(ctx, redisURL)
	}
	return NewFileStore(dir)
}
