// Package file opens import inputs from the local disk.
package file

import (
	"context"
	"fmt"
	"io"
	"os"
)

// Local is a file on disk.
type Local struct{ path string }

// NewLocal binds a Local to path. Nothing is touched until Open.
func NewLocal(path string) *Local { return &Local{path: path} }

// Path returns the bound path.
func (l *Local) Path() string { return l.path }

// Open returns the file, or the context error when ctx is already done.
// Filesystem errors keep their identity for errors.Is(err, os.ErrNotExist).
func (l *Local) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", l.path, err)
	}
	return f, nil
}

// Size reports the file length for progress output.
func (l *Local) Size() (int64, error) {
	st, err := os.Stat(l.path)
	if err != nil {
		return 0, err
	}
	return st.Size(), nil
}
