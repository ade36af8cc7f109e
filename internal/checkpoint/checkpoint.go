// Package checkpoint persists how far a job got through a source file so
// an interrupted run can resume after the last committed batch.
//
// A checkpoint is keyed by job name plus a fingerprint of the source
// content; editing the file invalidates every checkpoint taken against
// the old version.
package checkpoint

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/zeebo/xxh3"
)

// State is the resume position of one job.
type State struct {
	// Line is the last source line fully processed.
	Line      int       `json:"line"`
	Batches   int       `json:"batches"`
	RunID     string    `json:"run_id"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store loads and saves checkpoints.
type Store interface {
	// Load returns the state for key; ok is false when none exists.
	Load(ctx context.Context, key string) (st State, ok bool, err error)
	Save(ctx context.Context, key string, st State) error
	Clear(ctx context.Context, key string) error
	Close() error
}

// Key combines job and source fingerprint.
func Key(job, fingerprint string) string {
	return job + ":" + fingerprint
}

// Fingerprint hashes r with xxh3 and returns the hex digest.
func Fingerprint(r io.Reader) (string, error) {
	h := xxh3.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], h.Sum64())
	return hex.EncodeToString(b[:]), nil
}

// FingerprintString hashes a location when the content cannot be read
// twice (remote sources).
func FingerprintString(s string) string {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], xxh3.HashString(s))
	return hex.EncodeToString(b[:])
}
