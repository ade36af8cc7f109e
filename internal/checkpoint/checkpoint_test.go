package checkpoint

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestFingerprint(t *testing.T) {
	t.Parallel()

	a, err := Fingerprint(strings.NewReader("id,name\n1,Acme\n"))
	require.NoError(t, err)
	b, err := Fingerprint(strings.NewReader("id,name\n1,Acme\n"))
	require.NoError(t, err)
	c, err := Fingerprint(strings.NewReader("id,name\n1,Acme Corp\n"))
	require.NoError(t, err)

	require.Len(t, a, 16)
	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
	require.Equal(t, "companies:"+a, Key("companies", a))
	require.Len(t, FingerprintString("https://example.com/jobs.csv"), 16)
}

func TestFileStore_RoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, ok, err := s.Load(ctx, "jobs:abc")
	require.NoError(t, err)
	require.False(t, ok)

	want := State{Line: 501, Batches: 1, RunID: "r1", UpdatedAt: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)}
	require.NoError(t, s.Save(ctx, "jobs:abc", want))

	got, ok, err := s.Load(ctx, "jobs:abc")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, want, got)

	require.NoError(t, s.Clear(ctx, "jobs:abc"))
	require.NoError(t, s.Clear(ctx, "jobs:abc"))
	_, ok, err = s.Load(ctx, "jobs:abc")
	require.NoError(t, err)
	require.False(t, ok)
}

type fakeRedis struct {
	data   map[string]string
	ttl    time.Duration
	setErr error
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(ctx context.Context, key string, value any, exp time.Duration) *redis.StatusCmd {
	if f.setErr != nil {
		return redis.NewStatusResult("", f.setErr)
	}
	f.data[key] = string(value.([]byte))
	f.ttl = exp
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	n := 0
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	return redis.NewIntResult(int64(n), nil)
}

func (f *fakeRedis) Close() error { return nil }

func TestRedisStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	fr := &fakeRedis{data: map[string]string{}}
	s := &RedisStore{c: fr, ttl: DefaultTTL}

	_, ok, err := s.Load(ctx, "vendors:f00")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Save(ctx, "vendors:f00", State{Line: 1001, Batches: 2}))
	require.Contains(t, fr.data, "jobseed:checkpoint:vendors:f00")
	require.Equal(t, DefaultTTL, fr.ttl)

	st, ok, err := s.Load(ctx, "vendors:f00")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1001, st.Line)

	require.NoError(t, s.Clear(ctx, "vendors:f00"))
	require.Empty(t, fr.data)

	fr.setErr = errors.New("READONLY")
	require.ErrorContains(t, s.Save(ctx, "vendors:f00", State{}), "READONLY")
}

func TestOpen_FileWhenNoRedis(t *testing.T) {
	t.Parallel()
	s, err := Open(context.Background(), "", t.TempDir())
	require.NoError(t, err)
	require.IsType(t, &FileStore{}, s)
}
