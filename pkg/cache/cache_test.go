package cache

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache_GetSetExpire(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(WithMemoryCleanup(0))
	defer mc.Close()

	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	mc.now = func() time.Time { return now }

	require.NoError(t, mc.Set(ctx, "k", []byte("v"), time.Minute))
	got, err := mc.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	now = now.Add(2 * time.Minute)
	_, err = mc.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.Equal(t, 0, mc.Len())
}

func TestMemoryCache_EvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(WithMemoryMaxSize(2), WithMemoryCleanup(0))
	defer mc.Close()

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	mc.now = func() time.Time { now = now.Add(time.Second); return now }

	require.NoError(t, mc.Set(ctx, "a", []byte("1"), time.Hour))
	require.NoError(t, mc.Set(ctx, "b", []byte("2"), time.Hour))
	_, err := mc.Get(ctx, "a")
	require.NoError(t, err)
	require.NoError(t, mc.Set(ctx, "c", []byte("3"), time.Hour))

	_, err = mc.Get(ctx, "b")
	assert.ErrorIs(t, err, ErrCacheMiss)
	_, err = mc.Get(ctx, "a")
	assert.NoError(t, err)
}

func TestMemoryCache_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(WithMemoryCleanup(0))
	defer mc.Close()

	v := []byte("abc")
	require.NoError(t, mc.Set(ctx, "k", v, time.Minute))
	v[0] = 'x'
	got, _ := mc.Get(ctx, "k")
	assert.Equal(t, "abc", string(got))
}

type fakeRemote struct {
	data map[string][]byte
	gets int
	err  error
}

func (f *fakeRemote) Get(_ context.Context, key string) ([]byte, error) {
	f.gets++
	if f.err != nil {
		return nil, f.err
	}
	b, ok := f.data[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	return b, nil
}

func (f *fakeRemote) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	if f.err != nil {
		return f.err
	}
	f.data[key] = value
	return nil
}

func (f *fakeRemote) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(f.data, k)
	}
	return nil
}

func (f *fakeRemote) Close() error { return nil }

func TestLayeredCache(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{data: map[string][]byte{"warm": []byte("r")}}
	lc := NewLayeredCache(remote, time.Minute, WithMemoryCleanup(0))
	defer lc.Close()

	got, err := lc.Get(ctx, "warm")
	require.NoError(t, err)
	assert.Equal(t, "r", string(got))
	_, _ = lc.Get(ctx, "warm")
	assert.Equal(t, 1, remote.gets, "second read served from memory")

	require.NoError(t, lc.Set(ctx, "k", []byte("v"), time.Hour))
	assert.Equal(t, "v", string(remote.data["k"]))

	require.NoError(t, lc.Delete(ctx, "k"))
	_, err = lc.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)

	remote.err = errors.New("down")
	assert.Error(t, lc.Set(ctx, "x", []byte("1"), time.Hour))
}

func TestKey(t *testing.T) {
	assert.Equal(t, "fh:quote:AAPL", Key("fh", "quote", "AAPL"))
	long := Key("fh", strings.Repeat("A", 300))
	assert.Equal(t, len("fh:")+40, len(long))
}
