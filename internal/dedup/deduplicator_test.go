package dedup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubStore struct {
	exists map[string]bool
	calls  int
	err    error
}

func (s *stubStore) HashExists(_ context.Context, provider, hash string) (bool, error) {
	s.calls++
	if s.err != nil {
		return false, s.err
	}
	return s.exists[provider+":"+hash], nil
}

func TestIsDuplicateHitsStoreOnCacheMiss(t *testing.T) {
	store := &stubStore{exists: map[string]bool{"alchemy:abc": true}}
	d := New(store, time.Minute)
	defer d.Close()

	dup, err := d.IsDuplicate(context.Background(), "alchemy", "abc")
	require.NoError(t, err)
	assert.True(t, dup)
	assert.Equal(t, 1, store.calls)
}

func TestIsDuplicateCachesPositiveResult(t *testing.T) {
	store := &stubStore{exists: map[string]bool{"alchemy:abc": true}}
	d := New(store, time.Minute)
	defer d.Close()

	_, err := d.IsDuplicate(context.Background(), "alchemy", "abc")
	require.NoError(t, err)
	_, err = d.IsDuplicate(context.Background(), "alchemy", "abc")
	require.NoError(t, err)

	assert.Equal(t, 1, store.calls, "second call should be answered from cache")
}

func TestIsDuplicateCachesNegativeResultAsSeen(t *testing.T) {
	store := &stubStore{exists: map[string]bool{}}
	d := New(store, time.Minute)
	defer d.Close()

	dup, err := d.IsDuplicate(context.Background(), "alchemy", "new-hash")
	require.NoError(t, err)
	assert.False(t, dup)

	dup, err = d.IsDuplicate(context.Background(), "alchemy", "new-hash")
	require.NoError(t, err)
	assert.True(t, dup, "a store miss is still cached, so the next check for the same hash short-circuits to true")

	assert.Equal(t, 1, store.calls, "cache hit must not re-check the store")
}

func TestIsDuplicatePropagatesStoreError(t *testing.T) {
	store := &stubStore{err: errors.New("db down")}
	d := New(store, time.Minute)
	defer d.Close()

	_, err := d.IsDuplicate(context.Background(), "alchemy", "abc")
	assert.Error(t, err)
}

func TestMarkShortCircuitsStoreLookup(t *testing.T) {
	store := &stubStore{exists: map[string]bool{}}
	d := New(store, time.Minute)
	defer d.Close()

	d.Mark("alchemy", "just-stored")

	dup, err := d.IsDuplicate(context.Background(), "alchemy", "just-stored")
	require.NoError(t, err)
	assert.True(t, dup)
	assert.Equal(t, 0, store.calls)
}

func TestComputeHashIsLowercaseHex(t *testing.T) {
	hash := ComputeHash([]byte("hello"))
	assert.Len(t, hash, 64)
	assert.Equal(t, hash, toLower(hash))
}

func toLower(s string) string {
	out := []byte(s)
	for i, b := range out {
		if b >= 'A' && b <= 'Z' {
			out[i] = b + 32
		}
	}
	return string(out)
}

func TestCacheEntryExpiresAfterTTL(t *testing.T) {
	c := newCache(20 * time.Millisecond)
	defer c.Close()

	c.mark("x")
	assert.True(t, c.seen("x"))

	time.Sleep(40 * time.Millisecond)
	assert.False(t, c.seen("x"))
}
