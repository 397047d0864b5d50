package blobstore

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	data := []byte("in-memory artifact")

	w, err := store.Create(ctx, "a.index")
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	got, err := ReadAll(ctx, store, "a.index")
	require.NoError(t, err)
	require.Equal(t, data, got)

	// Mutating the returned bytes must not affect the store.
	got[0] = 'X'
	again, err := ReadAll(ctx, store, "a.index")
	require.NoError(t, err)
	require.Equal(t, data, again)

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	require.Equal(t, []string{"a.index"}, names)

	require.NoError(t, store.Delete(ctx, "a.index"))
	_, err = store.Open(ctx, "a.index")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := string(rune('a'+i)) + ".index"
			_ = store.Put(ctx, name, []byte{byte(i)})
			_, _ = ReadAll(ctx, store, name)
			_, _ = store.List(ctx, "")
		}(i)
	}
	wg.Wait()

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, names, 8)
}
