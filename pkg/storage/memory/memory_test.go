package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pedsa/pedsa/pkg/storage"
)

// TestMemoryStorageSuite runs the full storage test suite against MemoryStorage.
func TestMemoryStorageSuite(t *testing.T) {
	suite := &storage.StorageTestSuite{
		NewStorage: func(t *testing.T) storage.Storage {
			return NewMemoryStorage()
		},
	}
	suite.RunAllTests(t)
}

func TestMemoryStorage_ListReturnsCopies(t *testing.T) {
	store := NewMemoryStorage()
	ctx := context.Background()

	require.NoError(t, store.SaveEntry(ctx, &storage.Entry{ID: 1, Content: "a", Metadata: map[string]string{"k": "v"}}))

	entries, _, err := store.ListEntries(ctx, nil)
	require.NoError(t, err)
	entries[0].Metadata["k"] = "changed"

	got, err := store.GetEntry(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "v", got.Metadata["k"])
}

func TestMemoryStorage_LinksWithoutEntries(t *testing.T) {
	store := NewMemoryStorage()
	ctx := context.Background()

	// links may point at entries that do not exist yet
	require.NoError(t, store.SaveLink(ctx, &storage.Link{Source: 1, Target: 2, Weight: 1}))
	links, err := store.ListLinks(ctx)
	require.NoError(t, err)
	assert.Len(t, links, 1)
}
