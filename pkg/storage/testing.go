package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// StorageTestSuite defines a test suite that can be run against any Storage implementation.
type StorageTestSuite struct {
	NewStorage func(t *testing.T) Storage
}

// RunAllTests runs all storage tests against the provided storage implementation.
func (s *StorageTestSuite) RunAllTests(t *testing.T) {
	t.Run("EntryCRUD", s.TestEntryCRUD)
	t.Run("EntryIsCopied", s.TestEntryIsCopied)
	t.Run("ListEntriesPagination", s.TestListEntriesPagination)
	t.Run("DeleteEntryCascadesLinks", s.TestDeleteEntryCascadesLinks)
	t.Run("Relations", s.TestRelations)
	t.Run("Links", s.TestLinks)
	t.Run("ConcurrentAccess", s.TestConcurrentAccess)
	t.Run("NotFound", s.TestNotFound)
}

// TestEntryCRUD tests basic entry create, read, update and delete.
func (s *StorageTestSuite) TestEntryCRUD(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()
	ctx := context.Background()

	entry := &Entry{
		ID:        1,
		Content:   "2024年1月1日在上海开会",
		Timestamp: 1704067200,
		Location:  "上海",
		Emotions:  []string{"joy"},
		Type:      "event",
		Keywords:  []string{"上海", "会议"},
		Metadata:  map[string]string{"source": "diary"},
	}
	require.NoError(t, store.SaveEntry(ctx, entry))
	assert.False(t, entry.CreatedAt.IsZero(), "CreatedAt should be stamped on save")

	got, err := store.GetEntry(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, entry.Content, got.Content)
	assert.Equal(t, entry.Keywords, got.Keywords)
	assert.Equal(t, entry.Metadata, got.Metadata)
	assert.Equal(t, entry.Emotions, got.Emotions)
	assert.Equal(t, "上海", got.Location)
	assert.True(t, entry.CreatedAt.Equal(got.CreatedAt))

	created := got.CreatedAt
	update := &Entry{ID: 1, Content: "updated"}
	require.NoError(t, store.SaveEntry(ctx, update))

	got, err = store.GetEntry(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "updated", got.Content)
	assert.Empty(t, got.Keywords)
	assert.True(t, created.Equal(got.CreatedAt), "CreatedAt should survive updates")

	require.NoError(t, store.DeleteEntry(ctx, 1))
	_, err = store.GetEntry(ctx, 1)
	require.Error(t, err)
}

// TestEntryIsCopied verifies callers cannot mutate stored entries.
func (s *StorageTestSuite) TestEntryIsCopied(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()
	ctx := context.Background()

	entry := &Entry{ID: 5, Content: "original", Keywords: []string{"a"}}
	require.NoError(t, store.SaveEntry(ctx, entry))
	entry.Keywords[0] = "mutated"

	got, err := store.GetEntry(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, got.Keywords)

	got.Content = "changed"
	again, err := store.GetEntry(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, "original", again.Content)
}

// TestListEntriesPagination tests ID ordering and pagination.
func (s *StorageTestSuite) TestListEntriesPagination(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()
	ctx := context.Background()

	for _, id := range []int64{30, 2, 17, 100, 5} {
		require.NoError(t, store.SaveEntry(ctx, &Entry{ID: id, Content: fmt.Sprintf("entry %d", id)}))
	}

	all, total, err := store.ListEntries(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Equal(t, []int64{2, 5, 17, 30, 100}, entryIDs(all))

	page, total, err := store.ListEntries(ctx, &EntryFilter{Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Equal(t, []int64{5, 17}, entryIDs(page))

	page, _, err = store.ListEntries(ctx, &EntryFilter{Offset: 3})
	require.NoError(t, err)
	assert.Equal(t, []int64{30, 100}, entryIDs(page))

	page, _, err = store.ListEntries(ctx, &EntryFilter{Limit: 10, Offset: 50})
	require.NoError(t, err)
	assert.Empty(t, page)
}

func entryIDs(entries []*Entry) []int64 {
	ids := make([]int64, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	return ids
}

// TestDeleteEntryCascadesLinks verifies links touching a deleted entry go with it.
func (s *StorageTestSuite) TestDeleteEntryCascadesLinks(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()
	ctx := context.Background()

	for _, id := range []int64{1, 2, 3} {
		require.NoError(t, store.SaveEntry(ctx, &Entry{ID: id, Content: "x"}))
	}
	require.NoError(t, store.SaveLink(ctx, &Link{Source: 1, Target: 2, Weight: 0.5}))
	require.NoError(t, store.SaveLink(ctx, &Link{Source: 3, Target: 1, Weight: 0.5}))
	require.NoError(t, store.SaveLink(ctx, &Link{Source: 2, Target: 3, Weight: 0.5}))

	require.NoError(t, store.DeleteEntry(ctx, 1))

	links, err := store.ListLinks(ctx)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, Link{Source: 2, Target: 3, Weight: 0.5}, *links[0])
}

// TestRelations tests relation upsert, ordering and deletion.
func (s *StorageTestSuite) TestRelations(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.SaveRelation(ctx, &Relation{Source: "上海", Target: "沪", Weight: 0.5, Equality: true}))
	require.NoError(t, store.SaveRelation(ctx, &Relation{Source: "cat", Target: "animal", Weight: 0.4}))
	require.NoError(t, store.SaveRelation(ctx, &Relation{Source: "上海", Target: "沪", Weight: 0.9, Equality: true}))

	relations, err := store.ListRelations(ctx)
	require.NoError(t, err)
	require.Len(t, relations, 2)
	assert.Equal(t, "cat", relations[0].Source)
	assert.Equal(t, Relation{Source: "上海", Target: "沪", Weight: 0.9, Equality: true}, *relations[1])

	require.NoError(t, store.DeleteRelation(ctx, "cat", "animal"))
	relations, err = store.ListRelations(ctx)
	require.NoError(t, err)
	assert.Len(t, relations, 1)

	var nf *NotFoundError
	require.ErrorAs(t, store.DeleteRelation(ctx, "cat", "animal"), &nf)
	assert.Equal(t, "relation", nf.EntityType)
}

// TestLinks tests link upsert and ordering.
func (s *StorageTestSuite) TestLinks(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.SaveLink(ctx, &Link{Source: 10, Target: 2, Weight: 0.1}))
	require.NoError(t, store.SaveLink(ctx, &Link{Source: 2, Target: 10, Weight: 0.2}))
	require.NoError(t, store.SaveLink(ctx, &Link{Source: 10, Target: 2, Weight: 0.7}))

	links, err := store.ListLinks(ctx)
	require.NoError(t, err)
	require.Len(t, links, 2)
	assert.Equal(t, Link{Source: 2, Target: 10, Weight: 0.2}, *links[0])
	assert.Equal(t, Link{Source: 10, Target: 2, Weight: 0.7}, *links[1])
}

// TestConcurrentAccess tests concurrent writers and readers.
func (s *StorageTestSuite) TestConcurrentAccess(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()
	ctx := context.Background()

	const writers = 8
	const perWriter = 20

	var wg sync.WaitGroup
	errs := make(chan error, writers*perWriter*2)
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				id := int64(w*perWriter + i + 1)
				if err := store.SaveEntry(ctx, &Entry{ID: id, Content: "concurrent", CreatedAt: time.Now()}); err != nil {
					errs <- err
				}
				if _, _, err := store.ListEntries(ctx, &EntryFilter{Limit: 5}); err != nil {
					errs <- err
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent operation failed: %v", err)
	}

	_, total, err := store.ListEntries(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, writers*perWriter, total)
}

// TestNotFound tests typed not-found errors.
func (s *StorageTestSuite) TestNotFound(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()
	ctx := context.Background()

	_, err := store.GetEntry(ctx, 404)
	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "entry", nf.EntityType)
	assert.Equal(t, "404", nf.ID)

	require.ErrorAs(t, store.DeleteEntry(ctx, 404), &nf)
}
