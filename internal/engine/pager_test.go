package engine_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPagerTwoPagesOfTwentyAndFive(t *testing.T) {
	f := newFixture(t, 20)
	f.seedNotes(t, 25)
	f.signIn(t)

	require.Len(t, f.eng.Notes(), 20)
	require.True(t, f.eng.HasMoreNotes())

	page, err := f.eng.LoadMoreNotes(context.Background())
	require.NoError(t, err)
	assert.Len(t, page, 5)
	assert.Len(t, f.eng.Notes(), 25)
	assert.False(t, f.eng.HasMoreNotes())
}

func TestPagerLoadsExactlyNUniqueRecords(t *testing.T) {
	const n, pageSize = 10, 3
	f := newFixture(t, pageSize)
	f.seedNotes(t, n)
	f.signIn(t)

	calls := 1 // the initial sync loaded the first page
	for f.eng.HasMoreNotes() {
		_, err := f.eng.LoadMoreNotes(context.Background())
		require.NoError(t, err)
		calls++
		require.LessOrEqual(t, calls, 10, "pager failed to terminate")
	}

	// ceil(10/3) = 4 fetches, 10 unique records, newest first.
	assert.Equal(t, 4, calls)
	notes := f.eng.Notes()
	require.Len(t, notes, n)
	seen := map[string]bool{}
	for i, note := range notes {
		require.False(t, seen[note.ID], "duplicate %s", note.ID)
		seen[note.ID] = true
		if i > 0 {
			assert.True(t, notes[i-1].CreatedAt.After(note.CreatedAt), "descending creation order")
		}
	}
}

func TestPagerExhaustedIsNoOp(t *testing.T) {
	f := newFixture(t, 20)
	f.seedNotes(t, 3)
	f.signIn(t)
	require.False(t, f.eng.HasMoreNotes())
	calls := f.remote.listNotesCalls.Load()

	page, err := f.eng.LoadMoreNotes(context.Background())

	require.NoError(t, err)
	assert.Nil(t, page)
	assert.Equal(t, calls, f.remote.listNotesCalls.Load(), "no network call once exhausted")
}

func TestPagerDeduplicatesAgainstConcurrentResync(t *testing.T) {
	f := newFixture(t, 5)
	f.seedNotes(t, 8)
	f.signIn(t)
	require.Len(t, f.eng.Notes(), 5)

	// A note created after sign-in shifts the overlap window: the next
	// page may redeliver records a concurrent resync already merged.
	_, err := f.eng.SaveNote(context.Background(), "new arrival", "", nil)
	require.NoError(t, err)
	require.NoError(t, f.eng.Sync(context.Background(), true))

	for f.eng.HasMoreNotes() {
		_, err := f.eng.LoadMoreNotes(context.Background())
		require.NoError(t, err)
	}

	notes := f.eng.Notes()
	assert.Len(t, notes, 9)
	seen := map[string]bool{}
	for _, note := range notes {
		require.False(t, seen[note.ID])
		seen[note.ID] = true
	}
}

func TestPagerCursorVariant(t *testing.T) {
	f := newFixture(t, 4)
	f.seedNotes(t, 8)
	f.signIn(t)
	notes := f.eng.Notes()
	require.Len(t, notes, 4)

	page, err := f.eng.LoadNotesBefore(context.Background(), notes[len(notes)-1].CreatedAt)
	require.NoError(t, err)
	assert.Len(t, page, 4)
	assert.Len(t, f.eng.Notes(), 8)
	assert.False(t, f.eng.HasMoreNotes())
}

func TestGroupFilterResetsPagination(t *testing.T) {
	f := newFixture(t, 5)
	f.signIn(t)

	group, err := f.eng.CreateGroup(context.Background(), "work")
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := f.eng.SaveNote(context.Background(), fmt.Sprintf("grouped %d", i), "", &group.ID)
		require.NoError(t, err)
	}
	for i := 0; i < 7; i++ {
		_, err := f.eng.SaveNote(context.Background(), fmt.Sprintf("loose %d", i), "", nil)
		require.NoError(t, err)
	}
	require.NoError(t, f.eng.Sync(context.Background(), false))

	f.eng.SetGroupFilter(&group.ID)
	assert.Empty(t, f.eng.Notes(), "filter change discards the loaded set")
	assert.True(t, f.eng.HasMoreNotes())

	require.NoError(t, f.eng.Sync(context.Background(), false))
	notes := f.eng.Notes()
	require.Len(t, notes, 3)
	for _, note := range notes {
		require.NotNil(t, note.GroupID)
		assert.Equal(t, group.ID, *note.GroupID)
	}

	f.eng.SetGroupFilter(nil)
	require.NoError(t, f.eng.Sync(context.Background(), false))
	assert.Len(t, f.eng.Notes(), 5, "first page under page size 5")
	assert.True(t, f.eng.HasMoreNotes())
}
