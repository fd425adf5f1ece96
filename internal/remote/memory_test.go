package remote

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seededRemote(t *testing.T, userID int64, n int) (*MemoryRemote, []time.Time) {
	t.Helper()
	m := NewMemoryRemote()
	base := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	stamps := make([]time.Time, n)
	for i := 0; i < n; i++ {
		ts := base.Add(time.Duration(i) * time.Minute)
		stamps[i] = ts
		_, err := m.CreateNote(context.Background(), userID, fmt.Sprintf("note %d", i), "", &ts, nil)
		require.NoError(t, err)
	}
	return m, stamps
}

func TestListNotesOrdersDescendingAndHonorsCursor(t *testing.T) {
	m, stamps := seededRemote(t, 1, 5)

	all, err := m.ListNotes(context.Background(), 1, 10, nil, nil)
	require.NoError(t, err)
	require.Len(t, all, 5)
	for i := 1; i < len(all); i++ {
		assert.True(t, all[i-1].CreatedAt.After(all[i].CreatedAt))
	}

	// Cursor is exclusive: records at the cursor instant are not
	// redelivered.
	page, err := m.ListNotes(context.Background(), 1, 10, &stamps[2], nil)
	require.NoError(t, err)
	require.Len(t, page, 2)
	for _, rec := range page {
		assert.True(t, rec.CreatedAt.Before(stamps[2]))
	}
}

func TestListNotesIsolatesUsers(t *testing.T) {
	m, _ := seededRemote(t, 1, 3)
	_, err := m.CreateNote(context.Background(), 2, "other user", "", nil, nil)
	require.NoError(t, err)

	notes, err := m.ListNotes(context.Background(), 1, 10, nil, nil)
	require.NoError(t, err)
	assert.Len(t, notes, 3)
}

func TestDeleteGroupDetachesNotesServerSide(t *testing.T) {
	m := NewMemoryRemote()
	ctx := context.Background()

	group, err := m.CreateGroup(ctx, 1, "g")
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := m.CreateNote(ctx, 1, fmt.Sprintf("n%d", i), "", nil, &group.ID)
		require.NoError(t, err)
	}

	require.NoError(t, m.DeleteGroup(ctx, group.ID, 1))

	notes, err := m.ListNotes(ctx, 1, 10, nil, nil)
	require.NoError(t, err)
	require.Len(t, notes, 3)
	for _, rec := range notes {
		assert.Nil(t, rec.GroupID, "notes must survive group deletion ungrouped")
	}
	groups, err := m.ListGroups(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestHasChangesSince(t *testing.T) {
	m := NewMemoryRemote()
	ctx := context.Background()
	ts := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	_, err := m.CreateNote(ctx, 1, "x", "", &ts, nil)
	require.NoError(t, err)

	changed, err := m.HasChangesSince(ctx, 1, ts.Add(-time.Second))
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = m.HasChangesSince(ctx, 1, ts)
	require.NoError(t, err)
	assert.False(t, changed, "probe boundary is exclusive")

	changed, err = m.HasChangesSince(ctx, 2, time.Time{})
	require.NoError(t, err)
	assert.False(t, changed, "other users' edits are invisible")
}

func TestOwnershipChecks(t *testing.T) {
	m := NewMemoryRemote()
	ctx := context.Background()
	note, err := m.CreateNote(ctx, 1, "mine", "", nil, nil)
	require.NoError(t, err)

	_, err = m.UpdateNote(ctx, note.ID, 2, "stolen", "", nil)
	assert.Error(t, err)
	assert.Error(t, m.DeleteNote(ctx, note.ID, 2))

	got, err := m.ListNotes(ctx, 1, 10, nil, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "mine", got[0].Content)
}
