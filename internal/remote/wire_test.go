package remote

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var created = time.Date(2024, 5, 10, 9, 30, 0, 0, time.FixedZone("CEST", 2*3600))

func TestMapNoteNormalizes(t *testing.T) {
	note, err := MapNote(NoteRecord{
		ID:        "n1",
		UserID:    7,
		Content:   "body",
		CreatedAt: created,
	})

	require.NoError(t, err)
	assert.Equal(t, "n1", note.ID)
	assert.Equal(t, time.UTC, note.CreatedAt.Location())
	assert.Equal(t, note.CreatedAt, note.UpdatedAt, "zero updated_at falls back to created_at")
	assert.Nil(t, note.GroupID)
}

func TestMapNoteTreatsEmptyGroupAsUngrouped(t *testing.T) {
	empty := ""
	note, err := MapNote(NoteRecord{ID: "n1", UserID: 7, Content: "x", CreatedAt: created, GroupID: &empty})
	require.NoError(t, err)
	assert.Nil(t, note.GroupID)
}

func TestMapNoteRejectsBadShapes(t *testing.T) {
	cases := []struct {
		name string
		rec  NoteRecord
	}{
		{"empty id", NoteRecord{UserID: 7, CreatedAt: created}},
		{"zero owner", NoteRecord{ID: "n1", CreatedAt: created}},
		{"negative owner", NoteRecord{ID: "n1", UserID: -2, CreatedAt: created}},
		{"zero created_at", NoteRecord{ID: "n1", UserID: 7}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := MapNote(tc.rec)
			assert.Error(t, err)
		})
	}
}

func TestMapLinkRequiresURL(t *testing.T) {
	_, err := MapLink(LinkRecord{ID: "l1", UserID: 7, CreatedAt: created})
	assert.Error(t, err)

	link, err := MapLink(LinkRecord{ID: "l1", UserID: 7, URL: "https://example.com", CreatedAt: created})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", link.URL)
}

func TestMapFileRequiresName(t *testing.T) {
	_, err := MapFile(FileRecord{ID: "f1", UserID: 7, UploadedAt: created})
	assert.Error(t, err)

	file, err := MapFile(FileRecord{ID: "f1", UserID: 7, Name: "a.txt", Size: 12, UploadedAt: created})
	require.NoError(t, err)
	assert.Equal(t, int64(12), file.Size)
}

func TestMapGroupRequiresName(t *testing.T) {
	_, err := MapGroup(GroupRecord{ID: "g1", UserID: 7, CreatedAt: created})
	assert.Error(t, err)
}

func TestMapNotesFailsOnFirstBadRecord(t *testing.T) {
	good := NoteRecord{ID: "n1", UserID: 7, Content: "x", CreatedAt: created}
	bad := NoteRecord{UserID: 7, CreatedAt: created}

	notes, err := MapNotes([]NoteRecord{good, bad})
	assert.Error(t, err)
	assert.Nil(t, notes)

	notes, err = MapNotes([]NoteRecord{good})
	require.NoError(t, err)
	assert.Len(t, notes, 1)
}
