// Package remote defines the contract between the sync engine and the
// server of record, together with the wire-format records crossing it.
package remote

import (
	"context"
	"time"
)

// Remote is the narrow request/response surface the engine consumes.
// Implementations own their transport, timeouts and retry policy; the
// engine treats every call as at-least-once with last-writer-wins on the
// server side.
type Remote interface {
	// ListNotes returns up to pageSize notes ordered by created_at DESC,
	// strictly older than cursor when cursor is non-nil. A non-nil
	// groupFilter restricts the result to one group.
	ListNotes(ctx context.Context, userID int64, pageSize int, cursor *time.Time, groupFilter *string) ([]NoteRecord, error)
	CreateNote(ctx context.Context, userID int64, content string, title string, clientTS *time.Time, groupID *string) (NoteRecord, error)
	UpdateNote(ctx context.Context, id string, userID int64, content string, title string, clientTS *time.Time) (NoteRecord, error)
	DeleteNote(ctx context.Context, id string, userID int64) error
	MoveNoteToGroup(ctx context.Context, noteID string, userID int64, groupID *string) error

	ListLinks(ctx context.Context, userID int64) ([]LinkRecord, error)
	CreateLink(ctx context.Context, userID int64, url, title string) (LinkRecord, error)
	DeleteLink(ctx context.Context, id string, userID int64) error

	ListFiles(ctx context.Context, userID int64) ([]FileRecord, error)
	CreateFile(ctx context.Context, userID int64, name, mimeType, url, thumbnailURL string, size int64) (FileRecord, error)
	RenameFile(ctx context.Context, id string, userID int64, name string) (FileRecord, error)
	DeleteFile(ctx context.Context, id string, userID int64) error

	ListGroups(ctx context.Context, userID int64) ([]GroupRecord, error)
	CreateGroup(ctx context.Context, userID int64, name string) (GroupRecord, error)
	// DeleteGroup removes the group; member notes survive with their
	// group reference cleared.
	DeleteGroup(ctx context.Context, id string, userID int64) error

	// HasChangesSince is the lightweight probe: it reports whether any of
	// the user's records changed after the given instant.
	HasChangesSince(ctx context.Context, userID int64, since time.Time) (bool, error)
}
