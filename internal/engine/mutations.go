package engine

import (
	"context"
	"io"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/xaenox/notekeep/internal/models"
	"github.com/xaenox/notekeep/internal/remote"
)

// SaveNote creates a note optimistically: a provisional record appears at
// the head of the collection before the server round-trip, then is
// replaced in place by the confirmed record. On failure the collection
// snapshot is restored and a TransportError returned.
func (e *Engine) SaveNote(ctx context.Context, content, title string, groupID *string) (models.Note, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return models.Note{}, &ValidationError{Reason: "note content is empty"}
	}

	e.mu.Lock()
	if e.userID == 0 {
		e.mu.Unlock()
		return models.Note{}, ErrNotAuthenticated
	}
	userID := e.userID
	ts := e.now()
	provisional := models.Note{
		ID:        models.NewLocalID(),
		UserID:    userID,
		Content:   content,
		Title:     title,
		GroupID:   groupID,
		CreatedAt: ts,
		UpdatedAt: ts,
	}
	snapshot := e.notes.Snapshot()
	e.notes.Prepend(provisional)
	e.status = StatusSyncing
	e.mu.Unlock()

	rec, err := e.remote.CreateNote(ctx, userID, content, title, &ts, groupID)
	var note models.Note
	if err == nil {
		note, err = remote.MapNote(rec)
	}
	if err != nil {
		e.mu.Lock()
		e.notes.Restore(snapshot)
		e.status = StatusError
		e.mu.Unlock()
		return models.Note{}, &TransportError{Op: "create note", Err: err}
	}

	e.mu.Lock()
	if !e.notes.Replace(provisional.ID, note) {
		// A concurrent resync evicted the provisional record; merge the
		// confirmed one instead.
		e.notes.Upsert(note)
	}
	msg, uid := e.finishMutation()
	e.mu.Unlock()
	e.publish(ctx, msg, uid)
	return note, nil
}

// UpdateNote applies new content locally first and reconciles with the
// authoritative record on success, restoring the snapshot on failure.
// Updating a still-provisional id is best effort; callers should let the
// create settle first.
func (e *Engine) UpdateNote(ctx context.Context, id, content, title string) (models.Note, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return models.Note{}, &ValidationError{Reason: "note content is empty"}
	}
	if id == "" {
		return models.Note{}, &ValidationError{Reason: "note id is empty"}
	}

	e.mu.Lock()
	if e.userID == 0 {
		e.mu.Unlock()
		return models.Note{}, ErrNotAuthenticated
	}
	userID := e.userID
	ts := e.now()
	snapshot := e.notes.Snapshot()
	if current, ok := e.notes.Get(id); ok {
		current.Content = content
		current.Title = title
		current.UpdatedAt = ts
		e.notes.Replace(id, current)
	}
	e.status = StatusSyncing
	e.mu.Unlock()

	rec, err := e.remote.UpdateNote(ctx, id, userID, content, title, &ts)
	var note models.Note
	if err == nil {
		note, err = remote.MapNote(rec)
	}
	if err != nil {
		e.mu.Lock()
		e.notes.Restore(snapshot)
		e.status = StatusError
		e.mu.Unlock()
		return models.Note{}, &TransportError{Op: "update note", Err: err}
	}

	e.mu.Lock()
	e.notes.Upsert(note)
	msg, uid := e.finishMutation()
	e.mu.Unlock()
	e.publish(ctx, msg, uid)
	return note, nil
}

// DeleteNote removes the note locally before the remote call and restores
// it (same position) if the call fails.
func (e *Engine) DeleteNote(ctx context.Context, id string) error {
	if id == "" {
		return &ValidationError{Reason: "note id is empty"}
	}

	e.mu.Lock()
	if e.userID == 0 {
		e.mu.Unlock()
		return ErrNotAuthenticated
	}
	userID := e.userID
	snapshot := e.notes.Snapshot()
	e.notes.Remove(id)
	e.status = StatusSyncing
	e.mu.Unlock()

	if err := e.remote.DeleteNote(ctx, id, userID); err != nil {
		e.mu.Lock()
		e.notes.Restore(snapshot)
		e.status = StatusError
		e.mu.Unlock()
		return &TransportError{Op: "delete note", Err: err}
	}

	e.mu.Lock()
	msg, uid := e.finishMutation()
	e.mu.Unlock()
	e.publish(ctx, msg, uid)
	return nil
}

// SaveLink creates a link with the same optimistic shape as SaveNote.
func (e *Engine) SaveLink(ctx context.Context, rawURL, title string) (models.Link, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return models.Link{}, &ValidationError{Reason: "link url is empty"}
	}
	if _, err := url.ParseRequestURI(rawURL); err != nil {
		return models.Link{}, &ValidationError{Reason: "link url is malformed"}
	}

	e.mu.Lock()
	if e.userID == 0 {
		e.mu.Unlock()
		return models.Link{}, ErrNotAuthenticated
	}
	userID := e.userID
	ts := e.now()
	provisional := models.Link{
		ID:        models.NewLocalID(),
		UserID:    userID,
		URL:       rawURL,
		Title:     title,
		CreatedAt: ts,
	}
	snapshot := e.links.Snapshot()
	e.links.Prepend(provisional)
	e.status = StatusSyncing
	e.mu.Unlock()

	rec, err := e.remote.CreateLink(ctx, userID, rawURL, title)
	var link models.Link
	if err == nil {
		link, err = remote.MapLink(rec)
	}
	if err != nil {
		e.mu.Lock()
		e.links.Restore(snapshot)
		e.status = StatusError
		e.mu.Unlock()
		return models.Link{}, &TransportError{Op: "create link", Err: err}
	}

	e.mu.Lock()
	if !e.links.Replace(provisional.ID, link) {
		e.links.Upsert(link)
	}
	msg, uid := e.finishMutation()
	e.mu.Unlock()
	e.publish(ctx, msg, uid)
	return link, nil
}

func (e *Engine) DeleteLink(ctx context.Context, id string) error {
	if id == "" {
		return &ValidationError{Reason: "link id is empty"}
	}

	e.mu.Lock()
	if e.userID == 0 {
		e.mu.Unlock()
		return ErrNotAuthenticated
	}
	userID := e.userID
	snapshot := e.links.Snapshot()
	e.links.Remove(id)
	e.status = StatusSyncing
	e.mu.Unlock()

	if err := e.remote.DeleteLink(ctx, id, userID); err != nil {
		e.mu.Lock()
		e.links.Restore(snapshot)
		e.status = StatusError
		e.mu.Unlock()
		return &TransportError{Op: "delete link", Err: err}
	}

	e.mu.Lock()
	msg, uid := e.finishMutation()
	e.mu.Unlock()
	e.publish(ctx, msg, uid)
	return nil
}

// UploadFile stores the content through the file-storage collaborator and
// then registers the metadata with the server. There is no optimistic
// phase: the upload has to finish before a usable URL exists.
func (e *Engine) UploadFile(ctx context.Context, name, mimeType string, r io.Reader) (models.File, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.File{}, &ValidationError{Reason: "file name is empty"}
	}

	e.mu.Lock()
	if e.userID == 0 {
		e.mu.Unlock()
		return models.File{}, ErrNotAuthenticated
	}
	userID := e.userID
	e.status = StatusSyncing
	e.mu.Unlock()

	stored, err := e.blobs.Upload(ctx, userID, name, mimeType, r)
	if err != nil {
		e.mu.Lock()
		e.status = StatusError
		e.mu.Unlock()
		return models.File{}, &TransportError{Op: "upload file", Err: err}
	}

	rec, err := e.remote.CreateFile(ctx, userID, name, mimeType, stored.URL, stored.ThumbnailURL, stored.Size)
	var file models.File
	if err == nil {
		file, err = remote.MapFile(rec)
	}
	if err != nil {
		e.mu.Lock()
		e.status = StatusError
		e.mu.Unlock()
		return models.File{}, &TransportError{Op: "create file", Err: err}
	}

	e.mu.Lock()
	e.files.Prepend(file)
	msg, uid := e.finishMutation()
	e.mu.Unlock()
	e.publish(ctx, msg, uid)
	return file, nil
}

// RenameFile changes only the display name. Validation failures are
// reported before any mutation; transport failures after the rollback, so
// the caller can tell the two apart with IsValidation/IsTransport.
func (e *Engine) RenameFile(ctx context.Context, id, name string) (models.File, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.File{}, &ValidationError{Reason: "file name is empty"}
	}
	if id == "" {
		return models.File{}, &ValidationError{Reason: "file id is empty"}
	}

	e.mu.Lock()
	if e.userID == 0 {
		e.mu.Unlock()
		return models.File{}, ErrNotAuthenticated
	}
	userID := e.userID
	snapshot := e.files.Snapshot()
	if current, ok := e.files.Get(id); ok {
		current.Name = name
		e.files.Replace(id, current)
	}
	e.status = StatusSyncing
	e.mu.Unlock()

	rec, err := e.remote.RenameFile(ctx, id, userID, name)
	var file models.File
	if err == nil {
		file, err = remote.MapFile(rec)
	}
	if err != nil {
		e.mu.Lock()
		e.files.Restore(snapshot)
		e.status = StatusError
		e.mu.Unlock()
		return models.File{}, &TransportError{Op: "rename file", Err: err}
	}

	e.mu.Lock()
	e.files.Upsert(file)
	msg, uid := e.finishMutation()
	e.mu.Unlock()
	e.publish(ctx, msg, uid)
	return file, nil
}

func (e *Engine) DeleteFile(ctx context.Context, id string) error {
	if id == "" {
		return &ValidationError{Reason: "file id is empty"}
	}

	e.mu.Lock()
	if e.userID == 0 {
		e.mu.Unlock()
		return ErrNotAuthenticated
	}
	userID := e.userID
	snapshot := e.files.Snapshot()
	removed, hadFile := e.files.Get(id)
	e.files.Remove(id)
	e.status = StatusSyncing
	e.mu.Unlock()

	if err := e.remote.DeleteFile(ctx, id, userID); err != nil {
		e.mu.Lock()
		e.files.Restore(snapshot)
		e.status = StatusError
		e.mu.Unlock()
		return &TransportError{Op: "delete file", Err: err}
	}

	if hadFile {
		if err := e.blobs.Remove(ctx, removed.URL); err != nil {
			// Metadata is gone; orphaned content is harmless and logged.
			e.logger.Warn("Failed to remove file content",
				zap.Error(err),
				zap.String("file_id", id))
		}
	}

	e.mu.Lock()
	msg, uid := e.finishMutation()
	e.mu.Unlock()
	e.publish(ctx, msg, uid)
	return nil
}

// CreateGroup is eager: creation failure is rare and low impact, so the
// group is inserted only once the server confirms it.
func (e *Engine) CreateGroup(ctx context.Context, name string) (models.Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Group{}, &ValidationError{Reason: "group name is empty"}
	}

	e.mu.Lock()
	if e.userID == 0 {
		e.mu.Unlock()
		return models.Group{}, ErrNotAuthenticated
	}
	userID := e.userID
	e.status = StatusSyncing
	e.mu.Unlock()

	rec, err := e.remote.CreateGroup(ctx, userID, name)
	var group models.Group
	if err == nil {
		group, err = remote.MapGroup(rec)
	}
	if err != nil {
		e.mu.Lock()
		e.status = StatusError
		e.mu.Unlock()
		return models.Group{}, &TransportError{Op: "create group", Err: err}
	}

	e.mu.Lock()
	e.groups.Prepend(group)
	msg, uid := e.finishMutation()
	e.mu.Unlock()
	e.publish(ctx, msg, uid)
	return group, nil
}

// DeleteGroup removes the group locally and detaches its member notes —
// their group reference reverts to nil, the notes themselves survive. Both
// collections roll back together if the remote call fails.
func (e *Engine) DeleteGroup(ctx context.Context, id string) error {
	if id == "" {
		return &ValidationError{Reason: "group id is empty"}
	}

	e.mu.Lock()
	if e.userID == 0 {
		e.mu.Unlock()
		return ErrNotAuthenticated
	}
	userID := e.userID
	groupSnapshot := e.groups.Snapshot()
	noteSnapshot := e.notes.Snapshot()
	e.groups.Remove(id)
	for _, note := range e.notes.Items() {
		if note.GroupID != nil && *note.GroupID == id {
			note.GroupID = nil
			note.UpdatedAt = e.now()
			e.notes.Replace(note.ID, note)
		}
	}
	e.status = StatusSyncing
	e.mu.Unlock()

	if err := e.remote.DeleteGroup(ctx, id, userID); err != nil {
		e.mu.Lock()
		e.groups.Restore(groupSnapshot)
		e.notes.Restore(noteSnapshot)
		e.status = StatusError
		e.mu.Unlock()
		return &TransportError{Op: "delete group", Err: err}
	}

	e.mu.Lock()
	msg, uid := e.finishMutation()
	e.mu.Unlock()
	e.publish(ctx, msg, uid)
	return nil
}

// MoveNoteToGroup sets or clears (nil) a note's group reference.
func (e *Engine) MoveNoteToGroup(ctx context.Context, noteID string, groupID *string) error {
	if noteID == "" {
		return &ValidationError{Reason: "note id is empty"}
	}

	e.mu.Lock()
	if e.userID == 0 {
		e.mu.Unlock()
		return ErrNotAuthenticated
	}
	userID := e.userID
	snapshot := e.notes.Snapshot()
	if current, ok := e.notes.Get(noteID); ok {
		current.GroupID = groupID
		current.UpdatedAt = e.now()
		e.notes.Replace(noteID, current)
	}
	e.status = StatusSyncing
	e.mu.Unlock()

	if err := e.remote.MoveNoteToGroup(ctx, noteID, userID, groupID); err != nil {
		e.mu.Lock()
		e.notes.Restore(snapshot)
		e.status = StatusError
		e.mu.Unlock()
		return &TransportError{Op: "move note", Err: err}
	}

	e.mu.Lock()
	msg, uid := e.finishMutation()
	e.mu.Unlock()
	e.publish(ctx, msg, uid)
	return nil
}
