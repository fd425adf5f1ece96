package engine

import (
	"context"
	"time"

	"github.com/xaenox/notekeep/internal/models"
	"github.com/xaenox/notekeep/internal/remote"
)

// trimPage implements the fetch-one-extra pattern: the remote is asked for
// pageSize+1 records; a full overflow means another page exists and the
// extra record is dropped. The next cursor is the creation timestamp of
// the last record actually kept.
func trimPage(recs []remote.NoteRecord, pageSize int) (page []models.Note, hasMore bool, cursor *time.Time, err error) {
	if len(recs) > pageSize {
		hasMore = true
		recs = recs[:pageSize]
	}
	page, err = remote.MapNotes(recs)
	if err != nil {
		return nil, false, nil, err
	}
	if hasMore && len(page) > 0 {
		last := page[len(page)-1].CreatedAt
		cursor = &last
	}
	return page, hasMore, cursor, nil
}

// LoadMoreNotes fetches the next page beyond the current cursor and merges
// it into the working set, dropping any record already loaded. It is a
// no-op once the collection is exhausted.
func (e *Engine) LoadMoreNotes(ctx context.Context) ([]models.Note, error) {
	e.mu.Lock()
	if e.userID == 0 {
		e.mu.Unlock()
		return nil, ErrNotAuthenticated
	}
	if !e.hasMore {
		e.mu.Unlock()
		return nil, nil
	}
	cursor := e.cursor
	e.mu.Unlock()

	return e.loadPage(ctx, cursor)
}

// LoadNotesBefore is the cursor variant: it pages from an explicit
// position instead of the engine's own cursor, for callers that track
// their own place in the collection.
func (e *Engine) LoadNotesBefore(ctx context.Context, cursor time.Time) ([]models.Note, error) {
	e.mu.Lock()
	if e.userID == 0 {
		e.mu.Unlock()
		return nil, ErrNotAuthenticated
	}
	e.mu.Unlock()

	return e.loadPage(ctx, &cursor)
}

func (e *Engine) loadPage(ctx context.Context, cursor *time.Time) ([]models.Note, error) {
	e.mu.Lock()
	userID := e.userID
	filter := e.groupFilter
	e.mu.Unlock()

	recs, err := e.remote.ListNotes(ctx, userID, e.pageSize+1, cursor, filter)
	if err != nil {
		return nil, &TransportError{Op: "load notes", Err: err}
	}
	page, hasMore, next, err := trimPage(recs, e.pageSize)
	if err != nil {
		return nil, &TransportError{Op: "load notes", Err: err}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.userID == 0 {
		return nil, ErrNotAuthenticated
	}
	e.notes.AppendUnique(page)
	e.cursor = next
	e.hasMore = hasMore
	return page, nil
}
