// Package engine keeps the in-memory working set of notes, links, files
// and groups consistent with the server of record. Mutations apply
// optimistically before the remote call settles and roll back if it fails;
// background reconciliation corrects whatever the optimistic path missed.
package engine

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xaenox/notekeep/internal/broadcast"
	"github.com/xaenox/notekeep/internal/files"
	"github.com/xaenox/notekeep/internal/models"
	"github.com/xaenox/notekeep/internal/remote"
	"github.com/xaenox/notekeep/internal/store"
)

type Status string

const (
	StatusIdle    Status = "idle"
	StatusSyncing Status = "syncing"
	StatusError   Status = "error"
	StatusSuccess Status = "success"
)

const DefaultPageSize = 20

// Options tune an Engine. Zero values fall back to defaults.
type Options struct {
	PageSize int
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Engine is one session's synchronization engine. It owns its collections
// exclusively; sessions only communicate through the bus and the durable
// timestamp store. Construct with New and share by reference — there are
// no package-level instances.
type Engine struct {
	remote   remote.Remote
	bus      broadcast.Bus
	durable  broadcast.DurableStore
	blobs    files.Storage
	logger   *zap.Logger
	now      func() time.Time
	pageSize int

	mu     sync.Mutex
	userID int64
	notes  *store.Collection[models.Note]
	links  *store.Collection[models.Link]
	files  *store.Collection[models.File]
	groups *store.Collection[models.Group]

	status     Status
	lastSync   time.Time
	lastChange time.Time
	// lastSeenBroadcast suppresses reactions to our own messages and to
	// replays: only strictly newer timestamps trigger reconciliation.
	lastSeenBroadcast time.Time

	cursor      *time.Time
	hasMore     bool
	groupFilter *string

	cancelSub func()
	listening chan struct{}
}

func New(rem remote.Remote, bus broadcast.Bus, durable broadcast.DurableStore, blobs files.Storage, logger *zap.Logger, opts Options) *Engine {
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		remote:   rem,
		bus:      bus,
		durable:  durable,
		blobs:    blobs,
		logger:   logger,
		now:      now,
		pageSize: pageSize,
		notes:    store.NewCollection[models.Note](),
		links:    store.NewCollection[models.Link](),
		files:    store.NewCollection[models.File](),
		groups:   store.NewCollection[models.Group](),
		status:   StatusIdle,
		hasMore:  true,
	}
}

// SignIn binds the engine to a user, subscribes to cross-session
// broadcasts and loads the initial working set.
func (e *Engine) SignIn(ctx context.Context, userID int64) error {
	e.mu.Lock()
	if e.userID != 0 {
		e.mu.Unlock()
		return ErrNotAuthenticated
	}
	e.userID = userID

	// A broadcast sent while this session was closed is invisible on the
	// bus; seed the suppression watermark from the durable record so the
	// initial sync below covers it without a redundant second pass.
	if last, err := e.durable.LastBroadcast(ctx, userID); err != nil {
		e.logger.Warn("Failed to read last broadcast timestamp",
			zap.Error(err),
			zap.Int64("user_id", userID))
	} else {
		e.lastSeenBroadcast = last
	}

	ch, cancel := e.bus.Subscribe()
	e.cancelSub = cancel
	done := make(chan struct{})
	e.listening = done
	e.mu.Unlock()

	go e.listen(ch, done)

	return e.Sync(ctx, false)
}

// SignOut detaches from the bus, discards the working set and returns the
// engine to the idle state.
func (e *Engine) SignOut() {
	e.mu.Lock()
	if e.userID == 0 {
		e.mu.Unlock()
		return
	}
	e.userID = 0
	cancel := e.cancelSub
	done := e.listening
	e.cancelSub = nil
	e.listening = nil
	e.notes.Reset(nil)
	e.links.Reset(nil)
	e.files.Reset(nil)
	e.groups.Reset(nil)
	e.cursor = nil
	e.hasMore = true
	e.groupFilter = nil
	e.status = StatusIdle
	e.lastSync = time.Time{}
	e.lastChange = time.Time{}
	e.lastSeenBroadcast = time.Time{}
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (e *Engine) listen(ch <-chan broadcast.Message, done chan struct{}) {
	defer close(done)
	for msg := range ch {
		e.handleBroadcast(msg)
	}
}

func (e *Engine) handleBroadcast(msg broadcast.Message) {
	e.mu.Lock()
	if e.userID == 0 || msg.UserID != e.userID || msg.Type != broadcast.TypeContentUpdated {
		e.mu.Unlock()
		return
	}
	// Our own publishes advance lastSeenBroadcast first, so equality here
	// also filters the echo of this session's mutations.
	if !msg.Timestamp.After(e.lastSeenBroadcast) {
		e.mu.Unlock()
		return
	}
	e.lastSeenBroadcast = msg.Timestamp
	e.mu.Unlock()

	if err := e.Sync(context.Background(), true); err != nil {
		e.logger.Warn("Broadcast-triggered sync failed", zap.Error(err))
	}
}

// UserID returns the signed-in user, or 0.
func (e *Engine) UserID() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.userID
}

// Notes returns a snapshot of the loaded notes, newest first.
func (e *Engine) Notes() []models.Note {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.notes.Items()
}

func (e *Engine) Links() []models.Link {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.links.Items()
}

func (e *Engine) Files() []models.File {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.files.Items()
}

func (e *Engine) Groups() []models.Group {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.groups.Items()
}

func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// LastSync is the moment of the last successful sync or mutation, for
// display.
func (e *Engine) LastSync() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSync
}

// LastChange is the reconciliation baseline the delta probe compares
// against.
func (e *Engine) LastChange() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastChange
}

// HasMoreNotes reports whether another page can be loaded.
func (e *Engine) HasMoreNotes() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hasMore
}

// SetGroupFilter switches the active group view. Pagination state resets
// and the loaded notes are discarded; the next Sync or LoadMoreNotes
// refills under the new filter.
func (e *Engine) SetGroupFilter(groupID *string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.groupFilter = groupID
	e.cursor = nil
	e.hasMore = true
	e.notes.Reset(nil)
}

// GroupFilter returns the active filter, nil meaning all notes.
func (e *Engine) GroupFilter() *string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.groupFilter
}

// Sync re-fetches the first page of every collection and replaces the
// working set with the authoritative result. Silent mode is used by
// background reconciliation: failures are logged, the status field is left
// alone and no error reaches the user.
func (e *Engine) Sync(ctx context.Context, silent bool) error {
	e.mu.Lock()
	if e.userID == 0 {
		e.mu.Unlock()
		return ErrNotAuthenticated
	}
	userID := e.userID
	filter := e.groupFilter
	if !silent {
		e.status = StatusSyncing
	}
	e.mu.Unlock()

	err := e.resync(ctx, userID, filter)
	if err != nil {
		if silent {
			e.logger.Warn("Background sync failed",
				zap.Error(err),
				zap.Int64("user_id", userID))
			return nil
		}
		e.mu.Lock()
		e.status = StatusError
		e.mu.Unlock()
		return &TransportError{Op: "sync", Err: err}
	}
	return nil
}

func (e *Engine) resync(ctx context.Context, userID int64, filter *string) error {
	noteRecs, err := e.remote.ListNotes(ctx, userID, e.pageSize+1, nil, filter)
	if err != nil {
		return err
	}
	linkRecs, err := e.remote.ListLinks(ctx, userID)
	if err != nil {
		return err
	}
	fileRecs, err := e.remote.ListFiles(ctx, userID)
	if err != nil {
		return err
	}
	groupRecs, err := e.remote.ListGroups(ctx, userID)
	if err != nil {
		return err
	}
	return e.applyResync(noteRecs, linkRecs, fileRecs, groupRecs)
}

func (e *Engine) applyResync(noteRecs []remote.NoteRecord, linkRecs []remote.LinkRecord, fileRecs []remote.FileRecord, groupRecs []remote.GroupRecord) error {
	page, hasMore, cursor, err := trimPage(noteRecs, e.pageSize)
	if err != nil {
		return err
	}
	links, err := remote.MapLinks(linkRecs)
	if err != nil {
		return err
	}
	fileItems, err := remote.MapFiles(fileRecs)
	if err != nil {
		return err
	}
	groups, err := remote.MapGroups(groupRecs)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.userID == 0 {
		return nil
	}
	e.notes.Reset(page)
	e.links.Reset(links)
	e.files.Reset(fileItems)
	e.groups.Reset(groups)
	e.cursor = cursor
	e.hasMore = hasMore
	ts := e.now()
	e.lastSync = ts
	e.lastChange = ts
	e.status = StatusSuccess
	return nil
}

// finishMutation records a successful mutation and notifies the other
// sessions. Called with the lock held; the publish itself happens after
// the caller releases it.
func (e *Engine) finishMutation() (broadcast.Message, int64) {
	ts := e.now()
	e.lastSync = ts
	e.lastChange = ts
	e.lastSeenBroadcast = ts
	e.status = StatusSuccess
	return broadcast.Message{
		Type:      broadcast.TypeContentUpdated,
		Timestamp: ts,
		UserID:    e.userID,
	}, e.userID
}

func (e *Engine) publish(ctx context.Context, msg broadcast.Message, userID int64) {
	e.bus.Publish(msg)
	if err := e.durable.SetLastBroadcast(ctx, userID, msg.Timestamp); err != nil {
		e.logger.Warn("Failed to persist broadcast timestamp",
			zap.Error(err),
			zap.Int64("user_id", userID))
	}
}
