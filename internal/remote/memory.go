package remote

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRemote is an in-memory server of record. It backs the
// use_in_memory configuration path and doubles as the fake collaborator in
// engine tests.
type MemoryRemote struct {
	mu         sync.RWMutex
	notes      map[string]NoteRecord
	links      map[string]LinkRecord
	files      map[string]FileRecord
	groups     map[string]GroupRecord
	broadcasts map[int64]time.Time

	// Now is the clock used for server-issued timestamps; tests override it.
	Now func() time.Time
}

func NewMemoryRemote() *MemoryRemote {
	return &MemoryRemote{
		notes:      make(map[string]NoteRecord),
		links:      make(map[string]LinkRecord),
		files:      make(map[string]FileRecord),
		groups:     make(map[string]GroupRecord),
		broadcasts: make(map[int64]time.Time),
		Now:        time.Now,
	}
}

func (m *MemoryRemote) Close() error { return nil }

func (m *MemoryRemote) ListNotes(ctx context.Context, userID int64, pageSize int, cursor *time.Time, groupFilter *string) ([]NoteRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var notes []NoteRecord
	for _, rec := range m.notes {
		if rec.UserID != userID {
			continue
		}
		if cursor != nil && !rec.CreatedAt.Before(*cursor) {
			continue
		}
		if groupFilter != nil && (rec.GroupID == nil || *rec.GroupID != *groupFilter) {
			continue
		}
		notes = append(notes, rec)
	}
	sort.Slice(notes, func(i, j int) bool {
		return notes[i].CreatedAt.After(notes[j].CreatedAt)
	})
	if pageSize > 0 && len(notes) > pageSize {
		notes = notes[:pageSize]
	}
	return notes, nil
}

func (m *MemoryRemote) CreateNote(ctx context.Context, userID int64, content string, title string, clientTS *time.Time, groupID *string) (NoteRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.Now()
	if clientTS != nil {
		now = *clientTS
	}
	rec := NoteRecord{
		ID:        uuid.New().String(),
		UserID:    userID,
		Content:   content,
		Title:     title,
		GroupID:   groupID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.notes[rec.ID] = rec
	return rec, nil
}

func (m *MemoryRemote) UpdateNote(ctx context.Context, id string, userID int64, content string, title string, clientTS *time.Time) (NoteRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.notes[id]
	if !ok || rec.UserID != userID {
		return NoteRecord{}, fmt.Errorf("note not found")
	}
	rec.Content = content
	rec.Title = title
	if clientTS != nil {
		rec.UpdatedAt = *clientTS
	} else {
		rec.UpdatedAt = m.Now()
	}
	m.notes[id] = rec
	return rec, nil
}

func (m *MemoryRemote) DeleteNote(ctx context.Context, id string, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.notes[id]
	if !ok || rec.UserID != userID {
		return fmt.Errorf("note not found")
	}
	delete(m.notes, id)
	return nil
}

func (m *MemoryRemote) MoveNoteToGroup(ctx context.Context, noteID string, userID int64, groupID *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.notes[noteID]
	if !ok || rec.UserID != userID {
		return fmt.Errorf("note not found")
	}
	rec.GroupID = groupID
	rec.UpdatedAt = m.Now()
	m.notes[noteID] = rec
	return nil
}

func (m *MemoryRemote) ListLinks(ctx context.Context, userID int64) ([]LinkRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var links []LinkRecord
	for _, rec := range m.links {
		if rec.UserID == userID {
			links = append(links, rec)
		}
	}
	sort.Slice(links, func(i, j int) bool {
		return links[i].CreatedAt.After(links[j].CreatedAt)
	})
	return links, nil
}

func (m *MemoryRemote) CreateLink(ctx context.Context, userID int64, url, title string) (LinkRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := LinkRecord{
		ID:        uuid.New().String(),
		UserID:    userID,
		URL:       url,
		Title:     title,
		CreatedAt: m.Now(),
	}
	m.links[rec.ID] = rec
	return rec, nil
}

func (m *MemoryRemote) DeleteLink(ctx context.Context, id string, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.links[id]
	if !ok || rec.UserID != userID {
		return fmt.Errorf("link not found")
	}
	delete(m.links, id)
	return nil
}

func (m *MemoryRemote) ListFiles(ctx context.Context, userID int64) ([]FileRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var files []FileRecord
	for _, rec := range m.files {
		if rec.UserID == userID {
			files = append(files, rec)
		}
	}
	sort.Slice(files, func(i, j int) bool {
		return files[i].UploadedAt.After(files[j].UploadedAt)
	})
	return files, nil
}

func (m *MemoryRemote) CreateFile(ctx context.Context, userID int64, name, mimeType, url, thumbnailURL string, size int64) (FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := FileRecord{
		ID:           uuid.New().String(),
		UserID:       userID,
		Name:         name,
		MimeType:     mimeType,
		URL:          url,
		ThumbnailURL: thumbnailURL,
		Size:         size,
		UploadedAt:   m.Now(),
	}
	m.files[rec.ID] = rec
	return rec, nil
}

func (m *MemoryRemote) RenameFile(ctx context.Context, id string, userID int64, name string) (FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.files[id]
	if !ok || rec.UserID != userID {
		return FileRecord{}, fmt.Errorf("file not found")
	}
	rec.Name = name
	m.files[id] = rec
	return rec, nil
}

func (m *MemoryRemote) DeleteFile(ctx context.Context, id string, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.files[id]
	if !ok || rec.UserID != userID {
		return fmt.Errorf("file not found")
	}
	delete(m.files, id)
	return nil
}

func (m *MemoryRemote) ListGroups(ctx context.Context, userID int64) ([]GroupRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var groups []GroupRecord
	for _, rec := range m.groups {
		if rec.UserID == userID {
			groups = append(groups, rec)
		}
	}
	sort.Slice(groups, func(i, j int) bool {
		return groups[i].CreatedAt.After(groups[j].CreatedAt)
	})
	return groups, nil
}

func (m *MemoryRemote) CreateGroup(ctx context.Context, userID int64, name string) (GroupRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.Now()
	rec := GroupRecord{
		ID:        uuid.New().String(),
		UserID:    userID,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.groups[rec.ID] = rec
	return rec, nil
}

func (m *MemoryRemote) DeleteGroup(ctx context.Context, id string, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.groups[id]
	if !ok || rec.UserID != userID {
		return fmt.Errorf("group not found")
	}
	delete(m.groups, id)

	// Detach member notes; they survive the group.
	for nid, note := range m.notes {
		if note.GroupID != nil && *note.GroupID == id {
			note.GroupID = nil
			note.UpdatedAt = m.Now()
			m.notes[nid] = note
		}
	}
	return nil
}

func (m *MemoryRemote) HasChangesSince(ctx context.Context, userID int64, since time.Time) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, rec := range m.notes {
		if rec.UserID == userID && rec.UpdatedAt.After(since) {
			return true, nil
		}
	}
	for _, rec := range m.links {
		if rec.UserID == userID && rec.CreatedAt.After(since) {
			return true, nil
		}
	}
	for _, rec := range m.files {
		if rec.UserID == userID && rec.UploadedAt.After(since) {
			return true, nil
		}
	}
	for _, rec := range m.groups {
		if rec.UserID == userID && rec.UpdatedAt.After(since) {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryRemote) SetLastBroadcast(ctx context.Context, userID int64, ts time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.broadcasts[userID] = ts
	return nil
}

func (m *MemoryRemote) LastBroadcast(ctx context.Context, userID int64) (time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.broadcasts[userID], nil
}
