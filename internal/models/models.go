package models

import "time"

// Note is the client-side working representation of a note. The ID is
// either a server-issued id or a provisional local id (see IsLocalID).
type Note struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"user_id"`
	Content   string    `json:"content"`
	Title     string    `json:"title,omitempty"`
	GroupID   *string   `json:"group_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Link struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"user_id"`
	URL       string    `json:"url"`
	Title     string    `json:"title,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// File holds metadata only; content lives behind the URL in the
// file-storage backend. Rename changes Name and nothing else.
type File struct {
	ID           string    `json:"id"`
	UserID       int64     `json:"user_id"`
	Name         string    `json:"name"`
	MimeType     string    `json:"mime_type"`
	URL          string    `json:"url"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty"`
	Size         int64     `json:"size"`
	UploadedAt   time.Time `json:"uploaded_at"`
}

type Group struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"user_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (n Note) RecordID() string  { return n.ID }
func (l Link) RecordID() string  { return l.ID }
func (f File) RecordID() string  { return f.ID }
func (g Group) RecordID() string { return g.ID }
