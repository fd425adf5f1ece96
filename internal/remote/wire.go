package remote

import (
	"fmt"
	"time"

	"github.com/xaenox/notekeep/internal/models"
)

// Wire records mirror the server representation. They are converted to
// working types by the Map* functions below and nowhere else; shape
// problems are rejected at this boundary so the rest of the engine can
// trust its inputs.

type NoteRecord struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"user_id"`
	Content   string    `json:"content"`
	Title     string    `json:"title,omitempty"`
	GroupID   *string   `json:"group_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type LinkRecord struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"user_id"`
	URL       string    `json:"url"`
	Title     string    `json:"title,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type FileRecord struct {
	ID           string    `json:"id"`
	UserID       int64     `json:"user_id"`
	Name         string    `json:"name"`
	MimeType     string    `json:"mime_type"`
	URL          string    `json:"url"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty"`
	Size         int64     `json:"size"`
	UploadedAt   time.Time `json:"uploaded_at"`
}

type GroupRecord struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"user_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func validateRecord(kind, id string, userID int64, createdAt time.Time) error {
	if id == "" {
		return fmt.Errorf("%s record with empty id", kind)
	}
	if userID <= 0 {
		return fmt.Errorf("%s record %s with invalid owner %d", kind, id, userID)
	}
	if createdAt.IsZero() {
		return fmt.Errorf("%s record %s with zero created_at", kind, id)
	}
	return nil
}

// MapNote converts a wire note into its working representation.
func MapNote(rec NoteRecord) (models.Note, error) {
	if err := validateRecord("note", rec.ID, rec.UserID, rec.CreatedAt); err != nil {
		return models.Note{}, err
	}
	updated := rec.UpdatedAt
	if updated.IsZero() {
		updated = rec.CreatedAt
	}
	var groupID *string
	if rec.GroupID != nil && *rec.GroupID != "" {
		gid := *rec.GroupID
		groupID = &gid
	}
	return models.Note{
		ID:        rec.ID,
		UserID:    rec.UserID,
		Content:   rec.Content,
		Title:     rec.Title,
		GroupID:   groupID,
		CreatedAt: rec.CreatedAt.UTC(),
		UpdatedAt: updated.UTC(),
	}, nil
}

func MapLink(rec LinkRecord) (models.Link, error) {
	if err := validateRecord("link", rec.ID, rec.UserID, rec.CreatedAt); err != nil {
		return models.Link{}, err
	}
	if rec.URL == "" {
		return models.Link{}, fmt.Errorf("link record %s with empty url", rec.ID)
	}
	return models.Link{
		ID:        rec.ID,
		UserID:    rec.UserID,
		URL:       rec.URL,
		Title:     rec.Title,
		CreatedAt: rec.CreatedAt.UTC(),
	}, nil
}

func MapFile(rec FileRecord) (models.File, error) {
	if err := validateRecord("file", rec.ID, rec.UserID, rec.UploadedAt); err != nil {
		return models.File{}, err
	}
	if rec.Name == "" {
		return models.File{}, fmt.Errorf("file record %s with empty name", rec.ID)
	}
	return models.File{
		ID:           rec.ID,
		UserID:       rec.UserID,
		Name:         rec.Name,
		MimeType:     rec.MimeType,
		URL:          rec.URL,
		ThumbnailURL: rec.ThumbnailURL,
		Size:         rec.Size,
		UploadedAt:   rec.UploadedAt.UTC(),
	}, nil
}

func MapGroup(rec GroupRecord) (models.Group, error) {
	if err := validateRecord("group", rec.ID, rec.UserID, rec.CreatedAt); err != nil {
		return models.Group{}, err
	}
	if rec.Name == "" {
		return models.Group{}, fmt.Errorf("group record %s with empty name", rec.ID)
	}
	updated := rec.UpdatedAt
	if updated.IsZero() {
		updated = rec.CreatedAt
	}
	return models.Group{
		ID:        rec.ID,
		UserID:    rec.UserID,
		Name:      rec.Name,
		CreatedAt: rec.CreatedAt.UTC(),
		UpdatedAt: updated.UTC(),
	}, nil
}

// MapNotes maps a page of wire notes, failing on the first bad record.
func MapNotes(recs []NoteRecord) ([]models.Note, error) {
	out := make([]models.Note, 0, len(recs))
	for _, rec := range recs {
		n, err := MapNote(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func MapLinks(recs []LinkRecord) ([]models.Link, error) {
	out := make([]models.Link, 0, len(recs))
	for _, rec := range recs {
		l, err := MapLink(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

func MapFiles(recs []FileRecord) ([]models.File, error) {
	out := make([]models.File, 0, len(recs))
	for _, rec := range recs {
		f, err := MapFile(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func MapGroups(recs []GroupRecord) ([]models.Group, error) {
	out := make([]models.Group, 0, len(recs))
	for _, rec := range recs {
		g, err := MapGroup(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}
