package remote

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

//go:embed migrations.sql
var migrations embed.FS

type DatabaseConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
	UseInMemory bool
}

// PostgresRemote is the production server of record. It also carries the
// durable per-user last-broadcast timestamp (broadcast.DurableStore).
type PostgresRemote struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresRemote(config DatabaseConfig, logger *zap.Logger) (*PostgresRemote, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %v", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error connecting to the database: %v", err)
	}

	r := &PostgresRemote{db: db, logger: logger}

	if err := r.initializeSchema(); err != nil {
		return nil, fmt.Errorf("error initializing database schema: %v", err)
	}

	return r, nil
}

func (r *PostgresRemote) initializeSchema() error {
	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %v", err)
	}

	_, err = r.db.Exec(string(migrationSQL))
	if err != nil {
		return fmt.Errorf("error executing migrations: %v", err)
	}

	return nil
}

func (r *PostgresRemote) Close() error {
	return r.db.Close()
}

func (r *PostgresRemote) ListNotes(ctx context.Context, userID int64, pageSize int, cursor *time.Time, groupFilter *string) ([]NoteRecord, error) {
	query := `
		SELECT id, user_id, content, title, group_id, created_at, updated_at
		FROM notes
		WHERE user_id = $1
		  AND ($2::timestamptz IS NULL OR created_at < $2)
		  AND ($3::uuid IS NULL OR group_id = $3)
		ORDER BY created_at DESC
		LIMIT $4`

	rows, err := r.db.QueryContext(ctx, query, userID, cursor, groupFilter, pageSize)
	if err != nil {
		return nil, fmt.Errorf("error querying notes: %v", err)
	}
	defer rows.Close()

	var notes []NoteRecord
	for rows.Next() {
		var rec NoteRecord
		var groupID sql.NullString
		err := rows.Scan(
			&rec.ID,
			&rec.UserID,
			&rec.Content,
			&rec.Title,
			&groupID,
			&rec.CreatedAt,
			&rec.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("error scanning note: %v", err)
		}
		if groupID.Valid {
			rec.GroupID = &groupID.String
		}
		notes = append(notes, rec)
	}

	return notes, rows.Err()
}

func (r *PostgresRemote) CreateNote(ctx context.Context, userID int64, content string, title string, clientTS *time.Time, groupID *string) (NoteRecord, error) {
	query := `
		INSERT INTO notes (user_id, content, title, group_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()), COALESCE($5, now()))
		RETURNING id, user_id, content, title, group_id, created_at, updated_at`

	var rec NoteRecord
	var gid sql.NullString
	err := r.db.QueryRowContext(ctx, query, userID, content, title, groupID, clientTS).Scan(
		&rec.ID, &rec.UserID, &rec.Content, &rec.Title, &gid, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return NoteRecord{}, fmt.Errorf("error creating note: %v", err)
	}
	if gid.Valid {
		rec.GroupID = &gid.String
	}
	return rec, nil
}

func (r *PostgresRemote) UpdateNote(ctx context.Context, id string, userID int64, content string, title string, clientTS *time.Time) (NoteRecord, error) {
	query := `
		UPDATE notes
		SET content = $1, title = $2, updated_at = COALESCE($3, now())
		WHERE id = $4 AND user_id = $5
		RETURNING id, user_id, content, title, group_id, created_at, updated_at`

	var rec NoteRecord
	var gid sql.NullString
	err := r.db.QueryRowContext(ctx, query, content, title, clientTS, id, userID).Scan(
		&rec.ID, &rec.UserID, &rec.Content, &rec.Title, &gid, &rec.CreatedAt, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return NoteRecord{}, fmt.Errorf("note not found")
	}
	if err != nil {
		return NoteRecord{}, fmt.Errorf("error updating note: %v", err)
	}
	if gid.Valid {
		rec.GroupID = &gid.String
	}
	return rec, nil
}

func (r *PostgresRemote) DeleteNote(ctx context.Context, id string, userID int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM notes WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("error deleting note: %v", err)
	}
	return requireRowsAffected(result, "note")
}

func (r *PostgresRemote) MoveNoteToGroup(ctx context.Context, noteID string, userID int64, groupID *string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE notes SET group_id = $1, updated_at = now() WHERE id = $2 AND user_id = $3`,
		groupID, noteID, userID)
	if err != nil {
		return fmt.Errorf("error moving note: %v", err)
	}
	return requireRowsAffected(result, "note")
}

func (r *PostgresRemote) ListLinks(ctx context.Context, userID int64) ([]LinkRecord, error) {
	query := `
		SELECT id, user_id, url, title, created_at
		FROM links
		WHERE user_id = $1
		ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("error querying links: %v", err)
	}
	defer rows.Close()

	var links []LinkRecord
	for rows.Next() {
		var rec LinkRecord
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.URL, &rec.Title, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning link: %v", err)
		}
		links = append(links, rec)
	}

	return links, rows.Err()
}

func (r *PostgresRemote) CreateLink(ctx context.Context, userID int64, url, title string) (LinkRecord, error) {
	query := `
		INSERT INTO links (user_id, url, title)
		VALUES ($1, $2, $3)
		RETURNING id, user_id, url, title, created_at`

	var rec LinkRecord
	err := r.db.QueryRowContext(ctx, query, userID, url, title).Scan(
		&rec.ID, &rec.UserID, &rec.URL, &rec.Title, &rec.CreatedAt)
	if err != nil {
		return LinkRecord{}, fmt.Errorf("error creating link: %v", err)
	}
	return rec, nil
}

func (r *PostgresRemote) DeleteLink(ctx context.Context, id string, userID int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM links WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("error deleting link: %v", err)
	}
	return requireRowsAffected(result, "link")
}

func (r *PostgresRemote) ListFiles(ctx context.Context, userID int64) ([]FileRecord, error) {
	query := `
		SELECT id, user_id, name, mime_type, url, thumbnail_url, size, uploaded_at
		FROM files
		WHERE user_id = $1
		ORDER BY uploaded_at DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("error querying files: %v", err)
	}
	defer rows.Close()

	var files []FileRecord
	for rows.Next() {
		var rec FileRecord
		err := rows.Scan(&rec.ID, &rec.UserID, &rec.Name, &rec.MimeType,
			&rec.URL, &rec.ThumbnailURL, &rec.Size, &rec.UploadedAt)
		if err != nil {
			return nil, fmt.Errorf("error scanning file: %v", err)
		}
		files = append(files, rec)
	}

	return files, rows.Err()
}

func (r *PostgresRemote) CreateFile(ctx context.Context, userID int64, name, mimeType, url, thumbnailURL string, size int64) (FileRecord, error) {
	query := `
		INSERT INTO files (user_id, name, mime_type, url, thumbnail_url, size)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, user_id, name, mime_type, url, thumbnail_url, size, uploaded_at`

	var rec FileRecord
	err := r.db.QueryRowContext(ctx, query, userID, name, mimeType, url, thumbnailURL, size).Scan(
		&rec.ID, &rec.UserID, &rec.Name, &rec.MimeType, &rec.URL, &rec.ThumbnailURL, &rec.Size, &rec.UploadedAt)
	if err != nil {
		return FileRecord{}, fmt.Errorf("error creating file: %v", err)
	}
	return rec, nil
}

func (r *PostgresRemote) RenameFile(ctx context.Context, id string, userID int64, name string) (FileRecord, error) {
	query := `
		UPDATE files
		SET name = $1
		WHERE id = $2 AND user_id = $3
		RETURNING id, user_id, name, mime_type, url, thumbnail_url, size, uploaded_at`

	var rec FileRecord
	err := r.db.QueryRowContext(ctx, query, name, id, userID).Scan(
		&rec.ID, &rec.UserID, &rec.Name, &rec.MimeType, &rec.URL, &rec.ThumbnailURL, &rec.Size, &rec.UploadedAt)
	if err == sql.ErrNoRows {
		return FileRecord{}, fmt.Errorf("file not found")
	}
	if err != nil {
		return FileRecord{}, fmt.Errorf("error renaming file: %v", err)
	}
	return rec, nil
}

func (r *PostgresRemote) DeleteFile(ctx context.Context, id string, userID int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM files WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("error deleting file: %v", err)
	}
	return requireRowsAffected(result, "file")
}

func (r *PostgresRemote) ListGroups(ctx context.Context, userID int64) ([]GroupRecord, error) {
	query := `
		SELECT id, user_id, name, created_at, updated_at
		FROM groups
		WHERE user_id = $1
		ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("error querying groups: %v", err)
	}
	defer rows.Close()

	var groups []GroupRecord
	for rows.Next() {
		var rec GroupRecord
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Name, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("error scanning group: %v", err)
		}
		groups = append(groups, rec)
	}

	return groups, rows.Err()
}

func (r *PostgresRemote) CreateGroup(ctx context.Context, userID int64, name string) (GroupRecord, error) {
	query := `
		INSERT INTO groups (user_id, name)
		VALUES ($1, $2)
		RETURNING id, user_id, name, created_at, updated_at`

	var rec GroupRecord
	err := r.db.QueryRowContext(ctx, query, userID, name).Scan(
		&rec.ID, &rec.UserID, &rec.Name, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return GroupRecord{}, fmt.Errorf("error creating group: %v", err)
	}
	return rec, nil
}

// DeleteGroup relies on the ON DELETE SET NULL constraint to detach member
// notes instead of deleting them.
func (r *PostgresRemote) DeleteGroup(ctx context.Context, id string, userID int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM groups WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("error deleting group: %v", err)
	}
	return requireRowsAffected(result, "group")
}

func (r *PostgresRemote) HasChangesSince(ctx context.Context, userID int64, since time.Time) (bool, error) {
	query := `
		SELECT EXISTS (SELECT 1 FROM notes WHERE user_id = $1 AND updated_at > $2)
		    OR EXISTS (SELECT 1 FROM links WHERE user_id = $1 AND created_at > $2)
		    OR EXISTS (SELECT 1 FROM files WHERE user_id = $1 AND uploaded_at > $2)
		    OR EXISTS (SELECT 1 FROM groups WHERE user_id = $1 AND updated_at > $2)`

	var changed bool
	if err := r.db.QueryRowContext(ctx, query, userID, since).Scan(&changed); err != nil {
		return false, fmt.Errorf("error probing for changes: %v", err)
	}
	return changed, nil
}

// SetLastBroadcast persists the per-user broadcast timestamp so contexts
// opened later can detect staleness without having seen the live message.
func (r *PostgresRemote) SetLastBroadcast(ctx context.Context, userID int64, ts time.Time) error {
	query := `
		INSERT INTO user_sync_state (user_id, last_broadcast_at)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET last_broadcast_at = EXCLUDED.last_broadcast_at`

	if _, err := r.db.ExecContext(ctx, query, userID, ts); err != nil {
		return fmt.Errorf("error saving broadcast timestamp: %v", err)
	}
	return nil
}

func (r *PostgresRemote) LastBroadcast(ctx context.Context, userID int64) (time.Time, error) {
	var ts time.Time
	err := r.db.QueryRowContext(ctx,
		`SELECT last_broadcast_at FROM user_sync_state WHERE user_id = $1`, userID).Scan(&ts)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("error reading broadcast timestamp: %v", err)
	}
	return ts, nil
}

func requireRowsAffected(result sql.Result, kind string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected: %v", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s not found", kind)
	}
	return nil
}
