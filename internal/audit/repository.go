// Package audit persists the command log: one row per dispatched protocol
// request, queryable by session and command.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/jsonwp-core/internal/jsonwp"
)

// Page size limits for List.
const (
	defaultLimit = 50
	maxLimit     = 200
)

// timeFormat is fixed-width so created_at sorts correctly as text.
const timeFormat = "2006-01-02T15:04:05.000000Z"

// Entry is a single command log row.
type Entry struct {
	ID             string    `json:"id"`
	Command        string    `json:"command"`
	Method         string    `json:"method"`
	Path           string    `json:"path"`
	SessionID      string    `json:"session_id,omitempty"`
	HTTPStatus     int       `json:"http_status"`
	ProtocolStatus int       `json:"protocol_status"`
	Proxied        bool      `json:"proxied"`
	DurationMS     float64   `json:"duration_ms"`
	Error          string    `json:"error,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// EntryFromEvent converts a dispatcher event into a log row.
func EntryFromEvent(ev jsonwp.CommandEvent) *Entry {
	return &Entry{
		Command:        ev.Command,
		Method:         ev.Method,
		Path:           ev.Path,
		SessionID:      ev.SessionID,
		HTTPStatus:     ev.HTTPStatus,
		ProtocolStatus: ev.ProtocolStatus,
		Proxied:        ev.Proxied,
		DurationMS:     float64(ev.Duration) / float64(time.Millisecond),
		Error:          ev.Error,
		CreatedAt:      ev.Time,
	}
}

// Filter controls which entries List returns.
type Filter struct {
	Command    string // optional: exact command name
	SessionID  string // optional: exact session token
	FailedOnly bool   // only entries with a non-2xx HTTP status
	Limit      int    // default 50, max 200
	Offset     int
}

// ListResult contains one page of entries.
type ListResult struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

// Repository defines the command log operations.
type Repository interface {
	Create(ctx context.Context, entry *Entry) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository stores the command log in SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a command log repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts an entry. The ID and CreatedAt are generated if empty.
func (r *SQLiteRepository) Create(ctx context.Context, entry *Entry) error {
	if entry.ID == "" {
		entry.ID = "cmd-" + uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO command_log (id, command, method, path, session_id, http_status,
		     protocol_status, proxied, duration_ms, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Command, entry.Method, entry.Path,
		nullableString(entry.SessionID), entry.HTTPStatus, entry.ProtocolStatus,
		boolToInt(entry.Proxied), entry.DurationMS, nullableString(entry.Error),
		entry.CreatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting command log entry: %w", err)
	}
	return nil
}

// nullableString maps "" to NULL for nullable TEXT columns.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// List returns entries matching filter, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any
	if filter.Command != "" {
		conditions = append(conditions, "command = ?")
		args = append(args, filter.Command)
	}
	if filter.SessionID != "" {
		conditions = append(conditions, "session_id = ?")
		args = append(args, filter.SessionID)
	}
	if filter.FailedOnly {
		conditions = append(conditions, "(http_status < 200 OR http_status > 299)")
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := "SELECT COUNT(*) FROM command_log " + where //nolint:gosec // WHERE built from parameterised conditions
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting command log: %w", err)
	}

	query := "SELECT id, command, method, path, session_id, http_status, protocol_status, proxied, duration_ms, error, created_at " +
		"FROM command_log " + where + " ORDER BY created_at DESC, id LIMIT ? OFFSET ?" //nolint:gosec // WHERE built from parameterised conditions
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying command log: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var sessionID, errText sql.NullString
		var proxied int
		var createdAt string

		if err := rows.Scan(&e.ID, &e.Command, &e.Method, &e.Path, &sessionID, &e.HTTPStatus,
			&e.ProtocolStatus, &proxied, &e.DurationMS, &errText, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning command log entry: %w", err)
		}
		e.SessionID = sessionID.String
		e.Error = errText.String
		e.Proxied = proxied != 0

		t, err := time.Parse(timeFormat, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing command log timestamp %q: %w", createdAt, err)
		}
		e.CreatedAt = t

		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating command log: %w", err)
	}

	return &ListResult{
		Entries: entries,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}, nil
}
