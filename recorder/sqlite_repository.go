package recorder

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "modernc.org/sqlite"

	"kintai/kintai"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteRepository implements Repository using modernc.org/sqlite (pure Go, no CGO).
type SQLiteRepository struct {
	db  *sql.DB
	ids *IDGenerator
}

// NewSQLiteRepository opens (or creates) the database at dbPath and applies migrations.
func NewSQLiteRepository(ctx context.Context, dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite has a single writer; the monitor and a CLI command may share the file.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	r := &SQLiteRepository{db: db, ids: NewIDGenerator()}
	if err := r.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

// Migrate runs all embedded SQL migration files in order.
func (r *SQLiteRepository) Migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at INTEGER NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()

		var count int
		if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count); err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := r.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := r.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename, applied_at) VALUES (?, ?)", name, time.Now().Unix()); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}
	return nil
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// --- Subjects ---

func (r *SQLiteRepository) SaveSubject(ctx context.Context, s Subject) error {
	if s.ID < 1 {
		return kintai.ErrInvalidSubject
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO subjects (id, name, created_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name`,
		int64(s.ID), s.Name, s.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("save subject: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetSubject(ctx context.Context, id kintai.SubjectID) (Subject, error) {
	var (
		s         Subject
		createdAt int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM subjects WHERE id = ?`, int64(id),
	).Scan(&s.ID, &s.Name, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Subject{}, fmt.Errorf("subject %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return Subject{}, fmt.Errorf("get subject: %w", err)
	}
	s.CreatedAt = time.Unix(0, createdAt).UTC()
	return s, nil
}

func (r *SQLiteRepository) ListSubjects(ctx context.Context) ([]Subject, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, created_at FROM subjects ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	defer rows.Close()

	var ss []Subject
	for rows.Next() {
		var (
			s         Subject
			createdAt int64
		)
		if err := rows.Scan(&s.ID, &s.Name, &createdAt); err != nil {
			return nil, fmt.Errorf("scan subject: %w", err)
		}
		s.CreatedAt = time.Unix(0, createdAt).UTC()
		ss = append(ss, s)
	}
	return ss, rows.Err()
}

// DeleteSubject also removes workdays and events stored without a subject record.
func (r *SQLiteRepository) DeleteSubject(ctx context.Context, id kintai.SubjectID) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var deleted int64
	for _, q := range []string{
		`DELETE FROM subjects WHERE id = ?`,
		`DELETE FROM workdays WHERE subject_id = ?`,
		`DELETE FROM events WHERE subject_id = ?`,
	} {
		res, err := tx.ExecContext(ctx, q, int64(id))
		if err != nil {
			return fmt.Errorf("delete subject: %w", err)
		}
		n, _ := res.RowsAffected()
		deleted += n
	}
	if deleted == 0 {
		return fmt.Errorf("subject %d: %w", id, ErrNotFound)
	}
	return tx.Commit()
}

// --- Workdays ---

func (r *SQLiteRepository) SaveWorkday(ctx context.Context, w Workday) error {
	if err := w.Validate(); err != nil {
		return err
	}
	windows, err := json.Marshal(w.Windows)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO workdays (subject_id, date, working_hours, break_hours, windows) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(subject_id, date) DO UPDATE SET
			working_hours = excluded.working_hours,
			break_hours = excluded.break_hours,
			windows = excluded.windows`,
		int64(w.SubjectID), string(w.Date), w.WorkingHours, w.BreakHours, string(windows),
	)
	if err != nil {
		return fmt.Errorf("save workday: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetWorkday(ctx context.Context, id kintai.SubjectID, date kintai.Date) (*Workday, error) {
	w := &Workday{SubjectID: id, Date: date}
	var windows string
	err := r.db.QueryRowContext(ctx,
		`SELECT working_hours, break_hours, windows FROM workdays WHERE subject_id = ? AND date = ?`,
		int64(id), string(date),
	).Scan(&w.WorkingHours, &w.BreakHours, &windows)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get workday: %w", err)
	}
	if err := json.Unmarshal([]byte(windows), &w.Windows); err != nil {
		return nil, fmt.Errorf("decode windows: %w", err)
	}
	return w, nil
}

// --- Events ---

func (r *SQLiteRepository) AppendEvent(ctx context.Context, e *Event) error {
	if err := e.Kind.Validate(); err != nil {
		return err
	}
	e.At = e.At.UTC()
	e.RecordedAt = time.Now().UTC()
	e.ID = r.ids.New(e.RecordedAt)

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO events (id, subject_id, date, kind, at, recorded_at) VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, int64(e.SubjectID), string(e.Date), string(e.Kind), e.At.UnixNano(), e.RecordedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ListEvents(ctx context.Context, id kintai.SubjectID, date kintai.Date) ([]Event, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, subject_id, date, kind, at, recorded_at FROM events
		WHERE subject_id = ? AND date = ? ORDER BY at, id`,
		int64(id), string(date),
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var es []Event
	for rows.Next() {
		var (
			e              Event
			at, recordedAt int64
		)
		if err := rows.Scan(&e.ID, &e.SubjectID, &e.Date, &e.Kind, &at, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.At = time.Unix(0, at).UTC()
		e.RecordedAt = time.Unix(0, recordedAt).UTC()
		es = append(es, e)
	}
	return es, rows.Err()
}

func (r *SQLiteRepository) DeleteEvent(ctx context.Context, id kintai.SubjectID, date kintai.Date, eventID string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM events WHERE id = ? AND subject_id = ? AND date = ?`,
		eventID, int64(id), string(date),
	)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("event %s: %w", eventID, ErrNotFound)
	}
	return nil
}
