package record

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// #region schema

const schema = `
CREATE TABLE IF NOT EXISTS content_records (
	id                  TEXT PRIMARY KEY,
	created_at          TEXT NOT NULL,
	published_at        TEXT,
	mode                TEXT NOT NULL,
	title_style         TEXT NOT NULL,
	hook_style          TEXT NOT NULL,
	category            TEXT NOT NULL,
	first_score         REAL,
	final_score         REAL,
	refine_count        INTEGER NOT NULL DEFAULT 0,
	predicted_retention REAL NOT NULL DEFAULT 0,
	actual_retention    REAL,
	views               INTEGER,
	swipe_rate          REAL,
	eligible            INTEGER NOT NULL DEFAULT 0,
	status              TEXT NOT NULL DEFAULT 'pending'
);

CREATE INDEX IF NOT EXISTS idx_content_records_signal
ON content_records(eligible, status, published_at);
`

// #endregion

// #region time-format

// TimeLayout is the storage format for every timestamp column. Unlike
// RFC3339Nano it keeps trailing zeros, so the stored strings are fixed
// width and lexicographic comparison in SQL matches chronological order
// even across rows that differ only within a second.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

// FormatTime renders an instant for storage.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// #endregion

// #region store-struct

// Store manages content records in SQLite.
type Store struct {
	db *sql.DB
}

// #endregion

// #region constructor

// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use by other packages (e.g. the
// weight store, which shares the same database file).
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion

// #region insert

// Insert writes a new content record.
func (s *Store) Insert(rec ContentRecord) error {
	if rec.Status == "" {
		rec.Status = StatusPending
	}
	_, err := s.db.Exec(
		`INSERT INTO content_records
		 (id, created_at, published_at, mode, title_style, hook_style, category,
		  first_score, final_score, refine_count, predicted_retention,
		  actual_retention, views, swipe_rate, eligible, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		FormatTime(rec.CreatedAt),
		nullTime(rec.PublishedAt),
		rec.Mode, rec.TitleStyle, rec.HookStyle, rec.Category,
		nullFloat(rec.FirstScore), nullFloat(rec.FinalScore),
		rec.RefineCount, rec.PredictedRetention,
		nullFloat(rec.ActualRetention), nullInt(rec.Views), nullFloat(rec.SwipeRate),
		boolToInt(rec.Eligible), string(rec.Status),
	)
	if err != nil {
		return fmt.Errorf("insert record %s: %w", rec.ID, err)
	}
	return nil
}

// #endregion

// #region get

// Get retrieves a record by id.
func (s *Store) Get(id string) (ContentRecord, error) {
	row := s.db.QueryRow(selectColumns+` FROM content_records WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if err != nil {
		return ContentRecord{}, fmt.Errorf("get record %s: %w", id, err)
	}
	return rec, nil
}

// #endregion

// #region mark-outcome

// MarkComplete records the measured outcome for a record and transitions it
// to complete. Only pending and linked records can transition; the outcome
// fields are written together so actual retention is never present on a
// record that is not complete.
func (s *Store) MarkComplete(id string, retention float64, views int64, swipeRate float64, fetchedAt time.Time) error {
	res, err := s.db.Exec(
		`UPDATE content_records
		 SET actual_retention = ?, views = ?, swipe_rate = ?, status = ?,
		     published_at = COALESCE(published_at, ?)
		 WHERE id = ? AND status IN (?, ?)`,
		retention, views, swipeRate, string(StatusComplete),
		FormatTime(fetchedAt),
		id, string(StatusPending), string(StatusLinked),
	)
	if err != nil {
		return fmt.Errorf("mark complete %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark complete %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("mark complete %s: record not found or not pending/linked", id)
	}
	return nil
}

// MarkLinked transitions a pending record to linked and stamps the publish time.
func (s *Store) MarkLinked(id string, publishedAt time.Time) error {
	_, err := s.db.Exec(
		`UPDATE content_records SET status = ?, published_at = ? WHERE id = ? AND status = ?`,
		string(StatusLinked), FormatTime(publishedAt), id, string(StatusPending),
	)
	if err != nil {
		return fmt.Errorf("mark linked %s: %w", id, err)
	}
	return nil
}

// MarkFailed transitions a record to failed after the measurement retry
// period is exhausted. Outcome fields stay null.
func (s *Store) MarkFailed(id string) error {
	_, err := s.db.Exec(
		`UPDATE content_records SET status = ? WHERE id = ? AND status IN (?, ?)`,
		string(StatusFailed), id, string(StatusPending), string(StatusLinked),
	)
	if err != nil {
		return fmt.Errorf("mark failed %s: %w", id, err)
	}
	return nil
}

// #endregion

// #region list-signal

// SignalSet is the result of a learning-signal query: the usable records
// plus a tally of rows that matched the filter but were missing outcome
// fields and had to be excluded.
type SignalSet struct {
	Records []ContentRecord
	Skipped int
}

// ListEligibleComplete returns eligible, complete records published within
// the window ending at now, newest first. Records published after now are
// out of the window, which matters when cycles are replayed at past
// instants. Malformed rows (complete but missing outcome fields) are
// excluded and counted in Skipped.
func (s *Store) ListEligibleComplete(now time.Time, window time.Duration) (SignalSet, error) {
	cutoff := FormatTime(now.Add(-window))
	rows, err := s.db.Query(
		selectColumns+`
		 FROM content_records
		 WHERE eligible = 1 AND status = ?
		   AND COALESCE(published_at, created_at) >= ?
		   AND COALESCE(published_at, created_at) <= ?
		 ORDER BY COALESCE(published_at, created_at) DESC`,
		string(StatusComplete), cutoff, FormatTime(now),
	)
	if err != nil {
		return SignalSet{}, fmt.Errorf("list eligible complete: %w", err)
	}
	defer rows.Close()

	var set SignalSet
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return SignalSet{}, fmt.Errorf("scan record: %w", err)
		}
		if !rec.HasOutcome() {
			set.Skipped++
			continue
		}
		set.Records = append(set.Records, rec)
	}
	return set, rows.Err()
}

// #endregion

// #region list-recent

// ListRecent returns the most recent records regardless of status, newest first.
func (s *Store) ListRecent(limit int) ([]ContentRecord, error) {
	rows, err := s.db.Query(
		selectColumns+` FROM content_records ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list recent: %w", err)
	}
	defer rows.Close()

	var records []ContentRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// StatusCounts returns the number of records per lifecycle status.
func (s *Store) StatusCounts() (map[Status]int, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM content_records GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("status counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var st string
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[Status(st)] = n
	}
	return counts, rows.Err()
}

// #endregion

// #region scan

const selectColumns = `SELECT id, created_at, published_at, mode, title_style, hook_style, category,
	first_score, final_score, refine_count, predicted_retention,
	actual_retention, views, swipe_rate, eligible, status`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (ContentRecord, error) {
	var rec ContentRecord
	var createdStr string
	var publishedStr sql.NullString
	var firstScore, finalScore, actual, swipe sql.NullFloat64
	var views sql.NullInt64
	var eligible int
	var status string

	err := row.Scan(
		&rec.ID, &createdStr, &publishedStr,
		&rec.Mode, &rec.TitleStyle, &rec.HookStyle, &rec.Category,
		&firstScore, &finalScore, &rec.RefineCount, &rec.PredictedRetention,
		&actual, &views, &swipe, &eligible, &status,
	)
	if err != nil {
		return ContentRecord{}, err
	}

	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	if publishedStr.Valid {
		t, err := time.Parse(time.RFC3339Nano, publishedStr.String)
		if err == nil {
			rec.PublishedAt = &t
		}
	}
	if firstScore.Valid {
		rec.FirstScore = &firstScore.Float64
	}
	if finalScore.Valid {
		rec.FinalScore = &finalScore.Float64
	}
	if actual.Valid {
		rec.ActualRetention = &actual.Float64
	}
	if views.Valid {
		rec.Views = &views.Int64
	}
	if swipe.Valid {
		rec.SwipeRate = &swipe.Float64
	}
	rec.Eligible = eligible != 0
	rec.Status = Status(status)
	return rec, nil
}

// #endregion

// #region helpers

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return FormatTime(*t)
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func nullInt(i *int64) any {
	if i == nil {
		return nil
	}
	return *i
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// #endregion
