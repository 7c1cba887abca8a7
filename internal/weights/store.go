package weights

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/danielpatrickdp/content-autopilot/internal/bandit"
	"github.com/danielpatrickdp/content-autopilot/internal/record"
)

// ErrStaleWrite is returned when a compare-and-swap commit loses to a
// concurrent update. The caller retries the whole dimension update from a
// fresh read; nothing is partially applied.
var ErrStaleWrite = errors.New("weights: stale write, state changed since read")

// #region schema

const schema = `
CREATE TABLE IF NOT EXISTS arm_states (
	dimension TEXT NOT NULL,
	arm       TEXT NOT NULL,
	weight    REAL NOT NULL,
	alpha     REAL NOT NULL DEFAULT 1,
	beta      REAL NOT NULL DEFAULT 1,
	min_bound REAL NOT NULL DEFAULT 0,
	max_bound REAL NOT NULL DEFAULT 1,
	PRIMARY KEY (dimension, arm)
);

CREATE TABLE IF NOT EXISTS dimension_versions (
	dimension  TEXT PRIMARY KEY,
	version    INTEGER NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS recovery_state (
	id              INTEGER PRIMARY KEY CHECK (id = 1),
	active          INTEGER NOT NULL DEFAULT 0,
	consecutive_low INTEGER NOT NULL DEFAULT 0,
	updated_at      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS weight_history (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	dimension   TEXT NOT NULL,
	version     INTEGER NOT NULL,
	old_weights TEXT NOT NULL,
	new_weights TEXT NOT NULL,
	action      TEXT NOT NULL,
	reason      TEXT,
	created_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_weight_history_lookup
ON weight_history(dimension, created_at);
`

// #endregion

// #region store-struct

// Store persists arm states, recovery state, and the update history.
// The engine and guardrail layer are the only writers.
type Store struct {
	db *sql.DB
}

// NewStore runs migrations against a shared database handle.
func NewStore(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate weights: %w", err)
	}
	return &Store{db: db}, nil
}

// #endregion

// #region seed

// SeedDefaults initializes a dimension's arms with default weights and
// bounds. Existing state is left untouched.
func (s *Store) SeedDefaults(d record.Dimension, defaults map[string]float64, bounds map[string]Bound) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var existing int
	if err := tx.QueryRow(
		`SELECT COUNT(*) FROM arm_states WHERE dimension = ?`, string(d),
	).Scan(&existing); err != nil {
		return fmt.Errorf("check existing: %w", err)
	}
	if existing > 0 {
		return nil
	}

	now := record.FormatTime(time.Now())
	for arm, w := range defaults {
		b := bounds[arm]
		if b.Max == 0 {
			b.Max = 1
		}
		if _, err := tx.Exec(
			`INSERT INTO arm_states (dimension, arm, weight, alpha, beta, min_bound, max_bound)
			 VALUES (?, ?, ?, 1, 1, ?, ?)`,
			string(d), arm, w, b.Min, b.Max,
		); err != nil {
			return fmt.Errorf("seed arm %s/%s: %w", d, arm, err)
		}
	}
	if _, err := tx.Exec(
		`INSERT INTO dimension_versions (dimension, version, updated_at) VALUES (?, 1, ?)
		 ON CONFLICT(dimension) DO NOTHING`,
		string(d), now,
	); err != nil {
		return fmt.Errorf("seed version: %w", err)
	}
	if _, err := tx.Exec(
		`INSERT INTO recovery_state (id, active, consecutive_low, updated_at) VALUES (1, 0, 0, ?)
		 ON CONFLICT(id) DO NOTHING`,
		now,
	); err != nil {
		return fmt.Errorf("seed recovery: %w", err)
	}
	return tx.Commit()
}

// #endregion

// #region get-dimension

// GetDimension reads a dimension's full state, including the version used
// for the compare-and-swap on commit.
func (s *Store) GetDimension(d record.Dimension) (DimensionState, error) {
	st := DimensionState{
		Dimension:  d,
		Weights:    make(map[string]float64),
		Posteriors: make(map[string]bandit.Posterior),
		Bounds:     make(map[string]Bound),
	}

	var updatedStr string
	err := s.db.QueryRow(
		`SELECT version, updated_at FROM dimension_versions WHERE dimension = ?`, string(d),
	).Scan(&st.Version, &updatedStr)
	if err != nil {
		return DimensionState{}, fmt.Errorf("get version %s: %w", d, err)
	}
	st.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedStr)

	rows, err := s.db.Query(
		`SELECT arm, weight, alpha, beta, min_bound, max_bound
		 FROM arm_states WHERE dimension = ?`, string(d),
	)
	if err != nil {
		return DimensionState{}, fmt.Errorf("get arms %s: %w", d, err)
	}
	defer rows.Close()

	for rows.Next() {
		var arm string
		var w, alpha, beta, lo, hi float64
		if err := rows.Scan(&arm, &w, &alpha, &beta, &lo, &hi); err != nil {
			return DimensionState{}, fmt.Errorf("scan arm: %w", err)
		}
		st.Weights[arm] = w
		st.Posteriors[arm] = bandit.Posterior{Alpha: alpha, Beta: beta}
		st.Bounds[arm] = Bound{Min: lo, Max: hi}
	}
	if err := rows.Err(); err != nil {
		return DimensionState{}, err
	}
	if len(st.Weights) == 0 {
		return DimensionState{}, fmt.Errorf("dimension %s has no arms", d)
	}
	return st, nil
}

// GetSelectionWeights returns the current selection probabilities for a
// dimension, keyed by arm.
func (s *Store) GetSelectionWeights(d record.Dimension) (map[string]float64, error) {
	st, err := s.GetDimension(d)
	if err != nil {
		return nil, err
	}
	return st.Weights, nil
}

// #endregion

// #region commit

// Commit writes new weights and posteriors for a dimension, guarded by an
// optimistic-concurrency check against the version the caller read. On
// ErrStaleWrite nothing is applied and the caller must re-read and retry.
// The history row is stamped with at, the caller's cycle instant, so that
// WeightsAt lookups line up with logical time under replayed cycles.
func (s *Store) Commit(read DimensionState, newWeights map[string]float64, newPosteriors map[string]bandit.Posterior, action, reason string, at time.Time) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	ts := record.FormatTime(at)
	res, err := tx.Exec(
		`UPDATE dimension_versions SET version = version + 1, updated_at = ?
		 WHERE dimension = ? AND version = ?`,
		ts, string(read.Dimension), read.Version,
	)
	if err != nil {
		return fmt.Errorf("bump version: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("bump version: %w", err)
	}
	if n == 0 {
		return ErrStaleWrite
	}

	for arm, w := range newWeights {
		p := newPosteriors[arm]
		if _, err := tx.Exec(
			`UPDATE arm_states SET weight = ?, alpha = ?, beta = ?
			 WHERE dimension = ? AND arm = ?`,
			w, p.Alpha, p.Beta, string(read.Dimension), arm,
		); err != nil {
			return fmt.Errorf("update arm %s/%s: %w", read.Dimension, arm, err)
		}
	}

	oldJSON, err := json.Marshal(read.Weights)
	if err != nil {
		return fmt.Errorf("marshal old weights: %w", err)
	}
	newJSON, err := json.Marshal(newWeights)
	if err != nil {
		return fmt.Errorf("marshal new weights: %w", err)
	}
	if _, err := tx.Exec(
		`INSERT INTO weight_history (dimension, version, old_weights, new_weights, action, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(read.Dimension), read.Version+1, string(oldJSON), string(newJSON),
		action, reason, ts,
	); err != nil {
		return fmt.Errorf("append history: %w", err)
	}

	return tx.Commit()
}

// #endregion

// #region recovery

// GetRecovery reads the process-wide recovery state.
func (s *Store) GetRecovery() (RecoveryState, error) {
	var st RecoveryState
	var active int
	var updatedStr string
	err := s.db.QueryRow(
		`SELECT active, consecutive_low, updated_at FROM recovery_state WHERE id = 1`,
	).Scan(&active, &st.ConsecutiveLow, &updatedStr)
	if errors.Is(err, sql.ErrNoRows) {
		return RecoveryState{}, nil
	}
	if err != nil {
		return RecoveryState{}, fmt.Errorf("get recovery: %w", err)
	}
	st.Active = active != 0
	st.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedStr)
	return st, nil
}

// SetRecovery persists the recovery state.
func (s *Store) SetRecovery(st RecoveryState) error {
	active := 0
	if st.Active {
		active = 1
	}
	_, err := s.db.Exec(
		`INSERT INTO recovery_state (id, active, consecutive_low, updated_at) VALUES (1, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET active = excluded.active,
		   consecutive_low = excluded.consecutive_low, updated_at = excluded.updated_at`,
		active, st.ConsecutiveLow, record.FormatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("set recovery: %w", err)
	}
	return nil
}

// #endregion

// #region history

// History returns the most recent committed updates for a dimension.
func (s *Store) History(d record.Dimension, limit int) ([]HistoryEntry, error) {
	rows, err := s.db.Query(
		`SELECT dimension, version, old_weights, new_weights, action, COALESCE(reason, ''), created_at
		 FROM weight_history WHERE dimension = ?
		 ORDER BY id DESC LIMIT ?`,
		string(d), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("history %s: %w", d, err)
	}
	defer rows.Close()
	return scanHistory(rows)
}

// WeightsAt reconstructs the weights in effect for a dimension at a past
// instant: the newest committed update at or before t. Before any history
// exists the current weights are returned.
func (s *Store) WeightsAt(d record.Dimension, t time.Time) (map[string]float64, error) {
	var newJSON string
	err := s.db.QueryRow(
		`SELECT new_weights FROM weight_history
		 WHERE dimension = ? AND created_at <= ?
		 ORDER BY id DESC LIMIT 1`,
		string(d), record.FormatTime(t),
	).Scan(&newJSON)
	if errors.Is(err, sql.ErrNoRows) {
		// No update had been committed yet: the earliest recorded old
		// weights (or current state) were in effect.
		err = s.db.QueryRow(
			`SELECT old_weights FROM weight_history WHERE dimension = ?
			 ORDER BY id ASC LIMIT 1`,
			string(d),
		).Scan(&newJSON)
		if errors.Is(err, sql.ErrNoRows) {
			return s.GetSelectionWeights(d)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("weights at %s: %w", d, err)
	}
	var w map[string]float64
	if err := json.Unmarshal([]byte(newJSON), &w); err != nil {
		return nil, fmt.Errorf("unmarshal weights: %w", err)
	}
	return w, nil
}

// PruneHistory keeps only the newest keep entries per dimension.
func (s *Store) PruneHistory(d record.Dimension, keep int) error {
	_, err := s.db.Exec(
		`DELETE FROM weight_history WHERE dimension = ? AND id NOT IN (
		   SELECT id FROM weight_history WHERE dimension = ? ORDER BY id DESC LIMIT ?
		 )`,
		string(d), string(d), keep,
	)
	if err != nil {
		return fmt.Errorf("prune history %s: %w", d, err)
	}
	return nil
}

func scanHistory(rows *sql.Rows) ([]HistoryEntry, error) {
	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		var dim, oldJSON, newJSON, createdStr string
		if err := rows.Scan(&dim, &e.Version, &oldJSON, &newJSON, &e.Action, &e.Reason, &createdStr); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		e.Dimension = record.Dimension(dim)
		if err := json.Unmarshal([]byte(oldJSON), &e.OldWeights); err != nil {
			return nil, fmt.Errorf("unmarshal old weights: %w", err)
		}
		if err := json.Unmarshal([]byte(newJSON), &e.NewWeights); err != nil {
			return nil, fmt.Errorf("unmarshal new weights: %w", err)
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// #endregion
