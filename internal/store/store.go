// Package store keeps case records and the query history in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"courtsync/internal/logging"
	"courtsync/internal/portal"
)

// SQL drivers SQLStore can open.
const (
	DriverModernc = "sqlite"  // pure Go, the default
	DriverMattn   = "sqlite3" // cgo
)

// ErrRecordNotFound is returned when an update addresses no record.
var ErrRecordNotFound = portal.ErrRecordNotFound

// SQLStore implements portal.RecordStore over database/sql.
type SQLStore struct {
	db     *sql.DB
	mu     sync.Mutex
	path   string
	driver string
	logger *zap.Logger
	now    func() time.Time
}

var _ portal.RecordStore = (*SQLStore)(nil)

// Open initializes the SQLite database at path with the named driver and
// migrates the schema.
func Open(path, driver string, logger *zap.Logger) (*SQLStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if driver == "" {
		driver = DriverModernc
	}
	if driver != DriverModernc && driver != DriverMattn {
		return nil, fmt.Errorf("unsupported sqlite driver %q", driver)
	}

	timer := logging.StartTimer(logger, "open store")
	defer timer.Stop()

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open(driver, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	for _, pragma := range []string{"PRAGMA busy_timeout = 5000", "PRAGMA journal_mode = WAL", "PRAGMA synchronous = NORMAL"} {
		if _, err := db.Exec(pragma); err != nil {
			logger.Debug("Pragma rejected", zap.String("pragma", pragma), zap.Error(err))
		}
	}

	s := &SQLStore{db: db, path: path, driver: driver, logger: logger, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("Store ready", zap.String("path", path), zap.String("driver", driver))
	return s, nil
}

// Close closes the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// FetchPending lists records of tribunal whose status equals status, oldest
// load first.
func (s *SQLStore) FetchPending(ctx context.Context, tribunal portal.Tribunal, status portal.Status) ([]portal.CaseRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT case_id, tribunal, status, suggested_status, parties, classification,
		       decision, movement, link, queried_at, loaded_at
		FROM cases WHERE tribunal = ? AND status = ?
		ORDER BY loaded_at, rowid`, string(tribunal), string(status))
	if err != nil {
		return nil, fmt.Errorf("fetch pending: %w", err)
	}
	defer rows.Close()

	var out []portal.CaseRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("fetch pending: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fetch pending: %w", err)
	}
	s.logger.Debug("Fetched worklist", zap.String("tribunal", string(tribunal)), zap.Int("count", len(out)))
	return out, nil
}

// Get returns one record.
func (s *SQLStore) Get(ctx context.Context, id string, tribunal portal.Tribunal) (portal.CaseRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT case_id, tribunal, status, suggested_status, parties, classification,
		       decision, movement, link, queried_at, loaded_at
		FROM cases WHERE case_id = ? AND tribunal = ?`, id, string(tribunal))
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, fmt.Errorf("%s/%s: %w", tribunal, id, ErrRecordNotFound)
	}
	return rec, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (portal.CaseRecord, error) {
	var rec portal.CaseRecord
	var tribunal, status, suggested string
	err := row.Scan(&rec.ID, &tribunal, &status, &suggested,
		&rec.Fields.Parties, &rec.Fields.Classification, &rec.Fields.Decision,
		&rec.Fields.Movement, &rec.Fields.Link, &rec.QueriedAt, &rec.LoadedAt)
	rec.Tribunal = portal.Tribunal(tribunal)
	rec.Status = portal.Status(status)
	rec.SuggestedStatus = portal.Status(suggested)
	return rec, err
}

// Update applies u to one record in a single transaction. An unknown record
// yields ErrRecordNotFound and nothing is written.
func (s *SQLStore) Update(ctx context.Context, id string, tribunal portal.Tribunal, u portal.CaseUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sets := []string{"parties = ?", "decision = ?", "movement = ?", "link = ?", "queried_at = ?", "updated_at = ?"}
	args := []any{u.Fields.Parties, u.Fields.Decision, u.Fields.Movement, u.Fields.Link, u.QueriedAt, s.now().UTC()}
	if !u.OmitClassification {
		sets = append(sets, "classification = ?")
		args = append(args, u.Fields.Classification)
	}
	if u.SuggestedStatus != "" {
		sets = append(sets, "suggested_status = ?")
		args = append(args, string(u.SuggestedStatus))
	}
	args = append(args, id, string(tribunal))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "UPDATE cases SET "+strings.Join(sets, ", ")+" WHERE case_id = ? AND tribunal = ?", args...)
	if err != nil {
		return fmt.Errorf("update %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s/%s: %w", tribunal, id, ErrRecordNotFound)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update %s: %w", id, err)
	}
	return nil
}

// LogQuery appends one attempt to the query history.
func (s *SQLStore) LogQuery(ctx context.Context, e portal.QueryLog) error {
	created := e.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO query_log (attempt_id, case_id, tribunal, state, terminal, movement,
		                       decision, detected, artifact, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.AttemptID, e.CaseID, string(e.Tribunal), e.State, e.Terminal, e.Movement,
		e.Decision, string(e.Detected), e.Artifact, e.Error, created.UTC())
	if err != nil {
		return fmt.Errorf("log query %s: %w", e.CaseID, err)
	}
	return nil
}

// History returns the logged attempts for one case, oldest first.
func (s *SQLStore) History(ctx context.Context, id string, tribunal portal.Tribunal) ([]portal.QueryLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT attempt_id, case_id, tribunal, state, terminal, movement, decision,
		       detected, artifact, error, created_at
		FROM query_log WHERE case_id = ? AND tribunal = ? ORDER BY id`, id, string(tribunal))
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []portal.QueryLog
	for rows.Next() {
		var e portal.QueryLog
		var tribunal, detected string
		if err := rows.Scan(&e.AttemptID, &e.CaseID, &tribunal, &e.State, &e.Terminal, &e.Movement,
			&e.Decision, &detected, &e.Artifact, &e.Error, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("query history: %w", err)
		}
		e.Tribunal = portal.Tribunal(tribunal)
		e.Detected = portal.Status(detected)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Seed inserts records, replacing the status of existing ones. It returns the
// number of records written.
func (s *SQLStore) Seed(ctx context.Context, recs []portal.CaseRecord) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin seed: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO cases (case_id, tribunal, status, parties, classification, decision, movement, link, loaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(case_id, tribunal) DO UPDATE SET status = excluded.status`)
	if err != nil {
		return 0, fmt.Errorf("prepare seed: %w", err)
	}
	defer stmt.Close()

	now := s.now().UTC()
	for i, rec := range recs {
		id := portal.CleanID(rec.ID)
		if id == "" {
			return 0, fmt.Errorf("seed record %d: empty case id", i)
		}
		if _, err := portal.ParseTribunal(string(rec.Tribunal)); err != nil {
			return 0, fmt.Errorf("seed record %s: %w", id, err)
		}
		status := rec.Status
		if status == "" {
			status = portal.StatusInProgress
		}
		if !status.Valid() {
			return 0, fmt.Errorf("seed record %s: unknown status %q", id, status)
		}
		f := rec.Fields
		if _, err := stmt.ExecContext(ctx, id, string(rec.Tribunal), string(status),
			f.Parties, f.Classification, f.Decision, f.Movement, f.Link, now.Add(time.Duration(i))); err != nil {
			return 0, fmt.Errorf("seed record %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit seed: %w", err)
	}
	return len(recs), nil
}

// ConfirmSuggested moves every record of tribunal with a suggested status
// other than its current one onto the suggestion. It returns how many
// records changed.
func (s *SQLStore) ConfirmSuggested(ctx context.Context, tribunal portal.Tribunal) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE cases SET status = suggested_status, suggested_status = '', updated_at = ?
		WHERE tribunal = ? AND suggested_status != '' AND suggested_status != status`,
		s.now().UTC(), string(tribunal))
	if err != nil {
		return 0, fmt.Errorf("confirm suggested: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("confirm suggested: %w", err)
	}
	s.logger.Info("Confirmed suggested statuses", zap.String("tribunal", string(tribunal)), zap.Int64("changed", n))
	return int(n), nil
}

// CountByStatus returns the number of records of tribunal per status.
func (s *SQLStore) CountByStatus(ctx context.Context, tribunal portal.Tribunal) (map[portal.Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM cases WHERE tribunal = ? GROUP BY status`, string(tribunal))
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()

	out := make(map[portal.Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("count by status: %w", err)
		}
		out[portal.Status(status)] = n
	}
	return out, rows.Err()
}
