// Package store persists transcription job records in SQLite.
package store

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/medscribe/medscribe/pkg/logging"
)

// Job statuses. Transitions only move forward along
// pending -> processing -> {completed, failed}; a record only leaves a
// terminal state when a new submission for the same encounter overwrites it
// in place.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"

	// StatusNotFound is a query sentinel, never stored: it means no job has
	// been admitted for the encounter yet.
	StatusNotFound = "not_found"
)

// OriginTranscription tags records produced by the audio pipeline.
const OriginTranscription = "transcription"

// Record is one persistent transcription job, keyed by encounter id. At most
// one active record per encounter by convention.
type Record struct {
	ID          int64  `json:"id"`
	EncounterID int64  `json:"encounter_id"`
	Content     string `json:"content"`
	Origin      string `json:"origin"`
	Status      string `json:"status"`
}

// ErrNoRecords is returned by DeleteByEncounter when there is nothing to
// delete.
var ErrNoRecords = errors.New("no transcription records for encounter")

// Store wraps the SQLite handle used for job records. Safe for concurrent use
// from the worker pool and the request path; consistency is delegated to
// SQLite, with a commit per phase transition so pollers see partial progress.
type Store struct {
	db     *sql.DB
	logger *logging.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS transcriptions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	encounter_id INTEGER NOT NULL,
	content TEXT,
	origin TEXT NOT NULL,
	status TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transcriptions_encounter ON transcriptions(encounter_id);
`

// Open opens (creating if necessary) the job record database at dbPath.
func Open(dbPath string, logger *logging.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open job record database: %w", err)
	}

	// SQLite serializes writers; a single connection avoids busy errors
	// from the worker pool and the request path writing concurrently.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize job record schema: %w", err)
	}

	logger.Debug("job record store ready", "path", dbPath)
	return &Store{db: db, logger: logger}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetByEncounter returns the job record for encounterID. A missing record is
// not an error: the sentinel not_found record is returned instead, and
// content is never null at this boundary.
func (s *Store) GetByEncounter(encounterID int64) (Record, error) {
	row := s.db.QueryRow(
		`SELECT id, encounter_id, COALESCE(content, ''), origin, status
		 FROM transcriptions WHERE encounter_id = ? ORDER BY id LIMIT 1`,
		encounterID,
	)

	var rec Record
	err := row.Scan(&rec.ID, &rec.EncounterID, &rec.Content, &rec.Origin, &rec.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{EncounterID: encounterID, Status: StatusNotFound}, nil
	}
	if err != nil {
		return Record{}, fmt.Errorf("failed to query job record: %w", err)
	}
	return rec, nil
}

// EnsureProcessing gets or creates the record for encounterID and marks it
// processing, making in-flight work visible to status pollers. Re-submission
// reuses the existing record in place.
func (s *Store) EnsureProcessing(encounterID int64) (int64, error) {
	rec, err := s.GetByEncounter(encounterID)
	if err != nil {
		return 0, err
	}

	if rec.Status == StatusNotFound {
		res, err := s.db.Exec(
			`INSERT INTO transcriptions (encounter_id, content, origin, status) VALUES (?, '', ?, ?)`,
			encounterID, OriginTranscription, StatusProcessing,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to create job record: %w", err)
		}
		return res.LastInsertId()
	}

	if _, err := s.db.Exec(
		`UPDATE transcriptions SET status = ? WHERE id = ?`,
		StatusProcessing, rec.ID,
	); err != nil {
		return 0, fmt.Errorf("failed to mark job record processing: %w", err)
	}
	return rec.ID, nil
}

// MarkCompleted stores the transcript and moves the record to completed. It
// targets the record id returned by EnsureProcessing so that historical rows
// for the same encounter are left untouched.
func (s *Store) MarkCompleted(recordID int64, content string) error {
	if _, err := s.db.Exec(
		`UPDATE transcriptions SET status = ?, content = ? WHERE id = ?`,
		StatusCompleted, content, recordID,
	); err != nil {
		return fmt.Errorf("failed to mark job record completed: %w", err)
	}
	return nil
}

// MarkFailed moves the record for encounterID to failed, creating it first if
// the failure happened before the record existed.
func (s *Store) MarkFailed(encounterID int64) error {
	rec, err := s.GetByEncounter(encounterID)
	if err != nil {
		return err
	}

	if rec.Status == StatusNotFound {
		if _, err := s.db.Exec(
			`INSERT INTO transcriptions (encounter_id, content, origin, status) VALUES (?, '', ?, ?)`,
			encounterID, OriginTranscription, StatusFailed,
		); err != nil {
			return fmt.Errorf("failed to create failed job record: %w", err)
		}
		return nil
	}

	if _, err := s.db.Exec(
		`UPDATE transcriptions SET status = ? WHERE id = ?`,
		StatusFailed, rec.ID,
	); err != nil {
		return fmt.Errorf("failed to mark job record failed: %w", err)
	}
	return nil
}

// ListByEncounter returns every record for an encounter, content normalized
// to empty string.
func (s *Store) ListByEncounter(encounterID int64) ([]Record, error) {
	rows, err := s.db.Query(
		`SELECT id, encounter_id, COALESCE(content, ''), origin, status
		 FROM transcriptions WHERE encounter_id = ? ORDER BY id`,
		encounterID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list job records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.EncounterID, &rec.Content, &rec.Origin, &rec.Status); err != nil {
			return nil, fmt.Errorf("failed to scan job record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// DeleteByEncounter removes all records for an encounter. This is the
// external administrative operation; the pipeline itself never deletes.
func (s *Store) DeleteByEncounter(encounterID int64) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM transcriptions WHERE encounter_id = ?`, encounterID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete job records: %w", err)
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if deleted == 0 {
		return 0, ErrNoRecords
	}
	return deleted, nil
}
