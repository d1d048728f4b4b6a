package importjob

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a JobRun: RUNNING, then SUCCESS or FAILED.
type Status string

const (
	StatusRunning Status = "RUNNING"
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
)

// JobRun maps to import_job_run: one execution of the import.
type JobRun struct {
	ID             int64      `db:"id" json:"id"`
	StartedAt      time.Time  `db:"started_at" json:"started_at"`
	FinishedAt     *time.Time `db:"finished_at" json:"finished_at,omitempty"`
	Status         Status     `db:"status" json:"status"`
	NewCount       int        `db:"new_count" json:"new_count"`
	UpdatedCount   int        `db:"updated_count" json:"updated_count"`
	SkippedCount   int        `db:"skipped_count" json:"skipped_count"`
	ErrorCount     int        `db:"error_count" json:"error_count"`
	NewPersons     int        `db:"new_persons" json:"new_persons"`
	UpdatedPersons int        `db:"updated_persons" json:"updated_persons"`
	SkippedPersons int        `db:"skipped_persons" json:"skipped_persons"`
}

// Finish stamps the end of the run and copies the final counters onto it.
func (r *JobRun) Finish(status Status, stats Statistics, at time.Time) {
	r.Status = status
	r.FinishedAt = &at
	r.NewCount = stats.NewNotes
	r.UpdatedCount = stats.UpdatedNotes
	r.SkippedCount = stats.SkippedNotes
	r.ErrorCount = stats.Errors
	r.NewPersons = stats.NewPersons
	r.UpdatedPersons = stats.UpdatedPersons
	r.SkippedPersons = stats.SkippedPersons
}

// ErrorRecord maps to import_error. Rows are append-only.
type ErrorRecord struct {
	ID         int64     `db:"id" json:"id"`
	JobRunID   int64     `db:"job_run_id" json:"job_run_id"`
	ErrorTime  time.Time `db:"error_time" json:"error_time"`
	NoteGUID   *string   `db:"note_guid" json:"note_guid,omitempty"`
	PersonID   *int64    `db:"person_id" json:"person_id,omitempty"`
	ClientGUID *string   `db:"client_guid" json:"client_guid,omitempty"`
	Message    string    `db:"message" json:"message"`
	Detail     *string   `db:"stacktrace" json:"detail,omitempty"`
}

// Subject identifies the record an error happened on. Zero fields are stored
// as NULL.
type Subject struct {
	NoteGUID   string
	PersonID   int64
	ClientGUID string
}

// Statistics are the counters of a single run.
type Statistics struct {
	NewNotes       int `json:"new_notes"`
	UpdatedNotes   int `json:"updated_notes"`
	SkippedNotes   int `json:"skipped_notes"`
	NewPersons     int `json:"new_persons"`
	UpdatedPersons int `json:"updated_persons"`
	SkippedPersons int `json:"skipped_persons"`
	Errors         int `json:"errors"`
}

func (s Statistics) String() string {
	return fmt.Sprintf("persons new=%d updated=%d skipped=%d, notes new=%d updated=%d skipped=%d, errors=%d",
		s.NewPersons, s.UpdatedPersons, s.SkippedPersons,
		s.NewNotes, s.UpdatedNotes, s.SkippedNotes, s.Errors)
}
