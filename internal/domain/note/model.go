package note

import (
	"time"

	"github.com/google/uuid"
)

// Note maps to the patient_note table.
type Note struct {
	ID               int64           `db:"id" json:"id"`
	PersonID         int64           `db:"person_id" json:"person_id"`
	Comment          string          `db:"note" json:"note"`
	CreatedAt        time.Time       `db:"created_date_time" json:"created_date_time"`
	LastModifiedAt   time.Time       `db:"last_modified_date_time" json:"last_modified_date_time"`
	CreatedByID      int64           `db:"created_by_user_id" json:"created_by_user_id"`
	LastModifiedByID int64           `db:"last_modified_by_user_id" json:"last_modified_by_user_id"`
	Legacy           *LegacyNoteLink `json:"legacy,omitempty"`
}

// LegacyNoteLink maps to legacy_note_guid and ties a note to the legacy note
// it was imported from.
type LegacyNoteLink struct {
	NoteID int64     `db:"patient_note_id" json:"patient_note_id"`
	GUID   uuid.UUID `db:"guid" json:"guid"`
}

// Author maps to company_user.
type Author struct {
	ID    int64  `db:"id" json:"id"`
	Login string `db:"login" json:"login"`
}

// Result is the outcome of upserting one legacy note.
type Result int

const (
	Created Result = iota + 1
	Updated
	Skipped
)

func (r Result) String() string {
	switch r {
	case Created:
		return "created"
	case Updated:
		return "updated"
	case Skipped:
		return "skipped"
	default:
		return "unknown"
	}
}
