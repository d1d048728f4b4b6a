package person

import (
	"time"

	"github.com/google/uuid"
)

// Person maps to the person table: one reconciled human behind one or more
// legacy client accounts.
type Person struct {
	ID          int64              `db:"id" json:"id"`
	FirstName   string             `db:"first_name" json:"first_name"`
	LastName    string             `db:"last_name" json:"last_name"`
	StatusID    int16              `db:"status_id" json:"status_id"`
	CreatedAt   time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time          `db:"updated_at" json:"updated_at"`
	Identifiers []LegacyIdentifier `json:"identifiers"`
}

// LegacyIdentifier maps to the legacy_client_guid table. PersonID is the only
// link back to the owner.
type LegacyIdentifier struct {
	ID       int64     `db:"id" json:"id"`
	GUID     uuid.UUID `db:"guid" json:"guid"`
	PersonID int64     `db:"person_id" json:"person_id"`
}

// Owns reports whether guid is one of the person's identifiers.
func (p *Person) Owns(guid uuid.UUID) bool {
	for _, ident := range p.Identifiers {
		if ident.GUID == guid {
			return true
		}
	}
	return false
}

// AddIdentifier appends guid unless the person already owns it. It returns
// false when nothing was added.
func (p *Person) AddIdentifier(guid uuid.UUID) bool {
	if p.Owns(guid) {
		return false
	}
	p.Identifiers = append(p.Identifiers, LegacyIdentifier{GUID: guid, PersonID: p.ID})
	return true
}

// GUIDs lists the person's legacy GUIDs in insertion order.
func (p *Person) GUIDs() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(p.Identifiers))
	for _, ident := range p.Identifiers {
		out = append(out, ident.GUID)
	}
	return out
}
