package legacy

import (
	"strings"

	"github.com/google/uuid"
)

// UnknownLogin stands in for notes whose author login is blank.
const UnknownLogin = "unknown"

// activeStatuses are the legacy status codes of clients still in care.
var activeStatuses = map[int16]bool{
	210: true,
	220: true,
	230: true,
}

// IsActiveStatus reports whether a legacy status code belongs to the active set.
func IsActiveStatus(status int16) bool {
	return activeStatuses[status]
}

// ClientRecord is a client as returned by the legacy API.
type ClientRecord struct {
	Agency          string `json:"agency"`
	GUID            string `json:"guid"`
	FirstName       string `json:"firstName"`
	LastName        string `json:"lastName"`
	Status          *int16 `json:"status"`
	DOB             string `json:"dob"`
	CreatedDateTime string `json:"createdDateTime"`
}

// IsActive returns false for a nil status.
func (c *ClientRecord) IsActive() bool {
	return c.Status != nil && IsActiveStatus(*c.Status)
}

// ParsedGUID parses the client GUID, wrapping failures in ErrInvalidData.
func (c *ClientRecord) ParsedGUID() (uuid.UUID, error) {
	return parseGUID("client", c.GUID)
}

// NoteRecord is a client note as returned by the legacy API.
type NoteRecord struct {
	GUID             string `json:"guid"`
	Comments         string `json:"comments"`
	ModifiedDateTime string `json:"modifiedDateTime"`
	ClientGUID       string `json:"clientGuid"`
	DateTime         string `json:"datetime"`
	LoggedUser       string `json:"loggedUser"`
	CreatedDateTime  string `json:"createdDateTime"`
}

// ParsedGUID parses the note GUID, wrapping failures in ErrInvalidData.
func (n *NoteRecord) ParsedGUID() (uuid.UUID, error) {
	return parseGUID("note", n.GUID)
}

// NormalizeLogin trims a login and maps blank values to UnknownLogin.
func NormalizeLogin(login string) string {
	login = strings.TrimSpace(login)
	if login == "" {
		return UnknownLogin
	}
	return login
}

func parseGUID(kind, raw string) (uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return uuid.Nil, invalidf("%s GUID is blank", kind)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, invalidf("invalid %s GUID format: %s", kind, raw)
	}
	return id, nil
}
