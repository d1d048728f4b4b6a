package legacy

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrInvalidData marks malformed or missing required input. It is always
	// local to a single record.
	ErrInvalidData = errors.New("invalid data")
	// ErrParse marks a legacy timestamp that matches no known format.
	ErrParse = errors.New("unparseable legacy timestamp")
	// ErrTransport marks a failed call to the legacy API.
	ErrTransport = errors.New("legacy api request failed")
)

func invalidf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidData, fmt.Sprintf(format, args...))
}

// ParseError is returned when a timestamp matches neither legacy format.
type ParseError struct {
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse legacy timestamp %q: %v", e.Value, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrParse) hold for every ParseError.
func (e *ParseError) Is(target error) bool { return target == ErrParse }

// Processing kinds.
const (
	KindNote    = "note"
	KindPatient = "patient"
)

// ProcessingError wraps a lower-level failure with the record it happened on.
type ProcessingError struct {
	Kind       string
	PersonID   int64
	ClientGUID string
	NoteGUID   string
	Err        error
}

func (e *ProcessingError) Error() string {
	switch e.Kind {
	case KindNote:
		return fmt.Sprintf("failed to upsert note %s for patient %d: %v", e.NoteGUID, e.PersonID, e.Err)
	default:
		return fmt.Sprintf("failed to process patient from client %s: %v", e.ClientGUID, e.Err)
	}
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// TransportError describes a failed legacy API call.
type TransportError struct {
	Op         string
	Agency     string
	ClientGUID uuid.UUID
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	msg := "legacy " + e.Op
	if e.ClientGUID != uuid.Nil {
		msg += fmt.Sprintf(" clientGuid=%s agency=%s", e.ClientGUID, e.Agency)
	}
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" status=%d", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TransportError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrTransport) hold for every TransportError.
func (e *TransportError) Is(target error) bool { return target == ErrTransport }
