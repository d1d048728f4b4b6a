package note

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/notesync/internal/domain/person"
	"github.com/ehr/notesync/internal/legacy"
	"github.com/ehr/notesync/internal/platform/db"
)

// Syncer merges legacy notes into patient notes. The most recently modified
// version wins.
type Syncer struct {
	notes   Repository
	authors AuthorRepository
	tx      db.Transactor
	logger  zerolog.Logger
}

func NewSyncer(notes Repository, authors AuthorRepository, tx db.Transactor, logger zerolog.Logger) *Syncer {
	if tx == nil {
		tx = db.NoTx
	}
	return &Syncer{
		notes:   notes,
		authors: authors,
		tx:      tx,
		logger:  logger.With().Str("component", "note-sync").Logger(),
	}
}

// Upsert creates, updates or skips the note behind src. Every error is a
// *legacy.ProcessingError of kind note.
func (s *Syncer) Upsert(ctx context.Context, p *person.Person, src *legacy.NoteRecord) (Result, error) {
	res, err := s.upsert(ctx, p, src)
	if err != nil {
		pe := &legacy.ProcessingError{Kind: legacy.KindNote, Err: err}
		if p != nil {
			pe.PersonID = p.ID
		}
		if src != nil {
			pe.NoteGUID = src.GUID
			pe.ClientGUID = src.ClientGUID
		}
		return 0, pe
	}
	return res, nil
}

func (s *Syncer) upsert(ctx context.Context, p *person.Person, src *legacy.NoteRecord) (Result, error) {
	if p == nil {
		return 0, fmt.Errorf("%w: patient cannot be nil", legacy.ErrInvalidData)
	}
	if src == nil {
		return 0, fmt.Errorf("%w: note data cannot be nil", legacy.ErrInvalidData)
	}
	guid, err := src.ParsedGUID()
	if err != nil {
		return 0, err
	}
	created, modified, err := noteTimes(src)
	if err != nil {
		return 0, err
	}

	var res Result
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		author, err := s.authors.FindOrCreate(ctx, legacy.NormalizeLogin(src.LoggedUser))
		if err != nil {
			return err
		}

		existing, err := s.notes.FindByLegacyGUID(ctx, guid)
		if errors.Is(err, ErrNotFound) {
			n := &Note{
				PersonID:         p.ID,
				Comment:          src.Comments,
				CreatedAt:        created,
				LastModifiedAt:   modified,
				CreatedByID:      author.ID,
				LastModifiedByID: author.ID,
				Legacy:           &LegacyNoteLink{GUID: guid},
			}
			if err := s.notes.Create(ctx, n); err != nil {
				return err
			}
			res = Created
			return nil
		}
		if err != nil {
			return fmt.Errorf("find note %s: %w", guid, err)
		}

		if !modified.After(existing.LastModifiedAt) {
			res = Skipped
			return nil
		}
		existing.Comment = src.Comments
		existing.LastModifiedAt = modified
		existing.LastModifiedByID = author.ID
		if err := s.notes.Update(ctx, existing); err != nil {
			return err
		}
		res = Updated
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Debug().
		Str("note_guid", guid.String()).
		Int64("person_id", p.ID).
		Stringer("result", res).
		Msg("note synced")
	return res, nil
}

// noteTimes parses the creation and modification stamps. A missing stamp is
// filled from the other one; both missing is invalid.
func noteTimes(src *legacy.NoteRecord) (created, modified time.Time, err error) {
	created, hasCreated, err := legacy.ParseTimestamp(src.CreatedDateTime)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	modified, hasModified, err := legacy.ParseTimestamp(src.ModifiedDateTime)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	switch {
	case !hasCreated && !hasModified:
		return time.Time{}, time.Time{}, fmt.Errorf("%w: note %s has no created or modified timestamp", legacy.ErrInvalidData, src.GUID)
	case !hasModified:
		modified = created
	case !hasCreated:
		created = modified
	}
	return created, modified, nil
}
