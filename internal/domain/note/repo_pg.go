package note

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/notesync/internal/platform/db"
)

type noteRepoPG struct{ pool *pgxpool.Pool }

func NewNoteRepoPG(pool *pgxpool.Pool) Repository {
	return &noteRepoPG{pool: pool}
}

func (r *noteRepoPG) conn(ctx context.Context) db.Querier {
	return db.QuerierFor(ctx, r.pool)
}

const noteCols = `n.id, n.person_id, n.note, n.created_date_time, n.last_modified_date_time,
	n.created_by_user_id, n.last_modified_by_user_id, g.guid`

const noteFrom = ` FROM patient_note n LEFT JOIN legacy_note_guid g ON g.patient_note_id = n.id`

func (r *noteRepoPG) scanRow(row pgx.Row) (*Note, error) {
	var n Note
	var comment *string
	var guid *uuid.UUID
	err := row.Scan(&n.ID, &n.PersonID, &comment, &n.CreatedAt, &n.LastModifiedAt,
		&n.CreatedByID, &n.LastModifiedByID, &guid)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if comment != nil {
		n.Comment = *comment
	}
	if guid != nil {
		n.Legacy = &LegacyNoteLink{NoteID: n.ID, GUID: *guid}
	}
	return &n, nil
}

func (r *noteRepoPG) Create(ctx context.Context, n *Note) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patient_note (person_id, note, created_date_time, last_modified_date_time,
			created_by_user_id, last_modified_by_user_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		n.PersonID, n.Comment, n.CreatedAt, n.LastModifiedAt, n.CreatedByID, n.LastModifiedByID,
	).Scan(&n.ID)
	if err != nil {
		return fmt.Errorf("insert note: %w", err)
	}
	if n.Legacy == nil {
		return nil
	}
	n.Legacy.NoteID = n.ID
	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO legacy_note_guid (patient_note_id, guid) VALUES ($1, $2)`,
		n.ID, n.Legacy.GUID)
	if err != nil {
		return fmt.Errorf("insert legacy note link %s: %w", n.Legacy.GUID, err)
	}
	return nil
}

func (r *noteRepoPG) Update(ctx context.Context, n *Note) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patient_note SET note=$2, last_modified_date_time=$3, last_modified_by_user_id=$4
		WHERE id = $1`,
		n.ID, n.Comment, n.LastModifiedAt, n.LastModifiedByID)
	if err != nil {
		return fmt.Errorf("update note %d: %w", n.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *noteRepoPG) GetByID(ctx context.Context, id int64) (*Note, error) {
	return r.scanRow(r.conn(ctx).QueryRow(ctx, `SELECT `+noteCols+noteFrom+` WHERE n.id = $1`, id))
}

func (r *noteRepoPG) FindByLegacyGUID(ctx context.Context, guid uuid.UUID) (*Note, error) {
	return r.scanRow(r.conn(ctx).QueryRow(ctx, `SELECT `+noteCols+noteFrom+` WHERE g.guid = $1`, guid))
}

func (r *noteRepoPG) ListByPerson(ctx context.Context, personID int64, limit, offset int) ([]*Note, int, error) {
	var total int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patient_note WHERE person_id = $1`, personID).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx, `SELECT `+noteCols+noteFrom+`
		WHERE n.person_id = $1
		ORDER BY n.last_modified_date_time DESC, n.id DESC
		LIMIT $2 OFFSET $3`, personID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Note
	for rows.Next() {
		n, err := r.scanRow(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, n)
	}
	return items, total, rows.Err()
}

type authorRepoPG struct{ pool *pgxpool.Pool }

func NewAuthorRepoPG(pool *pgxpool.Pool) AuthorRepository {
	return &authorRepoPG{pool: pool}
}

// FindOrCreate relies on the unique login so concurrent inserts converge on
// one row.
func (r *authorRepoPG) FindOrCreate(ctx context.Context, login string) (*Author, error) {
	a := Author{Login: login}
	err := db.QuerierFor(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO company_user (login) VALUES ($1)
		ON CONFLICT (login) DO UPDATE SET login = EXCLUDED.login
		RETURNING id`, login).Scan(&a.ID)
	if err != nil {
		return nil, fmt.Errorf("find or create author %q: %w", login, err)
	}
	return &a, nil
}
