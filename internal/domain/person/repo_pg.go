package person

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/notesync/internal/platform/db"
)

type personRepoPG struct{ pool *pgxpool.Pool }

func NewPersonRepoPG(pool *pgxpool.Pool) Repository {
	return &personRepoPG{pool: pool}
}

func (r *personRepoPG) conn(ctx context.Context) db.Querier {
	return db.QuerierFor(ctx, r.pool)
}

const personCols = `id, first_name, last_name, status_id, created_at, updated_at`

func (r *personRepoPG) scanRow(row pgx.Row) (*Person, error) {
	var p Person
	var first, last *string
	if err := row.Scan(&p.ID, &first, &last, &p.StatusID, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if first != nil {
		p.FirstName = *first
	}
	if last != nil {
		p.LastName = *last
	}
	return &p, nil
}

func (r *personRepoPG) Create(ctx context.Context, p *Person) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO person (first_name, last_name, status_id)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at`,
		p.FirstName, p.LastName, p.StatusID,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert person: %w", err)
	}
	return r.insertNewIdentifiers(ctx, p)
}

func (r *personRepoPG) Update(ctx context.Context, p *Person) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE person SET first_name=$2, last_name=$3, status_id=$4, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, p.FirstName, p.LastName, p.StatusID,
	).Scan(&p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("update person %d: %w", p.ID, err)
	}
	return r.insertNewIdentifiers(ctx, p)
}

func (r *personRepoPG) insertNewIdentifiers(ctx context.Context, p *Person) error {
	for i := range p.Identifiers {
		ident := &p.Identifiers[i]
		if ident.ID != 0 {
			continue
		}
		ident.PersonID = p.ID
		err := r.conn(ctx).QueryRow(ctx, `
			INSERT INTO legacy_client_guid (guid, person_id) VALUES ($1, $2)
			RETURNING id`,
			ident.GUID, p.ID,
		).Scan(&ident.ID)
		if err != nil {
			return fmt.Errorf("insert legacy identifier %s: %w", ident.GUID, err)
		}
	}
	return nil
}

func (r *personRepoPG) loadIdentifiers(ctx context.Context, persons ...*Person) error {
	if len(persons) == 0 {
		return nil
	}
	byID := make(map[int64]*Person, len(persons))
	ids := make([]int64, 0, len(persons))
	for _, p := range persons {
		byID[p.ID] = p
		ids = append(ids, p.ID)
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, guid, person_id FROM legacy_client_guid
		WHERE person_id = ANY($1)
		ORDER BY id`, ids)
	if err != nil {
		return fmt.Errorf("query legacy identifiers: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var ident LegacyIdentifier
		if err := rows.Scan(&ident.ID, &ident.GUID, &ident.PersonID); err != nil {
			return err
		}
		if p := byID[ident.PersonID]; p != nil {
			p.Identifiers = append(p.Identifiers, ident)
		}
	}
	return rows.Err()
}

func (r *personRepoPG) GetByID(ctx context.Context, id int64) (*Person, error) {
	p, err := r.scanRow(r.conn(ctx).QueryRow(ctx, `SELECT `+personCols+` FROM person WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	if err := r.loadIdentifiers(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *personRepoPG) FindByIdentifier(ctx context.Context, guid uuid.UUID) (*Person, error) {
	p, err := r.scanRow(r.conn(ctx).QueryRow(ctx, `
		SELECT p.id, p.first_name, p.last_name, p.status_id, p.created_at, p.updated_at
		FROM person p JOIN legacy_client_guid g ON g.person_id = p.id
		WHERE g.guid = $1`, guid))
	if err != nil {
		return nil, err
	}
	if err := r.loadIdentifiers(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *personRepoPG) queryPersons(ctx context.Context, sql string, args ...interface{}) ([]*Person, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Person
	for rows.Next() {
		p, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.loadIdentifiers(ctx, items...); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *personRepoPG) ListAll(ctx context.Context) ([]*Person, error) {
	return r.queryPersons(ctx, `SELECT `+personCols+` FROM person ORDER BY id`)
}

func (r *personRepoPG) List(ctx context.Context, limit, offset int) ([]*Person, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM person`).Scan(&total); err != nil {
		return nil, 0, err
	}
	items, err := r.queryPersons(ctx, `SELECT `+personCols+` FROM person ORDER BY id DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *personRepoPG) KnownIdentifiers(ctx context.Context) (map[uuid.UUID]int64, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT guid, person_id FROM legacy_client_guid`)
	if err != nil {
		return nil, fmt.Errorf("query legacy identifiers: %w", err)
	}
	defer rows.Close()
	known := make(map[uuid.UUID]int64)
	for rows.Next() {
		var guid uuid.UUID
		var personID int64
		if err := rows.Scan(&guid, &personID); err != nil {
			return nil, err
		}
		known[guid] = personID
	}
	return known, rows.Err()
}
