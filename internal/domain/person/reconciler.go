package person

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/notesync/internal/legacy"
	"github.com/ehr/notesync/internal/platform/db"
)

// ReconcileResult summarises one reconciliation pass.
type ReconcileResult struct {
	Persons  []*Person
	New      int
	Updated  int
	Skipped  int
	Failures []*legacy.ProcessingError
}

// Reconciler folds a batch of legacy client records into persons, merging
// duplicate accounts that share name and date of birth.
type Reconciler struct {
	repo   Repository
	tx     db.Transactor
	logger zerolog.Logger
}

func NewReconciler(repo Repository, tx db.Transactor, logger zerolog.Logger) *Reconciler {
	if tx == nil {
		tx = db.NoTx
	}
	return &Reconciler{
		repo:   repo,
		tx:     tx,
		logger: logger.With().Str("component", "reconciler").Logger(),
	}
}

// member is a client record whose GUID has already been parsed.
type member struct {
	rec  *legacy.ClientRecord
	guid uuid.UUID
}

type group struct {
	key     string
	members []member
}

// Reconcile classifies every group of records as new, partially known or
// fully known and persists the first two. Each group is saved in its own
// transaction; a failing group is reported in the result and does not stop
// the others.
func (r *Reconciler) Reconcile(ctx context.Context, clients []legacy.ClientRecord) (*ReconcileResult, error) {
	res := &ReconcileResult{}
	if len(clients) == 0 {
		return res, nil
	}

	groups, invalid := groupClients(clients)
	res.Failures = append(res.Failures, invalid...)

	known, err := r.repo.KnownIdentifiers(ctx)
	if err != nil {
		return nil, fmt.Errorf("load known identifiers: %w", err)
	}

	var create, update []*group
	for _, g := range groups {
		unknown := 0
		for _, m := range g.members {
			if _, ok := known[m.guid]; !ok {
				unknown++
			}
		}
		switch {
		case unknown == len(g.members):
			create = append(create, g)
		case len(g.members) > 1 && unknown > 0:
			update = append(update, g)
		default:
			res.Skipped++
		}
	}

	for _, g := range update {
		p, err := r.updateGroup(ctx, g, known)
		if err != nil {
			res.Failures = append(res.Failures, groupFailure(g, p, err))
			continue
		}
		res.Persons = append(res.Persons, p)
		res.Updated++
	}

	// GUIDs can repeat inside one batch; the first group to persist one wins.
	// known holds GUIDs attached by the update pass and by committed creates,
	// so a failed create leaves its GUIDs free for later groups.
	for _, g := range create {
		p, ok := r.newPerson(g, known)
		if !ok {
			r.logger.Warn().Str("group", g.key).Msg("all client GUIDs already claimed in this batch, skipping group")
			res.Skipped++
			continue
		}
		err := r.tx.InTx(ctx, func(ctx context.Context) error {
			return r.repo.Create(ctx, p)
		})
		if err != nil {
			res.Failures = append(res.Failures, groupFailure(g, nil, err))
			continue
		}
		for _, guid := range p.GUIDs() {
			known[guid] = p.ID
		}
		res.Persons = append(res.Persons, p)
		res.New++
	}

	r.logger.Info().
		Int("new", res.New).
		Int("updated", res.Updated).
		Int("skipped", res.Skipped).
		Int("failed", len(res.Failures)).
		Msg("reconciliation finished")
	return res, nil
}

func (r *Reconciler) updateGroup(ctx context.Context, g *group, known map[uuid.UUID]int64) (*Person, error) {
	var ownerID int64
	for _, m := range g.members {
		if id, ok := known[m.guid]; ok {
			ownerID = id
			break
		}
	}
	if ownerID == 0 {
		return nil, fmt.Errorf("%w: no patient found for group", legacy.ErrInvalidData)
	}

	var p *Person
	err := r.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		p, err = r.repo.GetByID(ctx, ownerID)
		if err != nil {
			return fmt.Errorf("%w: no patient found with id %d: %v", legacy.ErrInvalidData, ownerID, err)
		}

		main := selectMain(g.members)
		p.StatusID = statusOf(main.rec)
		for _, m := range g.members {
			if owner, ok := known[m.guid]; ok && owner != p.ID {
				r.logger.Warn().
					Str("guid", m.guid.String()).
					Int64("owner_id", owner).
					Int64("person_id", p.ID).
					Msg("client GUID already belongs to another person, leaving it in place")
				continue
			}
			p.AddIdentifier(m.guid)
		}
		return r.repo.Update(ctx, p)
	})
	if err != nil {
		return p, err
	}
	for _, guid := range p.GUIDs() {
		known[guid] = p.ID
	}
	return p, nil
}

// newPerson builds an unsaved person from the group's main record and attaches
// every GUID of the group not yet owned. It returns false when nothing is left.
func (r *Reconciler) newPerson(g *group, known map[uuid.UUID]int64) (*Person, bool) {
	var free []member
	seen := make(map[uuid.UUID]bool, len(g.members))
	for _, m := range g.members {
		if _, taken := known[m.guid]; taken || seen[m.guid] {
			continue
		}
		seen[m.guid] = true
		free = append(free, m)
	}
	if len(free) == 0 {
		return nil, false
	}

	main := selectMain(free)
	p := &Person{
		FirstName: strings.TrimSpace(main.rec.FirstName),
		LastName:  strings.TrimSpace(main.rec.LastName),
		StatusID:  statusOf(main.rec),
	}
	p.AddIdentifier(main.guid)
	for _, m := range free {
		p.AddIdentifier(m.guid)
	}
	return p, true
}

// GUIDIndex maps every persisted legacy GUID to its owning person.
func (r *Reconciler) GUIDIndex(ctx context.Context) (map[uuid.UUID]*Person, error) {
	persons, err := r.repo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list persons: %w", err)
	}
	index := make(map[uuid.UUID]*Person)
	for _, p := range persons {
		for _, ident := range p.Identifiers {
			index[ident.GUID] = p
		}
	}
	return index, nil
}

// GroupKey is the duplicate-detection key: lower-cased trimmed names followed
// by the trimmed date of birth.
func GroupKey(c *legacy.ClientRecord) string {
	return strings.ToLower(strings.TrimSpace(c.FirstName)) +
		strings.ToLower(strings.TrimSpace(c.LastName)) +
		strings.TrimSpace(c.DOB)
}

func groupable(c *legacy.ClientRecord) bool {
	return strings.TrimSpace(c.FirstName) != "" &&
		strings.TrimSpace(c.LastName) != "" &&
		strings.TrimSpace(c.DOB) != ""
}

// groupClients keeps first-appearance order for groups and input order inside
// each group.
func groupClients(clients []legacy.ClientRecord) ([]*group, []*legacy.ProcessingError) {
	var (
		groups  []*group
		invalid []*legacy.ProcessingError
	)
	byKey := make(map[string]*group)
	for i := range clients {
		rec := &clients[i]
		if !groupable(rec) {
			continue
		}
		guid, err := rec.ParsedGUID()
		if err != nil {
			invalid = append(invalid, &legacy.ProcessingError{
				Kind:       legacy.KindPatient,
				ClientGUID: rec.GUID,
				Err:        err,
			})
			continue
		}
		key := GroupKey(rec)
		g, ok := byKey[key]
		if !ok {
			g = &group{key: key}
			byKey[key] = g
			groups = append(groups, g)
		}
		g.members = append(g.members, member{rec: rec, guid: guid})
	}
	return groups, invalid
}

// selectMain prefers the first active record, then the latest creation time.
// Blank or unparseable times rank below every parsed time; ties keep the
// earlier record.
func selectMain(members []member) member {
	for _, m := range members {
		if m.rec.IsActive() {
			return m
		}
	}
	best := members[0]
	bestAt, bestOK := createdAt(best.rec)
	for _, m := range members[1:] {
		at, ok := createdAt(m.rec)
		if !ok {
			continue
		}
		if !bestOK || at.After(bestAt) {
			best, bestAt, bestOK = m, at, true
		}
	}
	return best
}

func createdAt(c *legacy.ClientRecord) (time.Time, bool) {
	t, ok, err := legacy.ParseTimestamp(c.CreatedDateTime)
	if err != nil {
		return time.Time{}, false
	}
	return t, ok
}

// statusOf maps a null legacy status to 0, the person table has no null status.
func statusOf(c *legacy.ClientRecord) int16 {
	if c.Status == nil {
		return 0
	}
	return *c.Status
}

func groupFailure(g *group, p *Person, err error) *legacy.ProcessingError {
	pe := &legacy.ProcessingError{
		Kind:       legacy.KindPatient,
		ClientGUID: g.members[0].rec.GUID,
		Err:        err,
	}
	if p != nil {
		pe.PersonID = p.ID
	}
	return pe
}
