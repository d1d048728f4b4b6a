package person

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryRepository is an in-process Repository used for dry runs and tests.
// It enforces the same GUID uniqueness as the legacy_client_guid table.
type MemoryRepository struct {
	mu        sync.Mutex
	persons   map[int64]*Person
	nextID    int64
	nextIdent int64
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{persons: make(map[int64]*Person), nextID: 1, nextIdent: 1}
}

func clonePerson(p *Person) *Person {
	c := *p
	c.Identifiers = append([]LegacyIdentifier(nil), p.Identifiers...)
	return &c
}

func (m *MemoryRepository) assignIdentifiers(p *Person) {
	for i := range p.Identifiers {
		if p.Identifiers[i].ID == 0 {
			p.Identifiers[i].ID = m.nextIdent
			m.nextIdent++
		}
		p.Identifiers[i].PersonID = p.ID
	}
}

func (m *MemoryRepository) checkUnique(p *Person) error {
	for _, other := range m.persons {
		if other.ID == p.ID {
			continue
		}
		for _, g := range p.GUIDs() {
			if other.Owns(g) {
				return fmt.Errorf("legacy GUID %s already belongs to person %d", g, other.ID)
			}
		}
	}
	return nil
}

func (m *MemoryRepository) Create(_ context.Context, p *Person) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkUnique(p); err != nil {
		return err
	}
	p.ID = m.nextID
	m.nextID++
	m.assignIdentifiers(p)
	m.persons[p.ID] = clonePerson(p)
	return nil
}

func (m *MemoryRepository) Update(_ context.Context, p *Person) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.persons[p.ID]; !ok {
		return ErrNotFound
	}
	if err := m.checkUnique(p); err != nil {
		return err
	}
	m.assignIdentifiers(p)
	m.persons[p.ID] = clonePerson(p)
	return nil
}

func (m *MemoryRepository) GetByID(_ context.Context, id int64) (*Person, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.persons[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clonePerson(p), nil
}

func (m *MemoryRepository) FindByIdentifier(_ context.Context, guid uuid.UUID) (*Person, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.persons {
		if p.Owns(guid) {
			return clonePerson(p), nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryRepository) ListAll(_ context.Context) ([]*Person, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Person, 0, len(m.persons))
	for _, p := range m.persons {
		out = append(out, clonePerson(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryRepository) List(ctx context.Context, limit, offset int) ([]*Person, int, error) {
	all, _ := m.ListAll(ctx)
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (m *MemoryRepository) KnownIdentifiers(_ context.Context) (map[uuid.UUID]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	known := make(map[uuid.UUID]int64)
	for _, p := range m.persons {
		for _, ident := range p.Identifiers {
			known[ident.GUID] = p.ID
		}
	}
	return known, nil
}

// Len returns the number of stored persons.
func (m *MemoryRepository) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.persons)
}
