package note

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// MemoryRepository is an in-process Repository used for dry runs and tests.
type MemoryRepository struct {
	mu     sync.Mutex
	notes  map[int64]*Note
	nextID int64
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{notes: make(map[int64]*Note), nextID: 1}
}

func cloneNote(n *Note) *Note {
	c := *n
	if n.Legacy != nil {
		link := *n.Legacy
		c.Legacy = &link
	}
	return &c
}

func (m *MemoryRepository) Create(_ context.Context, n *Note) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n.Legacy != nil {
		for _, existing := range m.notes {
			if existing.Legacy != nil && existing.Legacy.GUID == n.Legacy.GUID {
				return fmt.Errorf("legacy note GUID %s already linked to note %d", n.Legacy.GUID, existing.ID)
			}
		}
	}
	n.ID = m.nextID
	m.nextID++
	if n.Legacy != nil {
		n.Legacy.NoteID = n.ID
	}
	m.notes[n.ID] = cloneNote(n)
	return nil
}

func (m *MemoryRepository) Update(_ context.Context, n *Note) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.notes[n.ID]
	if !ok {
		return ErrNotFound
	}
	stored.Comment = n.Comment
	stored.LastModifiedAt = n.LastModifiedAt
	stored.LastModifiedByID = n.LastModifiedByID
	return nil
}

func (m *MemoryRepository) GetByID(_ context.Context, id int64) (*Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notes[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneNote(n), nil
}

func (m *MemoryRepository) FindByLegacyGUID(_ context.Context, guid uuid.UUID) (*Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.notes {
		if n.Legacy != nil && n.Legacy.GUID == guid {
			return cloneNote(n), nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryRepository) ListByPerson(_ context.Context, personID int64, limit, offset int) ([]*Note, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*Note
	for _, n := range m.notes {
		if n.PersonID == personID {
			all = append(all, cloneNote(n))
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].LastModifiedAt.Equal(all[j].LastModifiedAt) {
			return all[i].LastModifiedAt.After(all[j].LastModifiedAt)
		}
		return all[i].ID > all[j].ID
	})
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

// Len returns the number of stored notes.
func (m *MemoryRepository) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.notes)
}

// MemoryAuthorRepository is the in-process AuthorRepository.
type MemoryAuthorRepository struct {
	mu      sync.Mutex
	byLogin map[string]*Author
	nextID  int64
}

func NewMemoryAuthorRepository() *MemoryAuthorRepository {
	return &MemoryAuthorRepository{byLogin: make(map[string]*Author), nextID: 1}
}

func (m *MemoryAuthorRepository) FindOrCreate(_ context.Context, login string) (*Author, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	login = strings.TrimSpace(login)
	if a, ok := m.byLogin[login]; ok {
		return a, nil
	}
	a := &Author{ID: m.nextID, Login: login}
	m.nextID++
	m.byLogin[login] = a
	return a, nil
}
