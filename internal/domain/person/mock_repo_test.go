package person

import (
	"context"

	"github.com/google/uuid"
)

// mockRepo adds fault injection on top of the in-memory store.
type mockRepo struct {
	*MemoryRepository
	createErr func(*Person) error
	getErr    error
}

func newMockRepo() *mockRepo {
	return &mockRepo{MemoryRepository: NewMemoryRepository()}
}

func (m *mockRepo) Create(ctx context.Context, p *Person) error {
	if m.createErr != nil {
		if err := m.createErr(p); err != nil {
			return err
		}
	}
	return m.MemoryRepository.Create(ctx, p)
}

func (m *mockRepo) GetByID(ctx context.Context, id int64) (*Person, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.MemoryRepository.GetByID(ctx, id)
}

// seed stores a person that owns guids and returns its ID.
func (m *mockRepo) seed(first, last string, status int16, guids ...uuid.UUID) int64 {
	p := &Person{FirstName: first, LastName: last, StatusID: status}
	for _, g := range guids {
		p.AddIdentifier(g)
	}
	if err := m.MemoryRepository.Create(context.Background(), p); err != nil {
		panic(err)
	}
	return p.ID
}

func (m *mockRepo) count() int { return m.Len() }
