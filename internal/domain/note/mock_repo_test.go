package note

import (
	"context"
)

// mockNoteRepo adds fault injection and an update counter on top of the
// in-memory store.
type mockNoteRepo struct {
	*MemoryRepository
	createErr error
	updateErr error
	updates   int
}

func newMockNoteRepo() *mockNoteRepo {
	return &mockNoteRepo{MemoryRepository: NewMemoryRepository()}
}

func (m *mockNoteRepo) Create(ctx context.Context, n *Note) error {
	if m.createErr != nil {
		return m.createErr
	}
	return m.MemoryRepository.Create(ctx, n)
}

func (m *mockNoteRepo) Update(ctx context.Context, n *Note) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	if err := m.MemoryRepository.Update(ctx, n); err != nil {
		return err
	}
	m.updates++
	return nil
}

func newMockAuthorRepo() *MemoryAuthorRepository {
	return NewMemoryAuthorRepository()
}
