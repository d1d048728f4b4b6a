//go:build integration

package integration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/notesync/internal/domain/importjob"
	"github.com/ehr/notesync/internal/domain/note"
	"github.com/ehr/notesync/internal/domain/person"
	"github.com/ehr/notesync/internal/platform/db"
)

func TestPersonRepoPG(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	repo := person.NewPersonRepoPG(globalPool)

	g1, g2 := uuid.New(), uuid.New()
	p := &person.Person{FirstName: "John", LastName: "Doe", StatusID: 210}
	p.AddIdentifier(g1)
	require.NoError(t, repo.Create(ctx, p))
	assert.NotZero(t, p.ID)
	assert.False(t, p.CreatedAt.IsZero())
	require.Len(t, p.Identifiers, 1)
	assert.NotZero(t, p.Identifiers[0].ID)

	t.Run("FindByIdentifier", func(t *testing.T) {
		got, err := repo.FindByIdentifier(ctx, g1)
		require.NoError(t, err)
		assert.Equal(t, p.ID, got.ID)
		assert.Equal(t, []uuid.UUID{g1}, got.GUIDs())

		_, err = repo.FindByIdentifier(ctx, uuid.New())
		assert.ErrorIs(t, err, person.ErrNotFound)
	})

	t.Run("UpdateAddsIdentifier", func(t *testing.T) {
		p.StatusID = 220
		p.AddIdentifier(g2)
		require.NoError(t, repo.Update(ctx, p))

		got, err := repo.GetByID(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, int16(220), got.StatusID)
		assert.ElementsMatch(t, []uuid.UUID{g1, g2}, got.GUIDs())

		known, err := repo.KnownIdentifiers(ctx)
		require.NoError(t, err)
		assert.Equal(t, map[uuid.UUID]int64{g1: p.ID, g2: p.ID}, known)
	})

	t.Run("IdentifierIsUnique", func(t *testing.T) {
		other := &person.Person{FirstName: "Jane", LastName: "Roe", StatusID: 210}
		other.AddIdentifier(g1)
		err := db.NewTransactor(globalPool).InTx(ctx, func(ctx context.Context) error {
			return repo.Create(ctx, other)
		})
		assert.Error(t, err)
	})

	t.Run("UpdateMissing", func(t *testing.T) {
		err := repo.Update(ctx, &person.Person{ID: 9999, StatusID: 1})
		assert.ErrorIs(t, err, person.ErrNotFound)
	})

	t.Run("List", func(t *testing.T) {
		items, total, err := repo.List(ctx, 10, 0)
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		require.Len(t, items, 1)
		assert.Len(t, items[0].Identifiers, 2)
	})
}

func TestPersonRepoPG_RollbackDiscardsIdentifiers(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	repo := person.NewPersonRepoPG(globalPool)
	tx := db.NewTransactor(globalPool)

	boom := errors.New("boom")
	err := tx.InTx(ctx, func(ctx context.Context) error {
		p := &person.Person{FirstName: "Ghost", StatusID: 210}
		p.AddIdentifier(uuid.New())
		if err := repo.Create(ctx, p); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	all, err := repo.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
	known, err := repo.KnownIdentifiers(ctx)
	require.NoError(t, err)
	assert.Empty(t, known)
}

func TestNoteRepoPG(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	persons := person.NewPersonRepoPG(globalPool)
	notes := note.NewNoteRepoPG(globalPool)
	authors := note.NewAuthorRepoPG(globalPool)

	p := &person.Person{FirstName: "John", LastName: "Doe", StatusID: 210}
	require.NoError(t, persons.Create(ctx, p))

	a1, err := authors.FindOrCreate(ctx, "p.smith")
	require.NoError(t, err)
	a2, err := authors.FindOrCreate(ctx, "p.smith")
	require.NoError(t, err)
	assert.Equal(t, a1.ID, a2.ID)

	created := time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC)
	guid := uuid.New()
	n := &note.Note{
		PersonID:         p.ID,
		Comment:          "first",
		CreatedAt:        created,
		LastModifiedAt:   created,
		CreatedByID:      a1.ID,
		LastModifiedByID: a1.ID,
		Legacy:           &note.LegacyNoteLink{GUID: guid},
	}
	require.NoError(t, notes.Create(ctx, n))
	assert.NotZero(t, n.ID)

	got, err := notes.FindByLegacyGUID(ctx, guid)
	require.NoError(t, err)
	assert.Equal(t, "first", got.Comment)
	assert.True(t, created.Equal(got.LastModifiedAt))
	require.NotNil(t, got.Legacy)
	assert.Equal(t, n.ID, got.Legacy.NoteID)

	got.Comment = "second"
	got.LastModifiedAt = created.Add(time.Hour)
	require.NoError(t, notes.Update(ctx, got))

	again, err := notes.GetByID(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, "second", again.Comment)
	assert.True(t, created.Add(time.Hour).Equal(again.LastModifiedAt))

	_, err = notes.FindByLegacyGUID(ctx, uuid.New())
	assert.ErrorIs(t, err, note.ErrNotFound)

	items, total, err := notes.ListByPerson(ctx, p.ID, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, items, 1)
}

func TestJobRepoPG(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	repo := importjob.NewJobRepoPG(globalPool)

	run := &importjob.JobRun{StartedAt: time.Now().UTC(), Status: importjob.StatusRunning}
	require.NoError(t, repo.CreateRun(ctx, run))
	assert.NotZero(t, run.ID)

	msg := "Patient not found in database"
	clientGUID := uuid.NewString()
	require.NoError(t, repo.AddError(ctx, &importjob.ErrorRecord{
		JobRunID:   run.ID,
		ErrorTime:  time.Now().UTC(),
		ClientGUID: &clientGUID,
		Message:    msg,
	}))

	run.Finish(importjob.StatusFailed, importjob.Statistics{NewNotes: 3, Errors: 1, NewPersons: 2}, time.Now().UTC())
	require.NoError(t, repo.UpdateRun(ctx, run))

	got, err := repo.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, importjob.StatusFailed, got.Status)
	assert.Equal(t, 3, got.NewCount)
	assert.Equal(t, 2, got.NewPersons)
	assert.NotNil(t, got.FinishedAt)

	errs, total, err := repo.ListErrors(ctx, run.ID, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, errs, 1)
	assert.Equal(t, msg, errs[0].Message)
	assert.Nil(t, errs[0].NoteGUID)
	require.NotNil(t, errs[0].ClientGUID)
	assert.Equal(t, clientGUID, *errs[0].ClientGUID)

	_, err = repo.GetRun(ctx, 9999)
	assert.ErrorIs(t, err, importjob.ErrNotFound)
}

func TestJobRepoPG_WritesIgnoreCallerTx(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	repo := importjob.NewJobRepoPG(globalPool)
	tx := db.NewTransactor(globalPool)

	var runID int64
	err := tx.InTx(ctx, func(ctx context.Context) error {
		run := &importjob.JobRun{StartedAt: time.Now().UTC(), Status: importjob.StatusRunning}
		if err := repo.CreateRun(ctx, run); err != nil {
			return err
		}
		runID = run.ID
		return errors.New("rolled back")
	})
	require.Error(t, err)

	_, err = repo.GetRun(ctx, runID)
	assert.NoError(t, err, "audit rows survive a rolled back caller transaction")
}
