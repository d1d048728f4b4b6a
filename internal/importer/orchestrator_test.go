package importer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/notesync/internal/domain/importjob"
	"github.com/ehr/notesync/internal/domain/note"
	"github.com/ehr/notesync/internal/domain/person"
	"github.com/ehr/notesync/internal/legacy"
)

type notesCall struct {
	agency   string
	guid     uuid.UUID
	from, to time.Time
}

type fakeSource struct {
	mu         sync.Mutex
	clients    []legacy.ClientRecord
	clientsErr error
	notes      map[uuid.UUID][]legacy.NoteRecord
	notesErr   map[uuid.UUID]error
	calls      []notesCall
}

func newFakeSource(clients ...legacy.ClientRecord) *fakeSource {
	return &fakeSource{
		clients:  clients,
		notes:    make(map[uuid.UUID][]legacy.NoteRecord),
		notesErr: make(map[uuid.UUID]error),
	}
}

func (f *fakeSource) FetchAllClients(context.Context) ([]legacy.ClientRecord, error) {
	if f.clientsErr != nil {
		return nil, f.clientsErr
	}
	return append([]legacy.ClientRecord(nil), f.clients...), nil
}

func (f *fakeSource) FetchClientNotes(_ context.Context, agency string, guid uuid.UUID, from, to time.Time) ([]legacy.NoteRecord, error) {
	f.mu.Lock()
	f.calls = append(f.calls, notesCall{agency: agency, guid: guid, from: from, to: to})
	f.mu.Unlock()
	if err := f.notesErr[guid]; err != nil {
		return nil, err
	}
	return f.notes[guid], nil
}

// panickySyncer panics on one note GUID and delegates the rest.
type panickySyncer struct {
	next    NoteSyncer
	panicOn string
}

func (p panickySyncer) Upsert(ctx context.Context, pr *person.Person, src *legacy.NoteRecord) (note.Result, error) {
	if src.GUID == p.panicOn {
		panic("corrupt note payload")
	}
	return p.next.Upsert(ctx, pr, src)
}

type harness struct {
	source  *fakeSource
	persons *person.MemoryRepository
	notes   *note.MemoryRepository
	jobs    *importjob.MemoryRepository
	syncer  NoteSyncer
	orch    *Orchestrator
}

var fixedNow = time.Date(2024, 6, 15, 1, 15, 0, 0, time.UTC)

func newHarness(source *fakeSource) *harness {
	h := &harness{
		source:  source,
		persons: person.NewMemoryRepository(),
		notes:   note.NewMemoryRepository(),
		jobs:    importjob.NewMemoryRepository(),
	}
	h.syncer = note.NewSyncer(h.notes, note.NewMemoryAuthorRepository(), nil, zerolog.Nop())
	h.build()
	return h
}

func (h *harness) build() {
	logger := zerolog.Nop()
	h.orch = NewOrchestrator(
		h.source,
		person.NewReconciler(h.persons, nil, logger),
		h.syncer,
		h.jobs,
		importjob.NewReporter(h.jobs, logger),
		2,
		logger,
	)
	h.orch.now = func() time.Time { return fixedNow }
}

func (h *harness) errorRecords(t *testing.T, runID int64) []*importjob.ErrorRecord {
	t.Helper()
	recs, _, err := h.jobs.ListErrors(context.Background(), runID, 100, 0)
	require.NoError(t, err)
	return recs
}

func status(v int16) *int16 { return &v }

func client(guid uuid.UUID, first, last, dob string, st *int16) legacy.ClientRecord {
	return legacy.ClientRecord{
		Agency:    "agency-1",
		GUID:      guid.String(),
		FirstName: first,
		LastName:  last,
		DOB:       dob,
		Status:    st,
	}
}

func legacyNote(client uuid.UUID, comment, modified string) legacy.NoteRecord {
	return legacy.NoteRecord{
		GUID:             uuid.NewString(),
		Comments:         comment,
		CreatedDateTime:  "2024-01-01 08:00:00",
		ModifiedDateTime: modified,
		ClientGUID:       client.String(),
		LoggedUser:       "nurse.kelly",
	}
}

func TestRun_JohnDoeEndToEnd(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	src := newFakeSource(
		client(a, "John", "Doe", "1990-01-01", status(210)),
		client(b, "John", "Doe", "1990-01-01", status(200)),
	)
	src.notes[a] = []legacy.NoteRecord{
		legacyNote(a, "intake", "2024-01-02 10:00:00"),
		legacyNote(a, "follow-up", "2024-02-02 10:00:00 CST"),
	}
	h := newHarness(src)

	run, err := h.orch.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, importjob.StatusSuccess, run.Status)
	assert.Equal(t, 1, run.NewPersons)
	assert.Equal(t, 0, run.SkippedPersons)
	assert.Equal(t, 2, run.NewCount)
	assert.Equal(t, 1, run.SkippedCount, "inactive client B counts as skipped")
	assert.Equal(t, 0, run.ErrorCount)
	require.NotNil(t, run.FinishedAt)

	p, err := h.persons.FindByIdentifier(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, "John", p.FirstName)
	assert.ElementsMatch(t, []uuid.UUID{a, b}, p.GUIDs())
	assert.Equal(t, 1, h.persons.Len())
	assert.Equal(t, 2, h.notes.Len())

	stored, err := h.jobs.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, importjob.StatusSuccess, stored.Status)
	assert.Equal(t, 2, stored.NewCount)
}

func TestRun_SecondRunIsIdempotent(t *testing.T) {
	a := uuid.New()
	src := newFakeSource(client(a, "Jane", "Roe", "1985-03-04", status(220)))
	src.notes[a] = []legacy.NoteRecord{
		legacyNote(a, "one", "2024-01-02 10:00:00"),
		legacyNote(a, "two", "2024-01-03 10:00:00"),
	}
	h := newHarness(src)

	_, err := h.orch.Run(context.Background())
	require.NoError(t, err)
	second, err := h.orch.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, second.NewPersons)
	assert.Equal(t, 1, second.SkippedPersons)
	assert.Equal(t, 0, second.NewCount)
	assert.Equal(t, 0, second.UpdatedCount)
	assert.Equal(t, 2, second.SkippedCount)
	assert.Equal(t, 1, h.persons.Len())
	assert.Equal(t, 2, h.notes.Len())
}

func TestRun_UpdatedNoteWinsOnRerun(t *testing.T) {
	a := uuid.New()
	src := newFakeSource(client(a, "Jane", "Roe", "1985-03-04", status(230)))
	n := legacyNote(a, "draft", "2024-01-02 10:00:00")
	src.notes[a] = []legacy.NoteRecord{n}
	h := newHarness(src)

	_, err := h.orch.Run(context.Background())
	require.NoError(t, err)

	n.Comments = "final"
	n.ModifiedDateTime = "2024-01-02 10:00:01"
	src.notes[a] = []legacy.NoteRecord{n}
	run, err := h.orch.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, run.UpdatedCount)

	stored, err := h.notes.FindByLegacyGUID(context.Background(), uuid.MustParse(n.GUID))
	require.NoError(t, err)
	assert.Equal(t, "final", stored.Comment)
}

func TestRun_PartialFailuresAreIsolated(t *testing.T) {
	good, broken, crashing, orphan := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	src := newFakeSource(
		client(good, "Ann", "Good", "1970-01-01", status(210)),
		client(broken, "Bob", "Broken", "1971-01-01", status(210)),
		client(crashing, "Cid", "Crash", "1972-01-01", status(210)),
		// no dob: never reconciled, so no person to attach notes to
		legacy.ClientRecord{GUID: orphan.String(), FirstName: "Dee", LastName: "Orphan", Status: status(220)},
	)
	badNote := legacyNote(good, "bad", "")
	badNote.GUID = "not-a-guid"
	src.notes[good] = []legacy.NoteRecord{
		legacyNote(good, "fine", "2024-01-02 10:00:00"),
		badNote,
		legacyNote(good, "also fine", "2024-01-03 10:00:00"),
	}
	src.notesErr[broken] = &legacy.TransportError{Op: "fetch notes", StatusCode: 502, Err: errors.New("bad gateway")}
	boom := legacyNote(crashing, "boom", "2024-01-02 10:00:00")
	src.notes[crashing] = []legacy.NoteRecord{boom, legacyNote(crashing, "after", "2024-01-05 10:00:00")}

	h := newHarness(src)
	h.syncer = panickySyncer{next: h.syncer, panicOn: boom.GUID}
	h.build()

	run, err := h.orch.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, importjob.StatusSuccess, run.Status)
	assert.Equal(t, 3, run.NewPersons)
	assert.Equal(t, 3, run.NewCount)
	assert.Equal(t, 4, run.ErrorCount)

	recs := h.errorRecords(t, run.ID)
	require.Len(t, recs, 4)

	var sawBadNote, sawTransport, sawPanic, sawOrphan bool
	for _, rec := range recs {
		switch {
		case rec.NoteGUID != nil && *rec.NoteGUID == "not-a-guid":
			sawBadNote = true
			require.NotNil(t, rec.PersonID)
			require.NotNil(t, rec.ClientGUID)
			assert.Equal(t, good.String(), *rec.ClientGUID)
		case rec.NoteGUID != nil && *rec.NoteGUID == boom.GUID:
			sawPanic = true
			assert.Contains(t, rec.Message, "panic: corrupt note payload")
		case rec.ClientGUID != nil && *rec.ClientGUID == broken.String():
			sawTransport = true
			assert.Contains(t, rec.Message, "Failed to process client notes")
			require.NotNil(t, rec.Detail)
			assert.Contains(t, *rec.Detail, "status=502")
		case rec.ClientGUID != nil && *rec.ClientGUID == orphan.String():
			sawOrphan = true
			assert.Equal(t, "Patient not found in database", rec.Message)
			assert.Nil(t, rec.Detail)
		}
	}
	assert.True(t, sawBadNote, "invalid note recorded")
	assert.True(t, sawTransport, "note fetch failure recorded")
	assert.True(t, sawPanic, "panic recorded")
	assert.True(t, sawOrphan, "missing patient recorded")
}

func TestRun_FetchClientsFailureIsFatal(t *testing.T) {
	src := newFakeSource()
	src.clientsErr = &legacy.TransportError{Op: "fetch clients", Err: errors.New("connection refused")}
	h := newHarness(src)

	run, err := h.orch.Run(context.Background())
	require.Error(t, err)

	var fatal *FatalError
	require.True(t, errors.As(err, &fatal))
	assert.Equal(t, run.ID, fatal.RunID)
	assert.True(t, errors.Is(err, legacy.ErrTransport))

	assert.Equal(t, importjob.StatusFailed, run.Status)
	assert.Equal(t, 1, run.ErrorCount)
	stored, _ := h.jobs.GetRun(context.Background(), run.ID)
	assert.Equal(t, importjob.StatusFailed, stored.Status)
	require.NotNil(t, stored.FinishedAt)

	recs := h.errorRecords(t, run.ID)
	require.Len(t, recs, 1)
	assert.Contains(t, recs[0].Message, "Fatal error: fetch clients")
	assert.Nil(t, recs[0].NoteGUID)
	assert.Nil(t, recs[0].PersonID)
	assert.Nil(t, recs[0].ClientGUID)
}

func TestRun_CancelledContextFailsRun(t *testing.T) {
	a := uuid.New()
	h := newHarness(newFakeSource(client(a, "Jane", "Roe", "1985-03-04", status(220))))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run, err := h.orch.Run(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, importjob.StatusFailed, run.Status)

	stored, _ := h.jobs.GetRun(context.Background(), run.ID)
	assert.Equal(t, importjob.StatusFailed, stored.Status)
}

func TestRun_LookbackWindow(t *testing.T) {
	a := uuid.New()
	src := newFakeSource(client(a, "Jane", "Roe", "1985-03-04", status(210)))
	h := newHarness(src)

	_, err := h.orch.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, src.calls, 1)
	call := src.calls[0]
	assert.Equal(t, "agency-1", call.agency)
	assert.Equal(t, a, call.guid)
	assert.Equal(t, fixedNow, call.to)
	assert.Equal(t, time.Date(2022, 6, 15, 1, 15, 0, 0, time.UTC), call.from)
}

func TestRun_InactiveClientsAreNotFetched(t *testing.T) {
	src := newFakeSource(
		client(uuid.New(), "Ann", "One", "1970-01-01", status(100)),
		client(uuid.New(), "Bob", "Two", "1971-01-01", nil),
	)
	h := newHarness(src)

	run, err := h.orch.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, src.calls)
	assert.Equal(t, 2, run.SkippedCount)
	assert.Equal(t, 2, run.NewPersons)
}
