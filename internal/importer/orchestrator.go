package importer

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/notesync/internal/domain/importjob"
	"github.com/ehr/notesync/internal/domain/note"
	"github.com/ehr/notesync/internal/domain/person"
	"github.com/ehr/notesync/internal/legacy"
)

// FatalError aborts a whole run. The run is still finalized as FAILED.
type FatalError struct {
	RunID int64
	Err   error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("import run %d failed: %v", e.RunID, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// PersonReconciler is the part of person.Reconciler the orchestrator needs.
type PersonReconciler interface {
	Reconcile(ctx context.Context, clients []legacy.ClientRecord) (*person.ReconcileResult, error)
	GUIDIndex(ctx context.Context) (map[uuid.UUID]*person.Person, error)
}

// NoteSyncer is the part of note.Syncer the orchestrator needs.
type NoteSyncer interface {
	Upsert(ctx context.Context, p *person.Person, src *legacy.NoteRecord) (note.Result, error)
}

// Orchestrator runs one full import: fetch clients, reconcile persons, then
// sync the notes of every active client.
type Orchestrator struct {
	source        legacy.Source
	persons       PersonReconciler
	notes         NoteSyncer
	jobs          importjob.Repository
	report        *importjob.Reporter
	lookbackYears int
	logger        zerolog.Logger
	now           func() time.Time
}

func NewOrchestrator(
	source legacy.Source,
	persons PersonReconciler,
	notes NoteSyncer,
	jobs importjob.Repository,
	report *importjob.Reporter,
	lookbackYears int,
	logger zerolog.Logger,
) *Orchestrator {
	return &Orchestrator{
		source:        source,
		persons:       persons,
		notes:         notes,
		jobs:          jobs,
		report:        report,
		lookbackYears: lookbackYears,
		logger:        logger.With().Str("component", "importer").Logger(),
		now:           time.Now,
	}
}

// run carries the mutable state of one execution.
type run struct {
	job   *importjob.JobRun
	stats importjob.Statistics
}

// Run executes one import. The returned JobRun is always finalized when it
// could be created; a non-nil error is a *FatalError.
func (o *Orchestrator) Run(ctx context.Context) (*importjob.JobRun, error) {
	r := &run{job: &importjob.JobRun{
		StartedAt: o.now().UTC(),
		Status:    importjob.StatusRunning,
	}}
	if err := o.jobs.CreateRun(ctx, r.job); err != nil {
		return nil, &FatalError{Err: fmt.Errorf("create job run: %w", err)}
	}
	o.logger.Info().Int64("job_run_id", r.job.ID).Msg("import started")

	status := importjob.StatusSuccess
	var runErr error
	if err := o.guard(func() error { return o.execute(ctx, r) }); err != nil {
		status = importjob.StatusFailed
		r.stats.Errors++
		o.report.LogError(ctx, r.job, importjob.Subject{}, "Fatal error: "+err.Error(), err)
		runErr = &FatalError{RunID: r.job.ID, Err: err}
	}

	r.job.Finish(status, r.stats, o.now().UTC())
	if err := o.jobs.UpdateRun(context.WithoutCancel(ctx), r.job); err != nil {
		o.logger.Error().Err(err).Int64("job_run_id", r.job.ID).Msg("failed to finalize job run")
		if runErr == nil {
			runErr = &FatalError{RunID: r.job.ID, Err: fmt.Errorf("finalize job run: %w", err)}
		}
	}
	o.report.LogStatistics(r.job, r.stats)
	return r.job, runErr
}

func (o *Orchestrator) execute(ctx context.Context, r *run) error {
	clients, err := o.source.FetchAllClients(ctx)
	if err != nil {
		return fmt.Errorf("fetch clients: %w", err)
	}
	o.logger.Info().Int("clients", len(clients)).Msg("fetched legacy clients")

	res, err := o.persons.Reconcile(ctx, clients)
	if err != nil {
		return fmt.Errorf("reconcile persons: %w", err)
	}
	r.stats.NewPersons += res.New
	r.stats.UpdatedPersons += res.Updated
	r.stats.SkippedPersons += res.Skipped
	for _, f := range res.Failures {
		r.stats.Errors++
		o.report.LogError(ctx, r.job, importjob.Subject{PersonID: f.PersonID, ClientGUID: f.ClientGUID},
			"Failed to reconcile patient: "+f.Err.Error(), f)
	}

	index, err := o.persons.GUIDIndex(ctx)
	if err != nil {
		return fmt.Errorf("build GUID index: %w", err)
	}

	to := o.now().UTC()
	from := to.AddDate(-o.lookbackYears, 0, 0)
	for i := range clients {
		if err := ctx.Err(); err != nil {
			return err
		}
		c := &clients[i]
		err := o.guard(func() error { return o.processClient(ctx, r, c, index, from, to) })
		if err != nil {
			r.stats.Errors++
			o.report.LogError(ctx, r.job, importjob.Subject{ClientGUID: c.GUID},
				"Failed to process client notes: "+err.Error(), err)
		}
	}
	return nil
}

func (o *Orchestrator) processClient(ctx context.Context, r *run, c *legacy.ClientRecord,
	index map[uuid.UUID]*person.Person, from, to time.Time) error {
	if !c.IsActive() {
		if c.Status == nil {
			o.logger.Debug().Str("client_guid", c.GUID).Msg("client has null status, treating as inactive")
		} else {
			o.logger.Debug().Str("client_guid", c.GUID).Int16("status", *c.Status).Msg("skipping notes of inactive client")
		}
		r.stats.SkippedNotes++
		return nil
	}

	guid, err := c.ParsedGUID()
	if err != nil {
		return err
	}
	p := index[guid]
	if p == nil {
		r.stats.Errors++
		o.report.LogError(ctx, r.job, importjob.Subject{ClientGUID: c.GUID}, "Patient not found in database", nil)
		return nil
	}

	notes, err := o.source.FetchClientNotes(ctx, c.Agency, guid, from, to)
	if err != nil {
		return fmt.Errorf("fetch notes for client %s: %w", guid, err)
	}

	for i := range notes {
		src := &notes[i]
		var res note.Result
		err := o.guard(func() error {
			var err error
			res, err = o.notes.Upsert(ctx, p, src)
			return err
		})
		if err != nil {
			r.stats.Errors++
			o.report.LogError(ctx, r.job,
				importjob.Subject{NoteGUID: src.GUID, PersonID: p.ID, ClientGUID: c.GUID},
				"Failed to process note: "+err.Error(), err)
			continue
		}
		switch res {
		case note.Created:
			r.stats.NewNotes++
		case note.Updated:
			r.stats.UpdatedNotes++
		case note.Skipped:
			r.stats.SkippedNotes++
		}
	}
	return nil
}

// PanicError is a panic recovered while processing one unit of work.
type PanicError struct {
	Value interface{}
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }

// guard runs fn and turns a panic into a *PanicError, logging the stack.
func (o *Orchestrator) guard(fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			var stack [4096]byte
			n := runtime.Stack(stack[:], false)
			o.logger.Error().
				Str("panic", fmt.Sprintf("%v", rec)).
				Str("stack", string(stack[:n])).
				Msg("panic recovered")
			err = &PanicError{Value: rec}
		}
	}()
	return fn()
}
