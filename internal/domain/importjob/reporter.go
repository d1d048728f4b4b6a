package importjob

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Reporter is the audit sink of a run: it logs errors and statistics and
// persists every error as an ErrorRecord.
type Reporter struct {
	repo   Repository
	logger zerolog.Logger
	now    func() time.Time
}

func NewReporter(repo Repository, logger zerolog.Logger) *Reporter {
	return &Reporter{
		repo:   repo,
		logger: logger.With().Str("component", "import-report").Logger(),
		now:    time.Now,
	}
}

// LogError logs msg and appends an ErrorRecord to run. A failure to persist
// the record is logged and otherwise ignored so reporting never breaks a run.
func (r *Reporter) LogError(ctx context.Context, run *JobRun, subj Subject, msg string, err error) {
	ev := r.logger.Error().Err(err)
	if subj.NoteGUID != "" {
		ev = ev.Str("note_guid", subj.NoteGUID)
	}
	if subj.PersonID != 0 {
		ev = ev.Int64("person_id", subj.PersonID)
	}
	if subj.ClientGUID != "" {
		ev = ev.Str("client_guid", subj.ClientGUID)
	}
	if run != nil {
		ev = ev.Int64("job_run_id", run.ID)
	}
	ev.Msg(msg)

	if run == nil {
		return
	}
	rec := &ErrorRecord{
		JobRunID:   run.ID,
		ErrorTime:  r.now().UTC(),
		NoteGUID:   optString(subj.NoteGUID),
		PersonID:   optInt64(subj.PersonID),
		ClientGUID: optString(subj.ClientGUID),
		Message:    msg,
	}
	if err != nil {
		detail := ErrorChain(err)
		rec.Detail = &detail
	}
	if saveErr := r.repo.AddError(context.WithoutCancel(ctx), rec); saveErr != nil {
		r.logger.Error().Err(saveErr).Int64("job_run_id", run.ID).Msg("failed to persist import error")
	}
}

// LogStatistics emits the final counters of a run.
func (r *Reporter) LogStatistics(run *JobRun, stats Statistics) {
	ev := r.logger.Info().
		Int("new_persons", stats.NewPersons).
		Int("updated_persons", stats.UpdatedPersons).
		Int("skipped_persons", stats.SkippedPersons).
		Int("new_notes", stats.NewNotes).
		Int("updated_notes", stats.UpdatedNotes).
		Int("skipped_notes", stats.SkippedNotes).
		Int("errors", stats.Errors)
	if run != nil {
		ev = ev.Int64("job_run_id", run.ID).Str("status", string(run.Status))
	}
	ev.Msg("import statistics")
}

// ErrorChain renders err and every error it wraps, one per line, outermost
// first.
func ErrorChain(err error) string {
	var sb strings.Builder
	for depth := 0; err != nil; depth++ {
		if depth > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "%T: %s", err, err.Error())
		err = errors.Unwrap(err)
	}
	return sb.String()
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func optInt64(v int64) *int64 {
	if v == 0 {
		return nil
	}
	return &v
}
