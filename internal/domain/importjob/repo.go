package importjob

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("job run not found")

// Repository stores the audit trail. Implementations must write outside any
// caller transaction so that records of a failed run survive.
type Repository interface {
	CreateRun(ctx context.Context, run *JobRun) error
	UpdateRun(ctx context.Context, run *JobRun) error
	GetRun(ctx context.Context, id int64) (*JobRun, error)
	ListRuns(ctx context.Context, limit, offset int) ([]*JobRun, int, error)
	AddError(ctx context.Context, rec *ErrorRecord) error
	ListErrors(ctx context.Context, runID int64, limit, offset int) ([]*ErrorRecord, int, error)
}
