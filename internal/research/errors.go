package research

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound covers both missing jobs and jobs owned by another user.
	ErrNotFound   = errors.New("research job not found")
	ErrNotReady   = errors.New("report not ready")
	ErrEmptyTopic = errors.New("topic must not be empty")
	ErrEmptyFact  = errors.New("fact text must not be empty")

	// ErrReportMissing is returned for a done job without a stored report.
	ErrReportMissing = fmt.Errorf("%w: report missing", ErrNotFound)
)

// NotReadyError carries the job status at the time the report was requested.
type NotReadyError struct {
	Status Status
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("report not ready yet, current status: %s", e.Status)
}

func (e *NotReadyError) Is(target error) bool { return target == ErrNotReady }
