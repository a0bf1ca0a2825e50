package schedule

import "errors"

var (
	// ErrPastTime is returned when a job's fire time is not in the future
	ErrPastTime = errors.New("scheduled time must be in the future")
)
