package model

import (
	"time"
)

// Job is a persisted scheduled command. Jobs are never mutated in place: a job
// is created, persisted, and later either fired or cancelled, both of which
// remove it. RunAt marshals as RFC 3339 with the local offset, which is what
// the on-disk store carries.
type Job struct {
	ID      string    `json:"id"`
	Command string    `json:"command"`
	RunAt   time.Time `json:"run_at"`
}

// Valid reports whether the job carries every required field. Entries loaded
// from disk that fail this check are treated as corrupt and dropped.
func (j Job) Valid() bool {
	return j.ID != "" && j.Command != "" && !j.RunAt.IsZero()
}
