package schedule

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/t77yq/installer-project/internal/model"
)

// Runner executes the command pipeline for a fired job.
type Runner func(command string)

// Scheduler owns the live timers for pending jobs and keeps them reconciled
// with the persisted store. All access to the job and timer maps is serialized
// through one mutex; every mutation is flushed to disk before it takes effect
// for callers.
//
// Firing is at-least-once: a job is removed from the store after its command
// pipeline ran, so a crash in between can replay it on the next startup.
type Scheduler struct {
	logger *zap.Logger
	store  *Store
	run    Runner
	notify func()

	mu     sync.Mutex
	jobs   map[string]model.Job
	timers map[string]*time.Timer
}

// New creates a scheduler. notify, when non-nil, is invoked after every change
// to the pending job set so listeners can refresh their view.
func New(logger *zap.Logger, store *Store, run Runner, notify func()) *Scheduler {
	if notify == nil {
		notify = func() {}
	}
	return &Scheduler{
		logger: logger.Named("scheduler"),
		store:  store,
		run:    run,
		notify: notify,
		jobs:   make(map[string]model.Job),
		timers: make(map[string]*time.Timer),
	}
}

// Schedule records a command to run at runAt and arms its timer. It fails with
// ErrPastTime before any persistence when runAt is not strictly in the future,
// and returns the new job id immediately otherwise.
func (s *Scheduler) Schedule(command string, runAt time.Time) (string, error) {
	delay := time.Until(runAt)
	if delay <= 0 {
		return "", ErrPastTime
	}

	job := model.Job{
		ID:      uuid.New().String(),
		Command: command,
		RunAt:   runAt,
	}

	s.mu.Lock()
	s.jobs[job.ID] = job
	if err := s.store.Save(s.jobs); err != nil {
		delete(s.jobs, job.ID)
		s.mu.Unlock()
		return "", err
	}
	s.timers[job.ID] = time.AfterFunc(delay, func() {
		s.fire(job.ID, job.Command)
	})
	s.mu.Unlock()

	s.logger.Info("Scheduled job",
		zap.String("id", job.ID),
		zap.String("command", command),
		zap.Time("run_at", runAt))
	s.notify()
	return job.ID, nil
}

// fire runs a job's command, then removes the job from both the live set and
// the store, regardless of the pipeline outcome.
func (s *Scheduler) fire(id, command string) {
	s.logger.Info("Running scheduled job",
		zap.String("id", id),
		zap.String("command", command))
	s.run(command)

	s.mu.Lock()
	delete(s.jobs, id)
	delete(s.timers, id)
	if err := s.store.Save(s.jobs); err != nil {
		s.logger.Error("Failed to persist job removal",
			zap.String("id", id),
			zap.Error(err))
	}
	s.mu.Unlock()

	s.notify()
}

// Cancel stops a pending job's timer and removes it from the store. It is
// idempotent: an unknown or already-fired id is a silent no-op. A timer
// already mid-fire may still complete.
func (s *Scheduler) Cancel(id string) {
	s.mu.Lock()
	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}
	_, existed := s.jobs[id]
	if existed {
		delete(s.jobs, id)
		if err := s.store.Save(s.jobs); err != nil {
			s.logger.Error("Failed to persist job cancellation",
				zap.String("id", id),
				zap.Error(err))
		}
	}
	s.mu.Unlock()

	if existed {
		s.logger.Info("Cancelled job", zap.String("id", id))
		s.notify()
	}
}

// Reconcile loads the persisted store and re-establishes the live set: jobs
// whose fire time already passed run immediately on a background unit of work
// and are removed; future jobs without a live timer are re-armed for the
// remaining interval.
func (s *Scheduler) Reconcile() {
	loaded := s.store.Load()
	now := time.Now()

	s.mu.Lock()
	for id, job := range loaded {
		if !job.RunAt.After(now) {
			s.logger.Info("Running overdue job",
				zap.String("id", id),
				zap.String("command", job.Command),
				zap.Time("run_at", job.RunAt))
			go s.run(job.Command)
			continue
		}

		s.jobs[id] = job
		if _, armed := s.timers[id]; !armed {
			id, command := id, job.Command
			s.timers[id] = time.AfterFunc(time.Until(job.RunAt), func() {
				s.fire(id, command)
			})
		}
	}
	if err := s.store.Save(s.jobs); err != nil {
		s.logger.Error("Failed to persist reconciled job set", zap.Error(err))
	}
	pending := len(s.jobs)
	s.mu.Unlock()

	s.logger.Info("Reconciled job store",
		zap.Int("loaded", len(loaded)),
		zap.Int("pending", pending))
	s.notify()
}

// Jobs returns the pending jobs ordered by fire time.
func (s *Scheduler) Jobs() []model.Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs := make([]model.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, job)
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].RunAt.Before(jobs[j].RunAt)
	})
	return jobs
}

// Stop disarms every live timer. Persisted jobs are untouched and fire on the
// next startup's reconciliation.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}
