package schedule

import (
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/t77yq/installer-project/internal/model"
)

type runRecorder struct {
	mu       sync.Mutex
	commands []string
	fired    chan string
}

func newRunRecorder() *runRecorder {
	return &runRecorder{fired: make(chan string, 8)}
}

func (r *runRecorder) run(command string) {
	r.mu.Lock()
	r.commands = append(r.commands, command)
	r.mu.Unlock()
	r.fired <- command
}

func (r *runRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.commands)
}

func TestSchedule_PastTimeRejectedWithoutPersistence(t *testing.T) {
	store := newTestStore(t)
	rec := newRunRecorder()
	s := New(zap.NewNop(), store, rec.run, nil)

	_, err := s.Schedule("install python", time.Now().Add(-time.Minute))
	require.ErrorIs(t, err, ErrPastTime)

	_, statErr := os.Stat(store.path)
	assert.True(t, os.IsNotExist(statErr), "rejected schedule must not touch the store")
	assert.Empty(t, s.Jobs())
}

func TestSchedule_PersistsAndFires(t *testing.T) {
	store := newTestStore(t)
	rec := newRunRecorder()

	var refreshes atomic.Int32
	s := New(zap.NewNop(), store, rec.run, func() { refreshes.Add(1) })

	id, err := s.Schedule("install python", time.Now().Add(300*time.Millisecond))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	// Persisted and findable by id before firing.
	persisted := store.Load()
	require.Contains(t, persisted, id)
	assert.Equal(t, "install python", persisted[id].Command)
	require.Len(t, s.Jobs(), 1)

	select {
	case cmd := <-rec.fired:
		assert.Equal(t, "install python", cmd)
	case <-time.After(2 * time.Second):
		t.Fatal("job did not fire")
	}

	// Fired jobs are removed from both the live set and the store.
	require.Eventually(t, func() bool {
		return len(s.Jobs()) == 0 && len(store.Load()) == 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, refreshes.Load(), int32(2))
}

func TestCancel_RemovesJobAndPreventsExecution(t *testing.T) {
	store := newTestStore(t)
	rec := newRunRecorder()
	s := New(zap.NewNop(), store, rec.run, nil)

	id, err := s.Schedule("install java", time.Now().Add(200*time.Millisecond))
	require.NoError(t, err)

	s.Cancel(id)

	assert.Empty(t, s.Jobs())
	assert.Empty(t, store.Load())

	time.Sleep(400 * time.Millisecond)
	assert.Zero(t, rec.count(), "cancelled job must never execute")
}

func TestCancel_UnknownIDIsNoOp(t *testing.T) {
	store := newTestStore(t)
	rec := newRunRecorder()
	s := New(zap.NewNop(), store, rec.run, nil)

	// Must not panic or error.
	s.Cancel("no-such-job")
	s.Cancel("")
}

func TestReconcile_OverdueRunsAndFutureRearms(t *testing.T) {
	store := newTestStore(t)

	overdue := model.Job{
		ID:      "overdue",
		Command: "install python",
		RunAt:   time.Now().Add(-time.Hour),
	}
	future := model.Job{
		ID:      "future",
		Command: "install java",
		RunAt:   time.Now().Add(400 * time.Millisecond),
	}
	require.NoError(t, store.Save(map[string]model.Job{
		overdue.ID: overdue,
		future.ID:  future,
	}))

	rec := newRunRecorder()
	s := New(zap.NewNop(), store, rec.run, nil)
	s.Reconcile()

	// Overdue job executes immediately in the background, exactly once.
	select {
	case cmd := <-rec.fired:
		assert.Equal(t, "install python", cmd)
	case <-time.After(2 * time.Second):
		t.Fatal("overdue job did not run")
	}

	// Overdue job is gone from the store; the future job survived.
	persisted := store.Load()
	require.Len(t, persisted, 1)
	assert.Contains(t, persisted, future.ID)
	require.Len(t, s.Jobs(), 1)

	// The future job's timer was re-armed for the remaining interval.
	select {
	case cmd := <-rec.fired:
		assert.Equal(t, "install java", cmd)
	case <-time.After(2 * time.Second):
		t.Fatal("re-armed job did not fire")
	}

	require.Eventually(t, func() bool {
		return len(store.Load()) == 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 2, rec.count())
}

func TestReconcile_EmptyStore(t *testing.T) {
	store := newTestStore(t)
	rec := newRunRecorder()
	s := New(zap.NewNop(), store, rec.run, nil)

	s.Reconcile()
	assert.Empty(t, s.Jobs())
	assert.Zero(t, rec.count())
}

func TestJobs_SortedByFireTime(t *testing.T) {
	store := newTestStore(t)
	rec := newRunRecorder()
	s := New(zap.NewNop(), store, rec.run, nil)

	later, err := s.Schedule("later", time.Now().Add(2*time.Hour))
	require.NoError(t, err)
	sooner, err := s.Schedule("sooner", time.Now().Add(time.Hour))
	require.NoError(t, err)

	jobs := s.Jobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, sooner, jobs[0].ID)
	assert.Equal(t, later, jobs[1].ID)
}

func TestStop_DisarmsTimersButKeepsStore(t *testing.T) {
	store := newTestStore(t)
	rec := newRunRecorder()
	s := New(zap.NewNop(), store, rec.run, nil)

	_, err := s.Schedule("install python", time.Now().Add(150*time.Millisecond))
	require.NoError(t, err)

	s.Stop()
	time.Sleep(300 * time.Millisecond)

	assert.Zero(t, rec.count(), "stopped scheduler must not fire")
	assert.Len(t, store.Load(), 1, "persisted jobs survive Stop for the next reconciliation")
}
