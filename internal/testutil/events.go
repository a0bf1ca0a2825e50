package testutil

import (
	"sync"

	"github.com/t77yq/installer-project/internal/model"
)

// EventRecorder is an in-memory stand-in for the event bus, used by tests that
// exercise producers without spinning up the embedded server.
type EventRecorder struct {
	mu        sync.Mutex
	statuses  []model.InstallEvent
	progress  []model.ProgressEvent
	logs      []string
	refreshes int
}

func NewEventRecorder() *EventRecorder {
	return &EventRecorder{}
}

func (r *EventRecorder) PublishStatus(ev model.InstallEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, ev)
}

func (r *EventRecorder) PublishProgress(item string, percent int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, model.ProgressEvent{Item: item, Percent: percent})
}

func (r *EventRecorder) PublishLog(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, text)
}

func (r *EventRecorder) PublishScheduleRefresh() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refreshes++
}

// StatusSequence returns the status transitions recorded for an item, in
// order.
func (r *EventRecorder) StatusSequence(item string) []model.InstallStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	var seq []model.InstallStatus
	for _, ev := range r.statuses {
		if ev.Item == item {
			seq = append(seq, ev.Status)
		}
	}
	return seq
}

// Statuses returns a copy of every status event recorded.
func (r *EventRecorder) Statuses() []model.InstallEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.InstallEvent, len(r.statuses))
	copy(out, r.statuses)
	return out
}

// ProgressFor returns the percentages recorded for an item.
func (r *EventRecorder) ProgressFor(item string) []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []int
	for _, ev := range r.progress {
		if ev.Item == item {
			out = append(out, ev.Percent)
		}
	}
	return out
}

// Logs returns a copy of the recorded log lines.
func (r *EventRecorder) Logs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.logs))
	copy(out, r.logs)
	return out
}

// Refreshes returns how many schedule refresh notifications were published.
func (r *EventRecorder) Refreshes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refreshes
}
