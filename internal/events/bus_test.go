package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/t77yq/installer-project/internal/model"
)

func startBus(t *testing.T) *Bus {
	t.Helper()
	bus, err := NewEmbedded(zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(bus.Close)
	return bus
}

func TestBus_StatusRoundTrip(t *testing.T) {
	bus := startBus(t)

	received := make(chan model.InstallEvent, 1)
	sub, err := bus.OnStatus(func(ev model.InstallEvent) {
		received <- ev
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	bus.PublishStatus(model.InstallEvent{
		Item:    "python",
		Status:  model.StatusDownloading,
		Message: "fetching installer",
	})

	select {
	case ev := <-received:
		assert.Equal(t, "python", ev.Item)
		assert.Equal(t, model.StatusDownloading, ev.Status)
		assert.Equal(t, "fetching installer", ev.Message)
		assert.False(t, ev.At.IsZero())
	case <-time.After(2 * time.Second):
		t.Fatal("status event not delivered")
	}
}

func TestBus_ProgressAndLog(t *testing.T) {
	bus := startBus(t)

	progress := make(chan model.ProgressEvent, 1)
	logs := make(chan model.LogEvent, 1)

	psub, err := bus.OnProgress(func(ev model.ProgressEvent) { progress <- ev })
	require.NoError(t, err)
	defer psub.Unsubscribe()

	lsub, err := bus.OnLog(func(ev model.LogEvent) { logs <- ev })
	require.NoError(t, err)
	defer lsub.Unsubscribe()

	bus.PublishProgress("java", 42)
	bus.PublishLog("downloading java")

	select {
	case ev := <-progress:
		assert.Equal(t, "java", ev.Item)
		assert.Equal(t, 42, ev.Percent)
	case <-time.After(2 * time.Second):
		t.Fatal("progress event not delivered")
	}

	select {
	case ev := <-logs:
		assert.Equal(t, "downloading java", ev.Text)
	case <-time.After(2 * time.Second):
		t.Fatal("log event not delivered")
	}
}

func TestBus_ScheduleRefresh(t *testing.T) {
	bus := startBus(t)

	refreshed := make(chan struct{}, 1)
	sub, err := bus.OnScheduleRefresh(func() { refreshed <- struct{}{} })
	require.NoError(t, err)
	defer sub.Unsubscribe()

	bus.PublishScheduleRefresh()

	select {
	case <-refreshed:
	case <-time.After(2 * time.Second):
		t.Fatal("schedule refresh not delivered")
	}
}
