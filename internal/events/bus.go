package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/t77yq/installer-project/internal/model"
)

// Bus is the in-process event surface between the install pipeline, the
// scheduler and the front-end collaborators (console, speech announcer).
// It runs an embedded NATS server with no network listener; publishers never
// block on consumers.
type Bus struct {
	logger *zap.Logger
	srv    *server.Server
	nc     *nats.Conn
}

// NewEmbedded starts the embedded server and connects to it in-process.
func NewEmbedded(logger *zap.Logger) (*Bus, error) {
	srv, err := server.NewServer(&server.Options{
		ServerName: "installer-agent-bus",
		DontListen: true,
		NoLog:      true,
		NoSigs:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create event bus server: %w", err)
	}

	go srv.Start()
	if !srv.ReadyForConnections(serverStartTimeout) {
		srv.Shutdown()
		return nil, fmt.Errorf("event bus server did not become ready")
	}

	nc, err := nats.Connect(nats.DefaultURL, nats.InProcessServer(srv))
	if err != nil {
		srv.Shutdown()
		return nil, fmt.Errorf("failed to connect to event bus: %w", err)
	}

	logger.Info("Event bus started", zap.String("server", srv.Name()))
	return &Bus{
		logger: logger.Named("events"),
		srv:    srv,
		nc:     nc,
	}, nil
}

// Close drains the connection and shuts the embedded server down.
func (b *Bus) Close() {
	if err := b.nc.Drain(); err != nil {
		b.logger.Warn("Failed to drain event bus connection", zap.Error(err))
	}
	deadline := time.Now().Add(drainTimeout)
	for !b.nc.IsClosed() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	b.srv.Shutdown()
	b.srv.WaitForShutdown()
}

// PublishStatus publishes an install status transition.
func (b *Bus) PublishStatus(ev model.InstallEvent) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	b.publish(fmt.Sprintf(installStatusSubject, ev.Item), ev)
}

// PublishProgress publishes download progress for an item.
func (b *Bus) PublishProgress(item string, percent int) {
	b.publish(fmt.Sprintf(installProgressSubject, item), model.ProgressEvent{
		Item:    item,
		Percent: percent,
	})
}

// PublishLog appends a line to the shared activity log.
func (b *Bus) PublishLog(text string) {
	b.publish(logAppendSubject, model.LogEvent{Text: text, At: time.Now()})
}

// PublishScheduleRefresh tells listeners the scheduled-jobs view is stale.
func (b *Bus) PublishScheduleRefresh() {
	if err := b.nc.Publish(scheduleRefreshSubject, nil); err != nil {
		b.logger.Error("Failed to publish schedule refresh", zap.Error(err))
	}
}

func (b *Bus) publish(subject string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		b.logger.Error("Failed to marshal event",
			zap.String("subject", subject),
			zap.Error(err))
		return
	}
	if err := b.nc.Publish(subject, data); err != nil {
		b.logger.Error("Failed to publish event",
			zap.String("subject", subject),
			zap.Error(err))
	}
}

// OnStatus subscribes to all install status transitions.
func (b *Bus) OnStatus(fn func(model.InstallEvent)) (*nats.Subscription, error) {
	return b.nc.Subscribe(installStatusWildcard, func(msg *nats.Msg) {
		var ev model.InstallEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			b.logger.Error("Failed to unmarshal status event", zap.Error(err))
			return
		}
		fn(ev)
	})
}

// OnProgress subscribes to all download progress events.
func (b *Bus) OnProgress(fn func(model.ProgressEvent)) (*nats.Subscription, error) {
	return b.nc.Subscribe(installProgressWild, func(msg *nats.Msg) {
		var ev model.ProgressEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			b.logger.Error("Failed to unmarshal progress event", zap.Error(err))
			return
		}
		fn(ev)
	})
}

// OnLog subscribes to activity log lines.
func (b *Bus) OnLog(fn func(model.LogEvent)) (*nats.Subscription, error) {
	return b.nc.Subscribe(logAppendSubject, func(msg *nats.Msg) {
		var ev model.LogEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			b.logger.Error("Failed to unmarshal log event", zap.Error(err))
			return
		}
		fn(ev)
	})
}

// OnScheduleRefresh subscribes to schedule-view refresh notifications.
func (b *Bus) OnScheduleRefresh(fn func()) (*nats.Subscription, error) {
	return b.nc.Subscribe(scheduleRefreshSubject, func(*nats.Msg) {
		fn()
	})
}
