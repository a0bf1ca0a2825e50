package speech

import (
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/t77yq/installer-project/internal/events"
	"github.com/t77yq/installer-project/internal/model"
)

// Announcer bridges the event bus to the speech collaborator: install events
// carrying an announcement phrase get spoken. Speech failures never reach the
// install pipeline.
type Announcer struct {
	logger  *zap.Logger
	speaker Speaker
	sub     *nats.Subscription
}

// NewAnnouncer creates an announcer speaking through the given speaker.
func NewAnnouncer(logger *zap.Logger, speaker Speaker) *Announcer {
	return &Announcer{
		logger:  logger.Named("announcer"),
		speaker: speaker,
	}
}

// Attach subscribes the announcer to install status events.
func (a *Announcer) Attach(bus *events.Bus) error {
	sub, err := bus.OnStatus(func(ev model.InstallEvent) {
		if ev.Announce == "" {
			return
		}
		a.speaker.Say(ev.Announce)
	})
	if err != nil {
		return err
	}
	a.sub = sub
	return nil
}

// Close detaches the announcer from the bus.
func (a *Announcer) Close() {
	if a.sub != nil {
		if err := a.sub.Unsubscribe(); err != nil {
			a.logger.Debug("Failed to unsubscribe announcer", zap.Error(err))
		}
	}
}
