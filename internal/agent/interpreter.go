package agent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/t77yq/installer-project/internal/catalog"
	"github.com/t77yq/installer-project/internal/model"
)

// Installer runs the install pipeline for one resolved item.
type Installer interface {
	Install(ctx context.Context, spec *model.SoftwareSpec)
}

// Events is the slice of the event bus the interpreter publishes to.
type Events interface {
	PublishLog(text string)
}

// Speaker announces interpreter outcomes. Implementations must never fail the
// caller.
type Speaker interface {
	Say(text string)
}

// Agent maps free-text commands to catalog items and dispatches their
// installation. Both the interactive path and scheduled jobs converge here.
type Agent struct {
	logger    *zap.Logger
	catalog   *catalog.Catalog
	installer Installer
	events    Events
	speaker   Speaker
}

// New creates an agent.
func New(logger *zap.Logger, cat *catalog.Catalog, installer Installer, events Events, speaker Speaker) *Agent {
	return &Agent{
		logger:    logger.Named("agent"),
		catalog:   cat,
		installer: installer,
		events:    events,
		speaker:   speaker,
	}
}

// Interpret resolves free text to an ordered list of items: every catalog
// identifier found in the text (case-insensitive substring), expanded through
// the dependency resolver, deduplicated preserving first-seen order.
func (a *Agent) Interpret(text string) []string {
	var order []string
	seen := make(map[string]bool)
	for _, name := range a.catalog.Match(text) {
		for _, item := range a.catalog.Resolve(name) {
			if seen[item] {
				continue
			}
			seen[item] = true
			order = append(order, item)
		}
	}
	return order
}

// Run interprets the command and dispatches each resolved item's installation
// as an independent unit of work. It does not wait for completion; failures of
// one item never block the others. An empty interpretation is reported once
// and ends the invocation.
func (a *Agent) Run(ctx context.Context, text string) {
	items := a.Interpret(text)
	if len(items) == 0 {
		a.logger.Info("No known software in command", zap.String("command", text))
		a.events.PublishLog(fmt.Sprintf("no known software found in command: %s", text))
		a.speaker.Say("No recognized software found in your command")
		return
	}

	a.logger.Info("Dispatching installs",
		zap.String("command", text),
		zap.Strings("order", items))
	a.events.PublishLog("installation order: " + strings.Join(items, ", "))
	a.speaker.Say("Installing in order: " + strings.Join(items, ", "))

	for _, item := range items {
		spec, ok := a.catalog.Get(item)
		if !ok {
			continue
		}
		go a.installer.Install(ctx, spec)
	}
}
