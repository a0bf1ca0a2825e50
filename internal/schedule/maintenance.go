package schedule

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/t77yq/installer-project/internal/storage"
)

// Maintenance runs periodic housekeeping: pruning install-history records
// older than the configured retention.
type Maintenance struct {
	logger    *zap.Logger
	cron      *cron.Cron
	history   storage.HistoryStore
	retention time.Duration
}

// cronLogger adapts zap.Logger to cron.Logger
type cronLogger struct {
	logger *zap.Logger
}

func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Info(msg)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, zap.Error(err))
}

// NewMaintenance creates the housekeeping runner.
func NewMaintenance(logger *zap.Logger, history storage.HistoryStore, retention time.Duration) *Maintenance {
	logger = logger.Named("maintenance")
	cronOptions := []cron.Option{
		cron.WithSeconds(),
		cron.WithChain(cron.Recover(&cronLogger{logger: logger.Named("cron")})),
	}
	return &Maintenance{
		logger:    logger,
		cron:      cron.New(cronOptions...),
		history:   history,
		retention: retention,
	}
}

// Start registers the prune entry on the given cron expression (with seconds
// field) and starts the cron loop.
func (m *Maintenance) Start(expression string) error {
	if _, err := m.cron.AddFunc(expression, m.prune); err != nil {
		return err
	}
	m.cron.Start()
	m.logger.Info("Maintenance started",
		zap.String("expression", expression),
		zap.Duration("retention", m.retention))
	return nil
}

// Stop stops the cron loop and waits for a running entry to finish.
func (m *Maintenance) Stop() {
	ctx := m.cron.Stop()
	<-ctx.Done()
}

func (m *Maintenance) prune() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cutoff := time.Now().Add(-m.retention)
	if err := m.history.DeleteBefore(ctx, cutoff); err != nil {
		m.logger.Error("Failed to prune install history", zap.Error(err))
	}
}
