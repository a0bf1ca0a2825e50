package installer

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/t77yq/installer-project/internal/download"
	"github.com/t77yq/installer-project/internal/model"
	"github.com/t77yq/installer-project/internal/storage"
)

// Downloader fetches a remote artifact to local storage.
type Downloader interface {
	Fetch(ctx context.Context, url, dest string, onProgress download.ProgressFunc) error
}

// CommandRunner invokes an acquired installer as a subprocess. A non-zero exit
// is returned as an error.
type CommandRunner interface {
	Run(ctx context.Context, path string, args []string) error
}

// Events is the slice of the event bus the executor publishes to.
type Events interface {
	PublishStatus(ev model.InstallEvent)
	PublishProgress(item string, percent int)
	PublishLog(text string)
}

// Config defines configuration for the executor
type Config struct {
	DownloadDir   string
	MaxConcurrent int
	MaxCPUPercent float64
	MinFreeMemory uint64
}

// Executor runs the per-item install pipeline: presence check, download,
// subprocess invocation. Each item is an independent unit of work; a failure
// is reported and never propagated to siblings.
type Executor struct {
	logger    *zap.Logger
	cfg       Config
	downloads Downloader
	runner    CommandRunner
	events    Events
	history   storage.HistoryStore
	gate      *resourceGate
	goos      string
}

// New creates an executor. history may be nil when attempts should not be
// recorded.
func New(logger *zap.Logger, cfg Config, downloads Downloader, events Events, history storage.HistoryStore) *Executor {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	return &Executor{
		logger:    logger.Named("installer"),
		cfg:       cfg,
		downloads: downloads,
		runner:    &execRunner{},
		events:    events,
		history:   history,
		gate:      newResourceGate(logger, cfg.MaxConcurrent, cfg.MaxCPUPercent, cfg.MinFreeMemory),
		goos:      runtime.GOOS,
	}
}

// SetRunner overrides the subprocess runner.
func (e *Executor) SetRunner(r CommandRunner) { e.runner = r }

// SetPlatform overrides the platform used to select acquisition descriptors.
func (e *Executor) SetPlatform(goos string) { e.goos = goos }

// Install runs the pipeline for one item. It blocks until the item reaches a
// terminal state; callers dispatch it on its own goroutine.
func (e *Executor) Install(ctx context.Context, spec *model.SoftwareSpec) {
	plat := spec.Platform(e.goos)
	if plat == nil {
		e.report(spec.Name, model.StatusInstallFailed,
			fmt.Sprintf("no installer available for %s", e.goos), "")
		return
	}

	if e.alreadyPresent(plat) {
		e.report(spec.Name, model.StatusInstalled, "already installed", "")
		return
	}

	if err := e.gate.acquire(ctx); err != nil {
		e.report(spec.Name, model.StatusInstallFailed, err.Error(), "")
		return
	}
	defer e.gate.release()

	rec := &storage.InstallRecord{
		ID:        uuid.New().String(),
		Item:      spec.Name,
		Status:    model.StatusDownloading,
		StartedAt: time.Now(),
	}
	e.record(ctx, rec)

	dest := e.installerPath(spec.Name, plat.URL)
	e.report(spec.Name, model.StatusDownloading, "downloading "+plat.URL, "")

	err := e.downloads.Fetch(ctx, plat.URL, dest, func(percent int) {
		e.events.PublishProgress(spec.Name, percent)
	})
	if err != nil {
		e.report(spec.Name, model.StatusDownloadFailed, err.Error(),
			spec.Name+" download failed")
		e.finish(ctx, rec, model.StatusDownloadFailed, err)
		return
	}
	e.report(spec.Name, model.StatusDownloaded, "saved to "+dest, "")

	e.report(spec.Name, model.StatusInstalling, "running installer", "")
	if err := e.runner.Run(ctx, dest, plat.InstallArgs); err != nil {
		e.report(spec.Name, model.StatusInstallFailed, err.Error(),
			spec.Name+" installation failed")
		e.finish(ctx, rec, model.StatusInstallFailed, err)
		return
	}

	e.report(spec.Name, model.StatusInstalled, "installed successfully",
		spec.Name+" installation completed")
	e.finish(ctx, rec, model.StatusInstalled, nil)
}

// alreadyPresent checks the platform's known path for a local install.
func (e *Executor) alreadyPresent(plat *model.PlatformSpec) bool {
	if plat.PathCheck == "" {
		return false
	}
	_, err := os.Stat(os.ExpandEnv(plat.PathCheck))
	return err == nil
}

// installerPath derives the local destination for an item's installer,
// keeping the remote extension when there is one.
func (e *Executor) installerPath(item, rawURL string) string {
	ext := ""
	if u, err := url.Parse(rawURL); err == nil {
		ext = path.Ext(u.Path)
	}
	return filepath.Join(e.cfg.DownloadDir, item+"_installer"+ext)
}

func (e *Executor) report(item string, status model.InstallStatus, msg, announce string) {
	e.events.PublishStatus(model.InstallEvent{
		Item:     item,
		Status:   status,
		Message:  msg,
		Announce: announce,
		At:       time.Now(),
	})
	e.events.PublishLog(fmt.Sprintf("%s: %s (%s)", item, status, msg))

	if status.Terminal() && status != model.StatusInstalled {
		e.logger.Warn("Install pipeline failed",
			zap.String("item", item),
			zap.String("status", string(status)),
			zap.String("message", msg))
	}
}

func (e *Executor) record(ctx context.Context, rec *storage.InstallRecord) {
	if e.history == nil {
		return
	}
	if err := e.history.Record(ctx, rec); err != nil {
		e.logger.Error("Failed to record install attempt",
			zap.String("item", rec.Item),
			zap.Error(err))
	}
}

func (e *Executor) finish(ctx context.Context, rec *storage.InstallRecord, status model.InstallStatus, cause error) {
	if e.history == nil {
		return
	}
	now := time.Now()
	rec.Status = status
	rec.CompletedAt = &now
	rec.Duration = now.Sub(rec.StartedAt)
	if cause != nil {
		rec.Error = cause.Error()
	}
	if err := e.history.Update(ctx, rec); err != nil {
		e.logger.Error("Failed to update install attempt",
			zap.String("item", rec.Item),
			zap.Error(err))
	}
}

// execRunner is the default CommandRunner backed by os/exec.
type execRunner struct{}

func (execRunner) Run(ctx context.Context, path string, args []string) error {
	cmd := exec.CommandContext(ctx, path, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(output))
		if msg != "" {
			return fmt.Errorf("installer failed: %s: %w", msg, err)
		}
		return fmt.Errorf("installer failed: %w", err)
	}
	return nil
}
