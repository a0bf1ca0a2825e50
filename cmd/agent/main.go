package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/t77yq/installer-project/internal/agent"
	"github.com/t77yq/installer-project/internal/catalog"
	"github.com/t77yq/installer-project/internal/console"
	"github.com/t77yq/installer-project/internal/download"
	"github.com/t77yq/installer-project/internal/events"
	"github.com/t77yq/installer-project/internal/installer"
	"github.com/t77yq/installer-project/internal/schedule"
	"github.com/t77yq/installer-project/internal/speech"
	"github.com/t77yq/installer-project/internal/storage"
)

func setDefaults(home string) {
	viper.SetDefault("app.name", "installer-agent")
	viper.SetDefault("catalog.path", "./config/catalog.yaml")
	viper.SetDefault("store.path", filepath.Join(home, ".installer-agent", "schedules.json"))
	viper.SetDefault("history.path", filepath.Join(home, ".installer-agent", "history.db"))
	viper.SetDefault("history.retention", 720*time.Hour)
	viper.SetDefault("history.prune_schedule", "0 0 3 * * *")
	viper.SetDefault("download.dir", os.TempDir())
	viper.SetDefault("download.timeout", time.Minute)
	viper.SetDefault("download.chunk_size", 8192)
	viper.SetDefault("download.max_retries", 2)
	viper.SetDefault("download.retry_delay", 2*time.Second)
	viper.SetDefault("install.max_concurrent", 4)
	viper.SetDefault("install.max_cpu", 90.0)
	viper.SetDefault("install.min_free_memory", 256*1024*1024)
	viper.SetDefault("speech.enabled", false)
	viper.SetDefault("speech.speak_cmd", "espeak")
	viper.SetDefault("speech.listen_cmd", "")
}

func main() {
	// Initialize logger
	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	home, err := os.UserHomeDir()
	if err != nil {
		logger.Fatal("Failed to resolve home directory", zap.Error(err))
	}

	// Load configuration
	setDefaults(home)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			logger.Fatal("Failed to read config file", zap.Error(err))
		}
		logger.Warn("No config file found, using defaults")
	}

	// Start the in-process event bus
	bus, err := events.NewEmbedded(logger)
	if err != nil {
		logger.Fatal("Failed to start event bus", zap.Error(err))
	}
	defer bus.Close()

	// Load the software catalog
	cat, err := catalog.Load(logger, viper.GetString("catalog.path"))
	if err != nil {
		logger.Fatal("Failed to load software catalog", zap.Error(err))
	}

	// Open install history storage
	history, err := storage.NewSQLiteHistory(logger, viper.GetString("history.path"))
	if err != nil {
		logger.Fatal("Failed to open install history", zap.Error(err))
	}
	defer history.Close()

	// Build the install pipeline
	downloader := download.New(logger, download.Config{
		Timeout:    viper.GetDuration("download.timeout"),
		ChunkSize:  viper.GetInt("download.chunk_size"),
		MaxRetries: viper.GetInt("download.max_retries"),
		RetryDelay: viper.GetDuration("download.retry_delay"),
	})
	executor := installer.New(logger, installer.Config{
		DownloadDir:   viper.GetString("download.dir"),
		MaxConcurrent: viper.GetInt("install.max_concurrent"),
		MaxCPUPercent: viper.GetFloat64("install.max_cpu"),
		MinFreeMemory: viper.GetUint64("install.min_free_memory"),
	}, downloader, bus, history)

	// Speech collaborators
	var speaker speech.Speaker = speech.NopSpeaker{}
	var recognizer speech.Recognizer
	if viper.GetBool("speech.enabled") {
		speaker = speech.NewCommandSpeaker(logger, viper.GetString("speech.speak_cmd"))
	}
	if cmd := viper.GetString("speech.listen_cmd"); cmd != "" {
		recognizer = speech.NewCommandRecognizer(logger, cmd)
	} else {
		recognizer = unavailableRecognizer{}
	}

	announcer := speech.NewAnnouncer(logger, speaker)
	if err := announcer.Attach(bus); err != nil {
		logger.Fatal("Failed to attach speech announcer", zap.Error(err))
	}
	defer announcer.Close()

	// Command interpreter
	installerAgent := agent.New(logger, cat, executor, bus, speaker)

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	// Scheduler: fired jobs run the same interpreter pipeline
	store := schedule.NewStore(logger, viper.GetString("store.path"))
	scheduler := schedule.New(logger, store, func(command string) {
		bus.PublishLog("running scheduled job: " + command)
		installerAgent.Run(ctx, command)
	}, bus.PublishScheduleRefresh)
	scheduler.Reconcile()
	defer scheduler.Stop()

	// Periodic history pruning
	maintenance := schedule.NewMaintenance(logger, history, viper.GetDuration("history.retention"))
	if err := maintenance.Start(viper.GetString("history.prune_schedule")); err != nil {
		logger.Fatal("Failed to start maintenance", zap.Error(err))
	}
	defer maintenance.Stop()

	// Console front-end
	ui := console.New(logger, installerAgent, scheduler, recognizer, os.Stdin, os.Stdout)
	if err := ui.Attach(bus); err != nil {
		logger.Fatal("Failed to attach console", zap.Error(err))
	}
	defer ui.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := ui.Run(ctx); err != nil && err != context.Canceled {
			logger.Error("Console exited with error", zap.Error(err))
		}
	}()

	select {
	case <-ctx.Done():
	case <-done:
	}

	logger.Info("Agent shutting down gracefully")
}

// unavailableRecognizer stands in when no speech-to-text command is
// configured.
type unavailableRecognizer struct{}

func (unavailableRecognizer) Listen(context.Context) (string, error) {
	return "", speech.ErrNothingHeard
}
