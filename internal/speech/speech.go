package speech

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

// ErrNothingHeard is returned when the recognizer produced no transcript.
var ErrNothingHeard = errors.New("no speech recognized")

// Speaker is the text-to-speech collaborator. Say is fire-and-forget: it must
// never block the caller and its failures are swallowed, voice is a
// convenience channel only.
type Speaker interface {
	Say(text string)
}

// Recognizer is the speech-to-text collaborator. Listen blocks until a
// transcript is available or the context ends; callers run it on a background
// unit of work.
type Recognizer interface {
	Listen(ctx context.Context) (string, error)
}

// CommandSpeaker speaks by invoking an external TTS binary with the text as
// its final argument.
type CommandSpeaker struct {
	logger *zap.Logger
	name   string
	args   []string
}

// NewCommandSpeaker creates a speaker backed by the given command.
func NewCommandSpeaker(logger *zap.Logger, name string, args ...string) *CommandSpeaker {
	return &CommandSpeaker{
		logger: logger.Named("speech"),
		name:   name,
		args:   args,
	}
}

// Say runs the TTS command on its own goroutine. Failures are logged at debug
// level and otherwise ignored.
func (s *CommandSpeaker) Say(text string) {
	args := append(append([]string{}, s.args...), text)
	go func() {
		if err := exec.Command(s.name, args...).Run(); err != nil {
			s.logger.Debug("Speech command failed",
				zap.String("command", s.name),
				zap.Error(err))
		}
	}()
}

// NopSpeaker discards everything. Used when speech is disabled.
type NopSpeaker struct{}

func (NopSpeaker) Say(string) {}

// CommandRecognizer listens by invoking an external STT binary that prints the
// transcript on stdout.
type CommandRecognizer struct {
	logger *zap.Logger
	name   string
	args   []string
}

// NewCommandRecognizer creates a recognizer backed by the given command.
func NewCommandRecognizer(logger *zap.Logger, name string, args ...string) *CommandRecognizer {
	return &CommandRecognizer{
		logger: logger.Named("speech"),
		name:   name,
		args:   args,
	}
}

// Listen runs the STT command and returns its trimmed stdout.
func (r *CommandRecognizer) Listen(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, r.name, r.args...).Output()
	if err != nil {
		return "", fmt.Errorf("speech recognition failed: %w", err)
	}
	text := strings.TrimSpace(string(out))
	if text == "" {
		return "", ErrNothingHeard
	}
	return text, nil
}
