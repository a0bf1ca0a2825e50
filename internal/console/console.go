package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/t77yq/installer-project/internal/agent"
	"github.com/t77yq/installer-project/internal/events"
	"github.com/t77yq/installer-project/internal/model"
	"github.com/t77yq/installer-project/internal/schedule"
	"github.com/t77yq/installer-project/internal/speech"
)

const timeLayout = "2006-01-02 15:04"

// Console is the line-oriented stand-in for the visual interface: it accepts
// commands on stdin and renders event-bus activity to stdout. It owns no
// pipeline state of its own.
type Console struct {
	logger     *zap.Logger
	agent      *agent.Agent
	scheduler  *schedule.Scheduler
	recognizer speech.Recognizer
	in         io.Reader
	out        io.Writer

	mu          sync.Mutex
	lastPercent map[string]int
	subs        []*nats.Subscription
}

// New creates a console reading from in and writing to out.
func New(logger *zap.Logger, a *agent.Agent, s *schedule.Scheduler, r speech.Recognizer, in io.Reader, out io.Writer) *Console {
	return &Console{
		logger:      logger.Named("console"),
		agent:       a,
		scheduler:   s,
		recognizer:  r,
		in:          in,
		out:         out,
		lastPercent: make(map[string]int),
	}
}

// Attach subscribes the console to the event bus so pipeline activity shows up
// as it happens.
func (c *Console) Attach(bus *events.Bus) error {
	statusSub, err := bus.OnStatus(func(ev model.InstallEvent) {
		c.printf("%s: %s - %s", ev.Item, ev.Status, ev.Message)
	})
	if err != nil {
		return err
	}
	progressSub, err := bus.OnProgress(func(ev model.ProgressEvent) {
		c.mu.Lock()
		last, seen := c.lastPercent[ev.Item]
		// Throttle: a line per 10% step, plus completion.
		show := !seen || ev.Percent >= last+10 || (ev.Percent == 100 && last != 100)
		if show {
			c.lastPercent[ev.Item] = ev.Percent
		}
		c.mu.Unlock()
		if show {
			c.printf("%s: %d%%", ev.Item, ev.Percent)
		}
	})
	if err != nil {
		return err
	}
	logSub, err := bus.OnLog(func(ev model.LogEvent) {
		c.printf("[%s] %s", ev.At.Format("2006-01-02 15:04:05"), ev.Text)
	})
	if err != nil {
		return err
	}
	refreshSub, err := bus.OnScheduleRefresh(func() {
		c.showJobs()
	})
	if err != nil {
		return err
	}
	c.subs = append(c.subs, statusSub, progressSub, logSub, refreshSub)
	return nil
}

// Close detaches the console from the bus.
func (c *Console) Close() {
	for _, sub := range c.subs {
		sub.Unsubscribe()
	}
}

// Run reads commands until quit, EOF, or context cancellation.
func (c *Console) Run(ctx context.Context) error {
	c.printf("installer agent ready; type 'help' for commands")
	scanner := bufio.NewScanner(c.in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
		case line == "quit" || line == "exit":
			return nil
		case line == "help":
			c.showHelp()
		case line == "jobs":
			c.showJobs()
		case line == "listen":
			go c.listen(ctx)
		case strings.HasPrefix(line, "cancel "):
			c.scheduler.Cancel(strings.TrimSpace(strings.TrimPrefix(line, "cancel ")))
		case strings.HasPrefix(line, "schedule "):
			c.handleSchedule(strings.TrimPrefix(line, "schedule "))
		default:
			go c.agent.Run(ctx, line)
		}
	}
	return scanner.Err()
}

// handleSchedule parses "YYYY-MM-DD HH:MM <command>" and schedules it.
func (c *Console) handleSchedule(rest string) {
	fields := strings.Fields(rest)
	if len(fields) < 3 {
		c.printf("usage: schedule %s <command>", timeLayout)
		return
	}
	runAt, err := time.ParseInLocation(timeLayout, fields[0]+" "+fields[1], time.Local)
	if err != nil {
		c.printf("bad date/time, expected %s", timeLayout)
		return
	}
	command := strings.Join(fields[2:], " ")

	id, err := c.scheduler.Schedule(command, runAt)
	if err != nil {
		c.printf("scheduling failed: %v", err)
		return
	}
	c.printf("scheduled job %s at %s", id, runAt.Format(timeLayout))
}

func (c *Console) listen(ctx context.Context) {
	c.printf("listening for voice command...")
	text, err := c.recognizer.Listen(ctx)
	if err != nil {
		c.logger.Debug("Voice recognition failed", zap.Error(err))
		c.printf("could not understand voice")
		return
	}
	c.printf("voice command: %s", text)
	c.agent.Run(ctx, text)
}

func (c *Console) showJobs() {
	jobs := c.scheduler.Jobs()
	if len(jobs) == 0 {
		c.printf("no scheduled jobs")
		return
	}
	for _, job := range jobs {
		c.printf("%s | %s | %s", job.ID, job.RunAt.Format(timeLayout), job.Command)
	}
}

func (c *Console) showHelp() {
	c.printf("commands:")
	c.printf("  <free text>                      interpret and install now")
	c.printf("  schedule %s <command>  run later", timeLayout)
	c.printf("  jobs                             list scheduled jobs")
	c.printf("  cancel <job-id>                  cancel a scheduled job")
	c.printf("  listen                           take a voice command")
	c.printf("  quit                             exit")
}

func (c *Console) printf(format string, args ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format+"\n", args...)
}
