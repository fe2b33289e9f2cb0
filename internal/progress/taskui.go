package progress

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/term"

	"github.com/driftbox/driftbox/internal/events"
)

// TaskUI renders task events as one mpb bar per task on a terminal, or as
// plain lines otherwise. Handle must be called from a single goroutine,
// the one draining the progress channel.
type TaskUI struct {
	progress   *mpb.Progress
	out        io.Writer
	isTerminal bool

	mu        sync.Mutex
	bars      map[string]*taskBar
	succeeded int
	failed    int
}

type taskBar struct {
	bar     *mpb.Bar
	label   string
	start   time.Time
	percent float64

	mu     sync.Mutex
	status string
}

func (b *taskBar) setStatus(s string) {
	b.mu.Lock()
	b.status = s
	b.mu.Unlock()
}

func (b *taskBar) getStatus() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

// NewTaskUI creates a TaskUI on stderr, with bars when stderr is a terminal.
func NewTaskUI() *TaskUI {
	isTerminal := term.IsTerminal(int(os.Stderr.Fd()))
	return NewTaskUIWriter(os.Stderr, isTerminal)
}

// NewTaskUIWriter creates a TaskUI writing to out.
func NewTaskUIWriter(out io.Writer, isTerminal bool) *TaskUI {
	u := &TaskUI{
		out:        out,
		isTerminal: isTerminal,
		bars:       make(map[string]*taskBar),
	}
	if isTerminal {
		if f, ok := out.(*os.File); ok {
			enableANSIOnWindows(f)
		}
		u.progress = mpb.New(
			mpb.WithOutput(out),
			mpb.WithRefreshRate(150*time.Millisecond),
			mpb.WithWidth(80),
		)
	}
	return u
}

// Handle renders a batch of task events.
func (u *TaskUI) Handle(batch []*events.TaskEvent) {
	for _, ev := range batch {
		u.handle(ev)
	}
}

func (u *TaskUI) handle(ev *events.TaskEvent) {
	b := u.barFor(ev)

	switch ev.EventType {
	case events.EventTaskPending:
		if !u.isTerminal {
			u.printf("queued   %s\n", b.label)
		}
	case events.EventTaskRunning:
		b.start = time.Now()
		if !u.isTerminal {
			u.printf("started  %s\n", b.label)
		}
	case events.EventTaskProgress:
		if ev.Percent <= b.percent {
			return
		}
		b.percent = ev.Percent
		if b.bar != nil {
			b.bar.SetCurrent(int64(ev.Percent))
		}
	case events.EventTaskStatus:
		b.setStatus(ev.Message)
		if !u.isTerminal {
			u.printf("         %s: %s\n", b.label, ev.Message)
		}
	case events.EventTaskSucceeded:
		if b.bar != nil {
			b.bar.SetTotal(100, true)
		}
		msg := ev.Message
		if msg == "" {
			msg = b.label
		}
		u.printf("✓ %s (%s)\n", msg, time.Since(b.start).Round(time.Millisecond))
		u.finish(ev.TaskID, true)
	case events.EventTaskFailed:
		if b.bar != nil {
			b.bar.Abort(true)
		}
		u.printf("✗ %s: %s\n", b.label, ev.Message)
		u.finish(ev.TaskID, false)
	}
}

func (u *TaskUI) barFor(ev *events.TaskEvent) *taskBar {
	u.mu.Lock()
	defer u.mu.Unlock()

	if b, ok := u.bars[ev.TaskID]; ok {
		return b
	}
	b := &taskBar{label: fmt.Sprintf("%s %s", ev.Kind, ev.Target), start: time.Now()}
	if u.isTerminal {
		b.bar = u.progress.New(100,
			mpb.BarStyle().Lbound("[").Filler("█").Tip("█").Padding("░").Rbound("]"),
			mpb.PrependDecorators(
				decor.Name(b.label, decor.WCSyncSpaceR),
			),
			mpb.AppendDecorators(
				decor.Percentage(decor.WCSyncSpace),
				decor.Any(func(decor.Statistics) string {
					if s := b.getStatus(); s != "" {
						return "  " + s
					}
					return ""
				}),
			),
			mpb.BarRemoveOnComplete(),
		)
	}
	u.bars[ev.TaskID] = b
	return b
}

func (u *TaskUI) finish(id string, ok bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.bars, id)
	if ok {
		u.succeeded++
	} else {
		u.failed++
	}
}

// printf writes above the bars on a terminal.
func (u *TaskUI) printf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if u.progress != nil {
		u.progress.Write([]byte(msg))
		return
	}
	fmt.Fprint(u.out, msg)
}

// Counts returns how many tasks finished each way.
func (u *TaskUI) Counts() (succeeded, failed int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.succeeded, u.failed
}

// Wait flushes the bar container. Call it once every task is terminal.
func (u *TaskUI) Wait() {
	if u.progress != nil {
		u.progress.Wait()
	}
}

// Writer returns an io.Writer that prints above the bars.
func (u *TaskUI) Writer() io.Writer {
	if u.progress != nil {
		return u.progress
	}
	return u.out
}

// IsTerminal reports whether bars are drawn.
func (u *TaskUI) IsTerminal() bool {
	return u.isTerminal
}

// enableANSIOnWindows turns on escape sequence handling for Windows consoles.
func enableANSIOnWindows(f *os.File) {
	if runtime.GOOS == "windows" {
		enableWindowsANSI(f)
	}
}
