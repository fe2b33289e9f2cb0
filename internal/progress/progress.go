// Package progress renders transfer progress on the command line: task
// events as mpb bars and byte downloads as a progressbar.
package progress

import (
	"fmt"
	"io"
	"os"

	"github.com/schollz/progressbar/v3"
)

// Reporter receives byte-level progress for a single stream.
type Reporter interface {
	Start(total int64, description string)
	Update(current int64)
	Finish()
	Error(err error)
}

// CLIProgress draws a byte progress bar on stderr.
type CLIProgress struct {
	bar *progressbar.ProgressBar
	out io.Writer
}

// NewCLIProgress creates a CLI progress reporter on stderr.
func NewCLIProgress() *CLIProgress {
	return &CLIProgress{out: os.Stderr}
}

// Start initializes the progress bar with total size and description.
// An unknown total (<= 0) shows a spinner.
func (p *CLIProgress) Start(total int64, description string) {
	if total <= 0 {
		total = -1
	}
	p.bar = progressbar.NewOptions64(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(p.out),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(50),
		progressbar.OptionThrottle(100),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(p.out, "\n")
		}),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// Update moves the bar to current.
func (p *CLIProgress) Update(current int64) {
	if p.bar != nil {
		_ = p.bar.Set64(current)
	}
}

// Finish completes the progress bar.
func (p *CLIProgress) Finish() {
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}

// Error displays an error message.
func (p *CLIProgress) Error(err error) {
	if err != nil {
		fmt.Fprintf(p.out, "\nError: %v\n", err)
	}
}

// NoOpProgress discards progress.
type NoOpProgress struct{}

func (NoOpProgress) Start(total int64, description string) {}
func (NoOpProgress) Update(current int64)                  {}
func (NoOpProgress) Finish()                               {}
func (NoOpProgress) Error(err error)                       {}

// Func adapts r to the (done, total) callback the fetcher takes, starting
// the reporter on the first call.
func Func(r Reporter, description string) func(done, total int64) {
	started := false
	return func(done, total int64) {
		if !started {
			r.Start(total, description)
			started = true
		}
		r.Update(done)
	}
}
