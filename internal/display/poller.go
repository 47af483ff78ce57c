package display

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/hashicorp/go-hclog"
)

// Mode selects which representation the poller asks for.
type Mode string

const (
	ModeBars Mode = "bars"
	ModeText Mode = "text"
)

// ParseMode validates a -mode flag value.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeBars, ModeText:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown mode %q (want bars or text)", s)
	}
}

// Poller fetches and renders on a fixed period. A failed fetch leaves the
// last frame on screen and is retried on the next cycle.
type Poller struct {
	Client   *Client
	Mode     Mode
	Out      io.Writer
	Width    func() int
	Interval time.Duration
	// Clear redraws in place instead of appending frames.
	Clear  bool
	Logger hclog.Logger
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
		if err := p.Tick(ctx); err != nil && ctx.Err() == nil {
			p.logger().Warn("poll failed, keeping last frame", "error", err)
		}
		timer.Reset(p.Interval)
	}
}

// Tick runs one fetch-and-render cycle.
func (p *Poller) Tick(ctx context.Context) error {
	width := defaultWidth
	if p.Width != nil {
		width = p.Width()
	}

	switch p.Mode {
	case ModeText:
		text, err := p.Client.FetchText(ctx)
		if err != nil {
			return err
		}
		p.clear()
		return TextFrame(p.Out, text, width)
	default:
		s, err := p.Client.FetchState(ctx)
		if err != nil {
			return err
		}
		f := NewFrame(s)
		p.logger().Debug("fetched status", "state", f.Status, "overall", f.Progress.Overall)
		p.clear()
		return Render(p.Out, f, width)
	}
}

func (p *Poller) clear() {
	if p.Clear {
		_, _ = io.WriteString(p.Out, clearScreen)
	}
}

func (p *Poller) logger() hclog.Logger {
	if p.Logger == nil {
		return hclog.NewNullLogger()
	}
	return p.Logger
}
