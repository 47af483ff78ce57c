package display

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"golang.org/x/term"

	"printstatus/internal/model"
)

const (
	defaultWidth = 80
	labelWidth   = 9
	clearScreen  = "\x1b[H\x1b[2J"
)

// TerminalWidth returns the width of f, or 80 when f is not a terminal.
func TerminalWidth(f *os.File) int {
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return defaultWidth
	}
	w, _, err := term.GetSize(fd)
	if err != nil || w <= 0 {
		return defaultWidth
	}
	return w
}

// Frame is one screenful for the bars variant.
type Frame struct {
	Status   string
	Message  string
	Progress Progress
}

// NewFrame builds the frame for s.
func NewFrame(s model.JobState) Frame {
	f := Frame{Progress: Compute(s)}
	if s.State != nil {
		f.Status = *s.State
	}
	if s.Message != nil {
		f.Message = *s.Message
	}
	return f
}

// Render writes f using width columns.
func Render(w io.Writer, f Frame, width int) error {
	var b strings.Builder
	b.WriteString(f.Status)
	b.WriteString("\n")
	b.WriteString(truncate(f.Message, width))
	b.WriteString("\n")
	b.WriteString(bar("progress", f.Progress.Overall, width))
	if f.Progress.OvertimeVisible {
		b.WriteString(bar("overtime", f.Progress.Overtime, width))
	} else {
		b.WriteString(bar("time", f.Progress.Time, width))
	}
	b.WriteString(bar("height", f.Progress.Height, width))
	_, err := io.WriteString(w, b.String())
	return err
}

// bar renders "label    [#####.....]  50.0%".
func bar(label string, pct float64, width int) string {
	inner := width - labelWidth - len("[] 100.0%")
	if inner < 10 {
		inner = 10
	}
	filled := int(math.Round(pct / 100 * float64(inner)))
	if filled > inner {
		filled = inner
	}
	return fmt.Sprintf("%-*s[%s%s] %5.1f%%\n", labelWidth, label,
		strings.Repeat("#", filled), strings.Repeat(".", inner-filled), pct)
}

func truncate(s string, width int) string {
	r := []rune(s)
	if width <= 0 || len(r) <= width {
		return s
	}
	return string(r[:width])
}

// TextFrame renders the text variant: the server's summary between rules.
func TextFrame(w io.Writer, text string, width int) error {
	rule := strings.Repeat("-", min(width, 40))
	_, err := fmt.Fprintf(w, "%s\n%s\n%s\n", rule, text, rule)
	return err
}
