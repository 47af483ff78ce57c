// Package render turns a JobState into its two wire representations.
// Both functions are pure; callers pass a copy read under the store lock.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"printstatus/internal/model"
)

const (
	ContentTypeJSON = "application/json"
	ContentTypeText = "text/plain; charset=utf-8"
)

// JSON serializes every field, nulls included.
func JSON(s model.JobState) ([]byte, error) {
	return json.Marshal(s)
}

// Text writes the topic-conditioned human summary of s.
func Text(w io.Writer, s model.JobState) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s)\n", str(s.Message), str(s.State))

	switch {
	case s.TopicIs(model.TopicPrintStarted):
		fmt.Fprintf(&b, "Print height: %s\n", num(s.MaxZ))
		fmt.Fprintf(&b, "Estimated Time: %s\n", num(s.EstimatedPrintTime))

	case s.TopicIs(model.TopicPrintProgress):
		if s.PercentDone != nil {
			fmt.Fprintf(&b, "Percent Done %.1f%%\n", *s.PercentDone)
		} else {
			b.WriteString("Percent Done None\n")
		}

		fmt.Fprintf(&b, "Print height: %s Current: %s", num(s.MaxZ), num(s.CurrentZ))
		if s.MaxZ != nil && s.CurrentZ != nil && *s.MaxZ != 0 {
			fmt.Fprintf(&b, " (%.1f%%)", *s.CurrentZ / *s.MaxZ * 100)
		}
		b.WriteString("\n")

		fmt.Fprintf(&b, "Estimated Time: %s Elapsed: %s", num(s.EstimatedPrintTime), num(s.ElapsedPrintTime))
		if s.EstimatedPrintTime != nil && s.ElapsedPrintTime != nil {
			delta := *s.EstimatedPrintTime - *s.ElapsedPrintTime
			fmt.Fprintf(&b, " (delta: %s)", formatFloat(delta))
		}
		b.WriteString("\n")

	case s.TopicIs(model.TopicPrintDone):
		fmt.Fprintf(&b, "Estimated Time: %s Actual: %s\n", num(s.EstimatedPrintTime), num(s.ElapsedPrintTime))

	default:
		b.WriteString(Dump(s))
		b.WriteString("\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// Dump renders every field on one line.
func Dump(s model.JobState) string {
	var ct string
	if s.CurrentTime != nil {
		ct = strconv.FormatInt(*s.CurrentTime, 10)
	} else {
		ct = "None"
	}
	return fmt.Sprintf(
		"JobState{topic=%s message=%s state=%s current_z=%s max_z=%s estimated_print_time=%s percent_done=%s elapsed_print_time=%s current_time=%s}",
		quoted(s.Topic), quoted(s.Message), quoted(s.State),
		num(s.CurrentZ), num(s.MaxZ), num(s.EstimatedPrintTime),
		num(s.PercentDone), num(s.ElapsedPrintTime), ct,
	)
}

func str(p *string) string {
	if p == nil {
		return "None"
	}
	return *p
}

func quoted(p *string) string {
	if p == nil {
		return "None"
	}
	return strconv.Quote(*p)
}

func num(p *float64) string {
	if p == nil {
		return "None"
	}
	return formatFloat(*p)
}

// formatFloat prints the shortest round-trip form, keeping a ".0" on
// whole numbers and switching to exponent form outside [1e-4, 1e16).
func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	if abs := math.Abs(f); abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(f, 'e', -1, 64)
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
