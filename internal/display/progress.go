package display

import "printstatus/internal/model"

// Progress is what the bars show for one JobState. Values are percentages
// in [0, 100].
type Progress struct {
	Overall float64

	// Exactly one of the time bars is visible. Time holds elapsed as a
	// share of the estimate; Overtime holds the estimate as a share of
	// elapsed once the print runs long.
	Time            float64
	Overtime        float64
	OvertimeVisible bool

	Height float64
}

// TimeVisible reports whether the in-time bar is shown.
func (p Progress) TimeVisible() bool { return !p.OvertimeVisible }

// Compute derives the three independent ratios from s.
func Compute(s model.JobState) Progress {
	var p Progress

	if s.PercentDone != nil {
		p.Overall = clamp(*s.PercentDone)
	}

	if s.ElapsedPrintTime != nil && s.EstimatedPrintTime != nil {
		elapsed, estimated := *s.ElapsedPrintTime, *s.EstimatedPrintTime
		if elapsed <= estimated {
			if estimated > 0 {
				p.Time = clamp(elapsed / estimated * 100)
			}
		} else {
			p.OvertimeVisible = true
			p.Overtime = clamp(estimated / elapsed * 100)
		}
	}

	if s.CurrentZ != nil && s.MaxZ != nil {
		cur, top := *s.CurrentZ, *s.MaxZ
		if cur >= top {
			p.Height = 100
		} else if top > 0 {
			p.Height = clamp(cur / top * 100)
		}
	}

	return p
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}
