package display

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"printstatus/internal/model"
)

func TestCompute_TimeBarExclusivity(t *testing.T) {
	inTime := Compute(model.JobState{
		ElapsedPrintTime:   model.Ptr(30.0),
		EstimatedPrintTime: model.Ptr(60.0),
	})
	assert.True(t, inTime.TimeVisible())
	assert.False(t, inTime.OvertimeVisible)
	assert.InDelta(t, 50.0, inTime.Time, 1e-9)

	overtime := Compute(model.JobState{
		ElapsedPrintTime:   model.Ptr(90.0),
		EstimatedPrintTime: model.Ptr(60.0),
	})
	assert.False(t, overtime.TimeVisible())
	assert.True(t, overtime.OvertimeVisible)
	assert.InDelta(t, 66.7, overtime.Overtime, 0.05)
}

func TestCompute_AbsentValuesAreZero(t *testing.T) {
	p := Compute(model.JobState{ElapsedPrintTime: model.Ptr(10.0)})
	assert.Equal(t, Progress{}, p)
	assert.True(t, p.TimeVisible())
}

func TestCompute_Overall(t *testing.T) {
	assert.Equal(t, 42.5, Compute(model.JobState{PercentDone: model.Ptr(42.5)}).Overall)
	assert.Equal(t, 0.0, Compute(model.JobState{}).Overall)
}

func TestCompute_Height(t *testing.T) {
	tests := []struct {
		name     string
		cur, max *float64
		want     float64
	}{
		{"partial", model.Ptr(5.0), model.Ptr(20.0), 25},
		{"at top", model.Ptr(20.0), model.Ptr(20.0), 100},
		{"above top", model.Ptr(20.4), model.Ptr(20.0), 100},
		{"no current", nil, model.Ptr(20.0), 0},
		{"no max", model.Ptr(5.0), nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Compute(model.JobState{CurrentZ: tt.cur, MaxZ: tt.max})
			assert.InDelta(t, tt.want, got.Height, 1e-9)
		})
	}
}

func TestRender_ShowsOneTimeBar(t *testing.T) {
	var b bytes.Buffer
	f := NewFrame(model.JobState{
		State:              model.Ptr("Printing"),
		Message:            model.Ptr("running late"),
		ElapsedPrintTime:   model.Ptr(90.0),
		EstimatedPrintTime: model.Ptr(60.0),
	})
	require.NoError(t, Render(&b, f, 60))

	lines := strings.Split(strings.TrimRight(b.String(), "\n"), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "Printing", lines[0])
	assert.Equal(t, "running late", lines[1])
	assert.True(t, strings.HasPrefix(lines[3], "overtime"))
	assert.True(t, strings.HasSuffix(lines[3], " 66.7%"))
	assert.NotContains(t, b.String(), "time     [")
	for _, l := range lines[2:] {
		assert.Len(t, l, 60)
	}
}

func TestBarFill(t *testing.T) {
	inside := func(line string) string {
		return line[strings.Index(line, "[")+1 : strings.Index(line, "]")]
	}
	assert.Equal(t, strings.Repeat("#", 22), inside(bar("height", 100, 40)))
	assert.Equal(t, strings.Repeat(".", 22), inside(bar("height", 0, 40)))
	assert.Equal(t, strings.Repeat("#", 11)+strings.Repeat(".", 11), inside(bar("height", 50, 40)))
}

func TestPoller_TickBars(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"state": "Printing", "message": "hi", "percent_done": 10}`))
	}))
	defer srv.Close()

	var out bytes.Buffer
	p := &Poller{Client: NewClient(srv.URL, "k"), Mode: ModeBars, Out: &out, Width: func() int { return 50 }}
	require.NoError(t, p.Tick(context.Background()))
	assert.True(t, strings.HasPrefix(out.String(), "Printing\nhi\nprogress"))
	assert.Contains(t, out.String(), " 10.0%")
}

func TestPoller_TickText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Accept"))
		_, _ = w.Write([]byte("done (Operational)\n"))
	}))
	defer srv.Close()

	var out bytes.Buffer
	p := &Poller{Client: NewClient(srv.URL, ""), Mode: ModeText, Out: &out, Width: func() int { return 10 }}
	require.NoError(t, p.Tick(context.Background()))
	assert.Equal(t, "----------\ndone (Operational)\n----------\n", out.String())
}

func TestPoller_FailedFetchKeepsLastFrame(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) > 1 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"state": "Printing"}`))
	}))
	defer srv.Close()

	var out bytes.Buffer
	p := &Poller{Client: NewClient(srv.URL, ""), Mode: ModeBars, Out: &out}
	require.NoError(t, p.Tick(context.Background()))
	first := out.String()

	err := p.Tick(context.Background())
	assert.ErrorContains(t, err, "401")
	assert.Equal(t, first, out.String())
}

func TestPoller_RunPollsUntilCancelled(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	p := &Poller{Client: NewClient(srv.URL, ""), Mode: ModeBars, Out: &bytes.Buffer{}, Interval: 10 * time.Millisecond}

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()
	require.Eventually(t, func() bool { return calls.Load() >= 3 }, 5*time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("text")
	require.NoError(t, err)
	assert.Equal(t, ModeText, m)
	_, err = ParseMode("lcd")
	assert.Error(t, err)
}
