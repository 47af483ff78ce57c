package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/term"

	"printstatus/internal/display"
)

func main() {
	var (
		url      string
		token    string
		mode     string
		interval time.Duration
		logLevel string
	)
	flag.StringVar(&url, "url", getEnv("PRINTSTATUS_URL", "http://localhost:8080/"), "Status relay URL")
	flag.StringVar(&token, "token", os.Getenv("PRINTSTATUS_TOKEN"), "Bearer token")
	flag.StringVar(&mode, "mode", string(display.ModeBars), "Display variant: bars or text")
	flag.DurationVar(&interval, "interval", time.Minute, "Poll period")
	flag.StringVar(&logLevel, "log-level", "warn", "Log level")
	flag.Parse()

	logger := hclog.New(&hclog.LoggerOptions{
		Name:   "printstatus-display",
		Level:  hclog.LevelFromString(logLevel),
		Output: os.Stderr,
	})

	m, err := display.ParseMode(mode)
	if err != nil {
		logger.Error("bad flags", "error", err)
		os.Exit(2)
	}

	p := &display.Poller{
		Client:   display.NewClient(url, token),
		Mode:     m,
		Out:      os.Stdout,
		Width:    func() int { return display.TerminalWidth(os.Stdout) },
		Interval: interval,
		Clear:    term.IsTerminal(int(os.Stdout.Fd())),
		Logger:   logger,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintln(os.Stderr, "Fetching status from", url)
	if err := p.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("poller stopped", "error", err)
		os.Exit(1)
	}
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
