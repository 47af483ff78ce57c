package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/hashicorp/go-hclog"

	"printstatus/internal/config"
	"printstatus/internal/httpserver"
	"printstatus/internal/mqtt"
	"printstatus/internal/raftnode"
	"printstatus/internal/store"
	"printstatus/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "printstatus:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath string
		port       int
	)
	flag.StringVar(&configPath, "config", "", "Path to a JSON config file")
	flag.IntVar(&port, "port", 0, "HTTP port (overrides listen_addr)")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] [port]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	// The port may also be given positionally.
	if flag.NArg() > 0 {
		if port, err = strconv.Atoi(flag.Arg(0)); err != nil {
			return fmt.Errorf("invalid port %q", flag.Arg(0))
		}
	}
	if port != 0 {
		cfg.ListenAddr = fmt.Sprintf(":%d", port)
	}

	logger := hclog.New(&hclog.LoggerOptions{
		Name:       "printstatus",
		Level:      hclog.LevelFromString(cfg.LogLevel),
		JSONFormat: cfg.LogJSON,
	})

	metrics, err := telemetry.New("printstatus")
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	snapshots := store.NewSnapshotStore(cfg.DataDir, logger.Named("store"))
	jobs := raftnode.NewJobStore(snapshots.Load(), snapshots, logger.Named("state"))

	var (
		applier raftnode.Applier = raftnode.Local{Store: jobs}
		cluster httpserver.ClusterInfo
	)
	if cfg.Raft.Enabled {
		node, err := raftnode.NewNode(raftnode.Config{
			NodeID:       cfg.Raft.NodeID,
			DataDir:      cfg.Raft.DataDir,
			BindAddress:  cfg.Raft.BindAddress,
			Bootstrap:    cfg.Raft.Bootstrap,
			Peers:        cfg.Raft.Peers,
			ApplyTimeout: cfg.Raft.ApplyTimeout.Duration,
		}, jobs, logger.Named("raft"))
		if err != nil {
			return fmt.Errorf("raft: %w", err)
		}
		defer func() {
			if err := node.Shutdown(); err != nil {
				logger.Warn("raft shutdown", "error", err)
			}
		}()
		applier, cluster = node, node
	}

	ingester := httpserver.NewIngester(
		store.NewEventLog(cfg.EventLogPath()),
		snapshots,
		applier,
		logger.Named("ingest"),
		metrics,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MQTT.Enabled {
		mqttLogger := logger.Named("mqtt")
		client, err := mqtt.Connect(mqtt.Config{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
		}, mqttLogger)
		if err != nil {
			return err
		}
		defer client.Disconnect(250)
		if err := mqtt.Subscribe(ctx, client, cfg.MQTT.Topic, ingester, mqttLogger); err != nil {
			return err
		}
	}

	srv := httpserver.New(httpserver.Options{
		State:        jobs,
		Ingester:     ingester,
		Logger:       logger.Named("http"),
		Metrics:      metrics,
		Cluster:      cluster,
		AuthToken:    cfg.AuthToken,
		MaxBodyBytes: cfg.MaxBodyBytes,
		IngestRate:   cfg.IngestRate,
		IngestBurst:  cfg.IngestBurst,
	})

	err = httpserver.ListenAndServe(ctx, cfg.ListenAddr, srv, logger.Named("http"))
	logger.Info("server stopped")
	return err
}
