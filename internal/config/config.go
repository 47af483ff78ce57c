package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"printstatus/internal/raftnode"
)

const envPrefix = "PRINTSTATUS_"

type Config struct {
	ListenAddr   string  `json:"listen_addr"`
	DataDir      string  `json:"data_dir"`
	EventLog     string  `json:"event_log"`
	LogLevel     string  `json:"log_level"`
	LogJSON      bool    `json:"log_json"`
	AuthToken    string  `json:"auth_token"`
	MaxBodyBytes int64   `json:"max_body_bytes"`
	IngestRate   float64 `json:"ingest_rate"`
	IngestBurst  int     `json:"ingest_burst"`

	Raft struct {
		Enabled      bool            `json:"enabled"`
		NodeID       string          `json:"node_id"`
		BindAddress  string          `json:"bind_address"`
		DataDir      string          `json:"data_dir"`
		Bootstrap    bool            `json:"bootstrap"`
		Peers        []raftnode.Peer `json:"peers"`
		ApplyTimeout Duration        `json:"apply_timeout"`
	} `json:"raft"`

	MQTT struct {
		Enabled  bool   `json:"enabled"`
		Broker   string `json:"broker"`
		ClientID string `json:"client_id"`
		Username string `json:"username"`
		Password string `json:"password"`
		Topic    string `json:"topic"`
	} `json:"mqtt"`
}

// Duration is a time.Duration that reads "5s"-style strings from JSON.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"5s\": %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Default returns the configuration used when no file or environment
// overrides are given.
func Default() Config {
	var c Config
	c.ListenAddr = ":8080"
	c.DataDir = "."
	c.LogLevel = "info"
	c.MaxBodyBytes = 1 << 20
	c.IngestBurst = 5
	c.Raft.NodeID = "node1"
	c.Raft.BindAddress = "127.0.0.1:12000"
	c.Raft.DataDir = "raft-data"
	c.Raft.ApplyTimeout = Duration{5 * time.Second}
	c.MQTT.Broker = "tcp://localhost:1883"
	c.MQTT.ClientID = "printstatus"
	c.MQTT.Topic = "octoprint/webhook"
	return c
}

// EventLogPath returns the diagnostic log location, defaulting to
// logs/statuses under the data directory.
func (c Config) EventLogPath() string {
	if c.EventLog != "" {
		return c.EventLog
	}
	return filepath.Join(c.DataDir, "logs", "statuses")
}

// Load builds the config from defaults, the optional JSON file at path,
// then PRINTSTATUS_* environment variables.
func Load(path string) (Config, error) {
	c := Default()
	if path != "" {
		if err := mergeFile(&c, path); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&c, os.Getenv); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func mergeFile(c *Config, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("config file not found: %s", path)
	}
	if info.IsDir() {
		return fmt.Errorf("config path is a directory: %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %s: %w", path, err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("parse config: %s: %w", path, err)
	}
	return nil
}

func applyEnv(c *Config, getenv func(string) string) error {
	var errs []error
	str := func(key string, dst *string) {
		if v := getenv(envPrefix + key); v != "" {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) {
		if v := getenv(envPrefix + key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
				return
			}
			*dst = b
		}
	}
	integer := func(key string, dst *int64) {
		if v := getenv(envPrefix + key); v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
				return
			}
			*dst = n
		}
	}

	str("LISTEN_ADDR", &c.ListenAddr)
	str("DATA_DIR", &c.DataDir)
	str("EVENT_LOG", &c.EventLog)
	str("LOG_LEVEL", &c.LogLevel)
	boolean("LOG_JSON", &c.LogJSON)
	str("AUTH_TOKEN", &c.AuthToken)
	integer("MAX_BODY_BYTES", &c.MaxBodyBytes)
	if v := getenv(envPrefix + "INGEST_RATE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sINGEST_RATE: %w", envPrefix, err))
		} else {
			c.IngestRate = f
		}
	}
	burst := int64(c.IngestBurst)
	integer("INGEST_BURST", &burst)
	c.IngestBurst = int(burst)

	boolean("RAFT_ENABLED", &c.Raft.Enabled)
	str("RAFT_NODE_ID", &c.Raft.NodeID)
	str("RAFT_BIND_ADDRESS", &c.Raft.BindAddress)
	str("RAFT_DATA_DIR", &c.Raft.DataDir)
	boolean("RAFT_BOOTSTRAP", &c.Raft.Bootstrap)
	if v := getenv(envPrefix + "RAFT_PEERS"); v != "" {
		peers, err := parsePeers(v)
		if err != nil {
			errs = append(errs, err)
		} else {
			c.Raft.Peers = peers
		}
	}

	boolean("MQTT_ENABLED", &c.MQTT.Enabled)
	str("MQTT_BROKER", &c.MQTT.Broker)
	str("MQTT_CLIENT_ID", &c.MQTT.ClientID)
	str("MQTT_USER", &c.MQTT.Username)
	str("MQTT_PASS", &c.MQTT.Password)
	str("MQTT_TOPIC", &c.MQTT.Topic)

	return errors.Join(errs...)
}

// parsePeers reads "id=host:port,id=host:port".
func parsePeers(s string) ([]raftnode.Peer, error) {
	var peers []raftnode.Peer
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, addr, ok := strings.Cut(part, "=")
		if !ok || id == "" || addr == "" {
			return nil, fmt.Errorf("%sRAFT_PEERS: want id=host:port, got %q", envPrefix, part)
		}
		peers = append(peers, raftnode.Peer{ID: id, Address: addr})
	}
	return peers, nil
}

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	var errs []error
	if c.ListenAddr == "" {
		errs = append(errs, errors.New("listen_addr is required"))
	}
	if c.DataDir == "" {
		errs = append(errs, errors.New("data_dir is required"))
	}
	if c.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("max_body_bytes must be positive"))
	}
	if c.IngestRate < 0 {
		errs = append(errs, errors.New("ingest_rate must not be negative"))
	}
	if c.Raft.Enabled {
		if c.Raft.NodeID == "" {
			errs = append(errs, errors.New("raft.node_id is required"))
		}
		if c.Raft.BindAddress == "" {
			errs = append(errs, errors.New("raft.bind_address is required"))
		}
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		errs = append(errs, errors.New("mqtt.broker is required"))
	}
	return errors.Join(errs...)
}
