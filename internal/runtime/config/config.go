// Package config models the launch context the control plane hands to an
// actor process: the job payload, the partition assignment, and the
// connection settings for the result/telemetry link.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Default connection settings. The sidecar endpoint matches the address the
// control plane binds next to every actor container.
const (
	DefaultEndpoint  = "127.0.0.1:20086"
	DefaultTransport = "websocket"
)

// Config carries everything an actor needs from its launch context. Build it
// with FromEnv in production; tests fill the struct directly.
type Config struct {
	// InputJSON is the job payload inline. InputFile points at a payload file
	// instead; InputJSON wins when both are set.
	InputJSON string
	InputFile string

	// Endpoint is the control-plane address. Transport selects the wire:
	// "websocket", "nats", or "channel" (in-memory, for tests).
	Endpoint  string
	Transport string

	// RunID and Token identify this process instance to the control plane.
	// Credential failure during the handshake is fatal and not retried.
	RunID string
	Token string

	// SplitKey names the array-valued input property the control plane
	// partitions across instances. PartitionIndex/PartitionCount describe the
	// computed slice; PartitionRange ("lo:hi") overrides the computation when
	// set. PartitionIndex is -1 when no partition context was supplied.
	SplitKey       string
	PartitionIndex int
	PartitionCount int
	PartitionRange string

	// ProxyAuth is the opaque proxy credential passed through to business
	// logic unmodified.
	ProxyAuth string

	// Transport tuning. Zero values fall back to library defaults.
	ConnectTimeout      time.Duration
	MaxReconnects       int
	ReconnectInterval   time.Duration
	ReconnectMaxBackoff time.Duration
	SendMaxRetries      int
	SendRetryInterval   time.Duration
	SendRetryMaxBackoff time.Duration
	ShutdownGrace       time.Duration

	// Queue sizing.
	ResultBuffer int
	LogBuffer    int

	// MetricsPort exposes Prometheus metrics on /metrics when > 0.
	MetricsPort int
}

// ApplyDefaults fills zero-valued tuning knobs with library defaults. FromEnv
// calls it; tests building a Config by hand should too.
func (c *Config) ApplyDefaults() {
	if c.Endpoint == "" {
		c.Endpoint = DefaultEndpoint
	}
	if c.Transport == "" {
		c.Transport = DefaultTransport
	}
	if c.PartitionCount == 0 && c.PartitionRange == "" {
		c.PartitionIndex = -1
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.MaxReconnects <= 0 {
		c.MaxReconnects = 8
	}
	if c.ReconnectInterval <= 0 {
		c.ReconnectInterval = 500 * time.Millisecond
	}
	if c.ReconnectMaxBackoff <= 0 {
		c.ReconnectMaxBackoff = 30 * time.Second
	}
	if c.SendMaxRetries <= 0 {
		c.SendMaxRetries = 5
	}
	if c.SendRetryInterval <= 0 {
		c.SendRetryInterval = 250 * time.Millisecond
	}
	if c.SendRetryMaxBackoff <= 0 {
		c.SendRetryMaxBackoff = 8 * time.Second
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = 15 * time.Second
	}
	if c.ResultBuffer <= 0 {
		c.ResultBuffer = 1024
	}
	if c.LogBuffer <= 0 {
		c.LogBuffer = 512
	}
}

// FromEnv builds a Config from the control plane's environment contract
// (the CAFE_* variables) and applies defaults.
func FromEnv() (*Config, error) {
	c := &Config{
		InputJSON:      os.Getenv("CAFE_INPUT_JSON"),
		InputFile:      os.Getenv("CAFE_INPUT_FILE"),
		Endpoint:       os.Getenv("CAFE_ENDPOINT"),
		Transport:      os.Getenv("CAFE_TRANSPORT"),
		RunID:          os.Getenv("CAFE_RUN_ID"),
		Token:          os.Getenv("CAFE_TOKEN"),
		SplitKey:       os.Getenv("CAFE_SPLIT_KEY"),
		PartitionRange: os.Getenv("CAFE_PARTITION_RANGE"),
		ProxyAuth:      os.Getenv("PROXY_AUTH"),
		PartitionIndex: -1,
	}

	var err error
	if c.PartitionIndex, err = envInt("CAFE_PARTITION_INDEX", -1); err != nil {
		return nil, err
	}
	if c.PartitionCount, err = envInt("CAFE_PARTITION_COUNT", 0); err != nil {
		return nil, err
	}
	if c.MetricsPort, err = envInt("CAFE_METRICS_PORT", 0); err != nil {
		return nil, err
	}

	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func envInt(name string, fallback int) (int, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: expected integer, got %q", name, raw)
	}
	return v, nil
}

// Validate checks the launch context for internally inconsistent values.
func (c *Config) Validate() error {
	var errs []error

	// Transport names are not validated here; unknown names are left to the
	// transport registry so custom dialers can be plugged in.
	if c.Endpoint == "" {
		errs = append(errs, errors.New("endpoint is required"))
	}
	if c.PartitionCount < 0 {
		errs = append(errs, errors.New("partition count cannot be negative"))
	}
	if c.PartitionCount > 0 && (c.PartitionIndex < 0 || c.PartitionIndex >= c.PartitionCount) {
		errs = append(errs, fmt.Errorf("partition index %d out of range [0,%d)", c.PartitionIndex, c.PartitionCount))
	}
	if c.PartitionRange != "" {
		if _, _, err := ParseRange(c.PartitionRange); err != nil {
			errs = append(errs, err)
		}
	}
	if c.MetricsPort < 0 || c.MetricsPort > 65535 {
		errs = append(errs, fmt.Errorf("metrics: invalid port %d", c.MetricsPort))
	}

	return errors.Join(errs...)
}

// ParseRange parses an explicit "lo:hi" partition range.
func ParseRange(raw string) (lo, hi int, err error) {
	parts := strings.SplitN(raw, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("partition range %q: expected lo:hi", raw)
	}
	if lo, err = strconv.Atoi(parts[0]); err != nil {
		return 0, 0, fmt.Errorf("partition range %q: bad lower bound", raw)
	}
	if hi, err = strconv.Atoi(parts[1]); err != nil {
		return 0, 0, fmt.Errorf("partition range %q: bad upper bound", raw)
	}
	if lo < 0 || hi < lo {
		return 0, 0, fmt.Errorf("partition range %q: bounds out of order", raw)
	}
	return lo, hi, nil
}

// HasPartition reports whether the control plane supplied a partition
// context. Without one the process owns the full split-key array.
func (c *Config) HasPartition() bool {
	return c.PartitionRange != "" || (c.PartitionCount > 0 && c.PartitionIndex >= 0)
}

// Getter methods implementing the transport config interface.
func (c *Config) GetEndpoint() string              { return c.Endpoint }
func (c *Config) GetTransport() string             { return c.Transport }
func (c *Config) GetRunID() string                 { return c.RunID }
func (c *Config) GetToken() string                 { return c.Token }
func (c *Config) GetConnectTimeout() time.Duration { return c.ConnectTimeout }

func (c Config) String() string {
	// Copy so redaction never touches the live config.
	copy := c
	if copy.Token != "" {
		copy.Token = "***REDACTED***"
	}
	if copy.ProxyAuth != "" {
		copy.ProxyAuth = "***REDACTED***"
	}
	if len(copy.InputJSON) > 64 {
		copy.InputJSON = copy.InputJSON[:64] + "..."
	}
	type configAlias Config
	return fmt.Sprintf("%+v", configAlias(copy))
}
