// Package config loads the settings shared by every Heron process.
//
// Precedence: built-in defaults, then an optional YAML file, then HERON_* environment
// variables. Command flags are applied by the caller on top.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/united-manufacturing-hub/umh-utils/env"
	"gopkg.in/yaml.v3"

	"github.com/YAMLcase/Heron/transport"
)

// PortPair is the inbound (submit) and outbound (publish) port of one forwarder.
type PortPair struct {
	Submit  int `yaml:"submit"`
	Publish int `yaml:"publish"`
}

// Forwarders holds the port pairs of the three forwarders.
type Forwarders struct {
	Data       PortPair `yaml:"data"`
	Parameters PortPair `yaml:"parameters"`
	Liveness   PortPair `yaml:"liveness"`
}

// MQTT configures the optional readiness/parameter bridge.
type MQTT struct {
	Broker      string `yaml:"broker"`
	TopicPrefix string `yaml:"topic_prefix"`
	ClientID    string `yaml:"client_id"`
}

// Logging configures the process logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the process configuration.
type Config struct {
	Host       string     `yaml:"host"`
	Forwarders Forwarders `yaml:"forwarders"`

	HeartbeatRate     time.Duration `yaml:"heartbeat_rate"`
	HeartbeatsToDeath int           `yaml:"heartbeats_to_death"`
	DialTimeout       time.Duration `yaml:"dial_timeout"`
	SampleInterval    time.Duration `yaml:"sample_interval"`

	HealthAddr        string `yaml:"health_addr"`
	StageHealthOffset int    `yaml:"stage_health_offset"`
	VisualizationDir  string `yaml:"visualization_dir"`

	MQTT    MQTT    `yaml:"mqtt"`
	Logging Logging `yaml:"logging"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Host: "127.0.0.1",
		Forwarders: Forwarders{
			Data:       PortPair{Submit: 5560, Publish: 5561},
			Parameters: PortPair{Submit: 5562, Publish: 5563},
			Liveness:   PortPair{Submit: 5564, Publish: 5565},
		},
		HeartbeatRate:     time.Second,
		HeartbeatsToDeath: 5,
		DialTimeout:       10 * time.Second,
		SampleInterval:    5 * time.Second,
		MQTT: MQTT{
			TopicPrefix: "heron",
		},
		Logging: Logging{Level: "info", Format: "console"},
	}
}

// Load reads path (if non-empty) over the defaults, then applies environment overrides and
// validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"HERON_HOST":              &c.Host,
		"HERON_HEALTH_ADDR":       &c.HealthAddr,
		"HERON_VISUALIZATION_DIR": &c.VisualizationDir,
		"HERON_MQTT_BROKER":       &c.MQTT.Broker,
		"HERON_MQTT_TOPIC_PREFIX": &c.MQTT.TopicPrefix,
		"LOGGING_LEVEL":           &c.Logging.Level,
		"LOGGING_FORMAT":          &c.Logging.Format,
	}
	for key, dst := range strs {
		if _, ok := os.LookupEnv(key); !ok {
			continue
		}
		v, err := env.GetAsString(key, true, *dst)
		if err != nil {
			return fmt.Errorf("env %s: %w", key, err)
		}
		*dst = v
	}

	ints := map[string]*int{
		"HERON_HEARTBEATS_TO_DEATH": &c.HeartbeatsToDeath,
		"HERON_STAGE_HEALTH_OFFSET": &c.StageHealthOffset,
	}
	for key, dst := range ints {
		if _, ok := os.LookupEnv(key); !ok {
			continue
		}
		n, err := env.GetAsInt(key, true, *dst)
		if err != nil {
			return fmt.Errorf("env %s: %w", key, err)
		}
		*dst = n
	}

	durations := map[string]*time.Duration{
		"HERON_HEARTBEAT_RATE": &c.HeartbeatRate,
		"HERON_DIAL_TIMEOUT":   &c.DialTimeout,
	}
	for key, dst := range durations {
		if _, ok := os.LookupEnv(key); !ok {
			continue
		}
		raw, err := env.GetAsString(key, true, dst.String())
		if err != nil {
			return fmt.Errorf("env %s: %w", key, err)
		}
		d, err := parseDuration(raw)
		if err != nil {
			return fmt.Errorf("env %s: %w", key, err)
		}
		*dst = d
	}
	return nil
}

// parseDuration accepts Go durations and bare seconds ("2", "0.5").
func parseDuration(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// Validate checks ranges.
func (c Config) Validate() error {
	var errs []error
	if c.Host == "" {
		errs = append(errs, errors.New("host must not be empty"))
	}
	for name, pp := range map[string]PortPair{
		"data":       c.Forwarders.Data,
		"parameters": c.Forwarders.Parameters,
		"liveness":   c.Forwarders.Liveness,
	} {
		if !validPort(pp.Submit) || !validPort(pp.Publish) {
			errs = append(errs, fmt.Errorf("forwarder %s: ports out of range (%d, %d)", name, pp.Submit, pp.Publish))
		}
		if pp.Submit == pp.Publish {
			errs = append(errs, fmt.Errorf("forwarder %s: submit and publish port are both %d", name, pp.Submit))
		}
	}
	if c.HeartbeatRate <= 0 {
		errs = append(errs, fmt.Errorf("heartbeat_rate must be positive, got %s", c.HeartbeatRate))
	}
	if c.HeartbeatsToDeath < 1 {
		errs = append(errs, fmt.Errorf("heartbeats_to_death must be at least 1, got %d", c.HeartbeatsToDeath))
	}
	if c.StageHealthOffset < 0 || c.StageHealthOffset > 65535 {
		errs = append(errs, fmt.Errorf("stage_health_offset out of range, got %d", c.StageHealthOffset))
	}
	if c.DialTimeout <= 0 {
		errs = append(errs, fmt.Errorf("dial_timeout must be positive, got %s", c.DialTimeout))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func validPort(p int) bool { return p > 0 && p <= 65535 }

// LivenessThreshold is heartbeat_rate × heartbeats_to_death.
func (c Config) LivenessThreshold() time.Duration {
	return c.HeartbeatRate * time.Duration(c.HeartbeatsToDeath)
}

// Endpoint formats a TCP endpoint on the configured host.
func (c Config) Endpoint(port int) string {
	return transport.TCP(c.Host, port)
}

// StageHealthAddr is the health address of a stage process whose lowest channel port is port:
// the supervisor passes P, the worker P+1. Stage port triples never overlap, so shifting them by
// stage_health_offset gives every stage process its own address. It returns "" (health disabled)
// when no offset is configured or the shifted port is out of range. The host part of health_addr,
// if any, is kept.
func (c Config) StageHealthAddr(port int) string {
	if c.StageHealthOffset == 0 || !validPort(port+c.StageHealthOffset) {
		return ""
	}
	host := ""
	if h, _, err := net.SplitHostPort(c.HealthAddr); err == nil {
		host = h
	}
	return net.JoinHostPort(host, strconv.Itoa(port+c.StageHealthOffset))
}
