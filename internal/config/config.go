// Copyright (C) 2026 The detd Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package config loads detd.yaml, the service's static configuration
// (spec §6 transport settings plus the Device Profile list it needs to
// build its registry). Validation accumulates every problem found
// rather than stopping at the first, matching the validation style used
// throughout the rest of this service.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/avnu-tsn/detd/internal/device"
)

// DeviceConfig is one entry of the devices list in detd.yaml.
type DeviceConfig struct {
	Driver      string        `yaml:"driver"`
	Queues      int           `yaml:"queues"`
	LinkBps     uint64        `yaml:"link_bps"`
	EEECapable  bool          `yaml:"eee_capable"`
	Features    []string      `yaml:"features"`
	MinInterval time.Duration `yaml:"min_interval"`
	MaxInterval time.Duration `yaml:"max_interval"`
}

// Config is the top-level detd.yaml document.
type Config struct {
	SocketPath    string         `yaml:"socket_path"`
	SocketGroup   string         `yaml:"socket_group"`
	MaxFrameBytes int            `yaml:"max_frame_bytes"`
	Workers       int            `yaml:"workers"`
	LogFile       string         `yaml:"log_file"`
	LogLevel      string         `yaml:"log_level"`
	Devices       []DeviceConfig `yaml:"devices"`

	// DriverOverrides maps an interface name to a driver id directly,
	// bypassing ethtool driver-info queries. Used outside DETD_TESTENV=TARGET,
	// where no real ethtool handle is available.
	DriverOverrides map[string]string `yaml:"driver_overrides"`

	Syslog SyslogConfig `yaml:"syslog"`
}

// SyslogConfig mirrors logging.SyslogConfig for YAML decoding.
type SyslogConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Protocol string `yaml:"protocol"`
	Tag      string `yaml:"tag"`
	Facility int    `yaml:"facility"`
}

// simDeviceConfig is the built-in device profile substituted for an empty
// or omitted devices list, so a development config file need not name a
// real NIC driver. The config file itself is still required: Load fails
// when it is missing.
var simDeviceConfig = DeviceConfig{Driver: "sim", Queues: 8, LinkBps: 1_000_000_000}

// Default returns the built-in configuration Load starts from; values set
// in the file override it.
func Default() Config {
	return Config{
		SocketPath:    "/var/run/detd/detd_service.sock",
		SocketGroup:   "detd",
		MaxFrameBytes: 64 * 1024,
		Workers:       4,
		LogFile:       "/var/log/detd.log",
		LogLevel:      "info",
		Devices:       []DeviceConfig{simDeviceConfig},
		Syslog:        SyslogConfig{Port: 514, Protocol: "udp", Tag: "detd", Facility: 1},
	}
}

// Load reads and parses the YAML document at path, filling in defaults
// for anything left unset.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if len(cfg.Devices) == 0 {
		cfg.Devices = []DeviceConfig{simDeviceConfig}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for internal consistency, collecting
// every problem rather than stopping at the first.
func (c Config) Validate() error {
	var problems []string

	if c.SocketPath == "" {
		problems = append(problems, "socket_path must not be empty")
	}
	if c.MaxFrameBytes <= 0 {
		problems = append(problems, "max_frame_bytes must be positive")
	}
	if c.Workers <= 0 {
		problems = append(problems, "workers must be positive")
	}
	for i, d := range c.Devices {
		if d.Driver == "" {
			problems = append(problems, fmt.Sprintf("devices[%d]: driver must not be empty", i))
		}
		if d.Queues <= 0 {
			problems = append(problems, fmt.Sprintf("devices[%d]: queues must be positive", i))
		}
		if d.LinkBps == 0 {
			problems = append(problems, fmt.Sprintf("devices[%d]: link_bps must be positive", i))
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// Profiles converts the configured devices into device.Profile values.
func (c Config) Profiles() []device.Profile {
	out := make([]device.Profile, 0, len(c.Devices))
	for _, d := range c.Devices {
		out = append(out, device.Profile{
			Driver:      d.Driver,
			Queues:      d.Queues,
			LinkBps:     d.LinkBps,
			EEECapable:  d.EEECapable,
			Features:    d.Features,
			MinInterval: d.MinInterval,
			MaxInterval: d.MaxInterval,
		})
	}
	return out
}

// ValidationError collects every configuration problem found.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("%d configuration problems:", len(e.Problems))
	for _, p := range e.Problems {
		msg += "\n  - " + p
	}
	return msg
}
