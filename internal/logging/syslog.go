// Copyright (C) 2026 The detd Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package logging

import (
	"fmt"
	"io"
	"log/syslog"
)

// SyslogConfig controls shipping log lines to a remote syslog collector,
// in addition to the file/stderr writer logging.New always sets up.
type SyslogConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Protocol string
	Tag      string
	Facility int
}

// DefaultSyslogConfig returns remote syslog shipping disabled.
func DefaultSyslogConfig() SyslogConfig {
	return SyslogConfig{
		Enabled:  false,
		Port:     514,
		Protocol: "udp",
		Tag:      "detd",
		Facility: 1,
	}
}

// NewSyslogWriter dials a remote syslog collector and returns a writer
// that ships every line written to it as one syslog message.
func NewSyslogWriter(cfg SyslogConfig) (io.Writer, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("syslog host must not be empty")
	}
	cfg = withSyslogDefaults(cfg)

	priority := syslog.Priority(cfg.Facility<<3) | syslog.LOG_INFO
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	return syslog.Dial(cfg.Protocol, addr, priority, cfg.Tag)
}

// withSyslogDefaults fills in the port, protocol and tag NewSyslogWriter
// uses when cfg leaves them unset.
func withSyslogDefaults(cfg SyslogConfig) SyslogConfig {
	if cfg.Port == 0 {
		cfg.Port = 514
	}
	if cfg.Protocol == "" {
		cfg.Protocol = "udp"
	}
	if cfg.Tag == "" {
		cfg.Tag = "detd"
	}
	return cfg
}
