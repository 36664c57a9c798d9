// Copyright (C) 2026 The detd Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/avnu-tsn/detd/internal/config"
	"github.com/avnu-tsn/detd/internal/device"
	"github.com/avnu-tsn/detd/internal/effector"
	"github.com/avnu-tsn/detd/internal/logging"
	"github.com/avnu-tsn/detd/internal/manager"
	"github.com/avnu-tsn/detd/internal/metrics"
	"github.com/avnu-tsn/detd/internal/service"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the detd admission service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "/etc/detd/detd.yaml", "path to detd.yaml")
	return cmd
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, err := logging.New(logging.Options{
		Path:  cfg.LogFile,
		Level: cfg.LogLevel,
		Syslog: logging.SyslogConfig{
			Enabled:  cfg.Syslog.Enabled,
			Host:     cfg.Syslog.Host,
			Port:     cfg.Syslog.Port,
			Protocol: cfg.Syslog.Protocol,
			Tag:      cfg.Syslog.Tag,
			Facility: cfg.Syslog.Facility,
		},
	})
	if err != nil {
		return err
	}

	eff, resolver, err := newEffector(cfg.DriverOverrides)
	if err != nil {
		return err
	}
	if closer, ok := eff.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	registry := device.NewRegistry(cfg.Profiles(), resolver)
	mgr := manager.New(registry, eff)
	m := metrics.New(prometheus.DefaultRegisterer)

	svc := service.New(service.Config{
		SocketPath:  cfg.SocketPath,
		SocketGroup: cfg.SocketGroup,
		Workers:     cfg.Workers,
	}, mgr, log, m)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("starting detd", "socket_path", cfg.SocketPath, "workers", cfg.Workers)
	return svc.Serve(ctx)
}
