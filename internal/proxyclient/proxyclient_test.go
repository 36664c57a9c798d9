// Copyright (C) 2026 The detd Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package proxyclient

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/avnu-tsn/detd/internal/device"
	"github.com/avnu-tsn/detd/internal/effector"
	"github.com/avnu-tsn/detd/internal/errors"
	"github.com/avnu-tsn/detd/internal/logging"
	"github.com/avnu-tsn/detd/internal/manager"
	"github.com/avnu-tsn/detd/internal/metrics"
	"github.com/avnu-tsn/detd/internal/service"
)

func startTestService(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "detd.sock")

	resolver := device.StaticResolver{"eth0": "igb"}
	reg := device.NewRegistry([]device.Profile{
		{Driver: "igb", Queues: 8, LinkBps: 1_000_000_000, MaxInterval: time.Second},
	}, resolver)
	mgr := manager.New(reg, effector.NewSimEffector())
	svc := service.New(service.Config{SocketPath: path, Workers: 2}, mgr, logging.Noop(), metrics.New(prometheus.NewRegistry()))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = svc.Serve(ctx) }()

	require.Eventually(t, func() bool {
		c := New(path)
		_, _, err := c.AddTalker(context.Background(), Request{Interface: "does-not-exist", DestMAC: "aa:bb:cc:dd:ee:ff"})
		// any response at all means the socket is up; a failed dial is
		// reported as KindProtocol.
		return err != nil && errors.GetKind(err) != errors.KindProtocol
	}, time.Second, 10*time.Millisecond)

	return path
}

func TestAddTalkerGrantsAdmission(t *testing.T) {
	path := startTestService(t)
	c := New(path)

	vlanIface, prio, err := c.AddTalker(context.Background(), Request{
		Interface: "eth0",
		PeriodNS:  2_000_000,
		SizeBytes: 1522,
		DestMAC:   "aa:bb:cc:dd:ee:ff",
		VID:       100,
		PCP:       6,
		TxMinNS:   250_000,
		TxMaxNS:   262_176,
	})
	require.NoError(t, err)
	require.Equal(t, "eth0.100", vlanIface)
	require.Equal(t, 7, prio)
}

func TestAddTalkerSurfacesRejectionKind(t *testing.T) {
	path := startTestService(t)
	c := New(path)

	_, _, err := c.AddTalker(context.Background(), Request{Interface: "eth9", DestMAC: "aa:bb:cc:dd:ee:ff"})
	require.Error(t, err)
	require.Equal(t, errors.KindUnknownDevice, errors.GetKind(err))
}
