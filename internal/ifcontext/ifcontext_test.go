// Copyright (C) 2026 The detd Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package ifcontext

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/avnu-tsn/detd/internal/device"
	"github.com/avnu-tsn/detd/internal/effector"
	"github.com/avnu-tsn/detd/internal/errors"
	"github.com/avnu-tsn/detd/internal/stream"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func testProfile() device.Profile {
	return device.Profile{
		Driver:      "igb",
		Queues:      8,
		LinkBps:     1_000_000_000,
		EEECapable:  true,
		Features:    []string{"eee"},
		MinInterval: 100 * time.Microsecond,
		MaxInterval: time.Second,
	}
}

func TestAddTalkerSucceedsAndAppliesActions(t *testing.T) {
	eff := effector.NewSimEffector()
	c := New("eth0", testProfile(), eff).WithClock(func() time.Time { return epoch })

	cfg := stream.Config{DestMAC: [6]byte{1, 2, 3, 4, 5, 6}, VID: 100, PCP: 6, TxOffsetNS: 250_000}
	spec := stream.Spec{IntervalNS: 2_000_000, SizeBytes: 1522}
	txMax := cfg.TxOffsetNS + spec.DurationNS(testProfile().LinkBps)

	vlanIface, prio, err := c.AddTalker(context.Background(), cfg, spec, txMax)
	require.NoError(t, err)
	require.Equal(t, "eth0.100", vlanIface)
	require.Equal(t, 7, prio)

	require.True(t, eff.QdiscPresent("eth0"))
	require.True(t, eff.VLANPresent("eth0", 100))
	require.False(t, eff.FeatureEnabled("eth0", "eee"))
	require.Len(t, c.Admitted(), 1)
}

func TestAddTalkerRejectsInvalidRequest(t *testing.T) {
	eff := effector.NewSimEffector()
	c := New("eth0", testProfile(), eff).WithClock(func() time.Time { return epoch })

	cfg := stream.Config{VID: 0, PCP: 6} // invalid VID
	spec := stream.Spec{IntervalNS: 2_000_000, SizeBytes: 1522}

	_, _, err := c.AddTalker(context.Background(), cfg, spec, 0)
	require.Error(t, err)
	require.Equal(t, errors.KindValidation, errors.GetKind(err))
	require.Empty(t, c.Admitted())
}

func TestAddTalkerRollsBackOnEffectorFailure(t *testing.T) {
	eff := effector.NewSimEffector()
	eff.FailAction = 10 // qdisc/vlan action index that doesn't exist yet; set below
	c := New("eth0", testProfile(), eff).WithClock(func() time.Time { return epoch })

	// Fail the VLAN action (index 2: feature, qdisc, vlan).
	eff.FailAction = 2

	cfg := stream.Config{VID: 100, PCP: 6, TxOffsetNS: 250_000}
	spec := stream.Spec{IntervalNS: 2_000_000, SizeBytes: 1522}
	txMax := cfg.TxOffsetNS + spec.DurationNS(testProfile().LinkBps)

	_, _, err := c.AddTalker(context.Background(), cfg, spec, txMax)
	require.Error(t, err)
	require.Equal(t, errors.KindEffectorTransient, errors.GetKind(err))
	require.Empty(t, c.Admitted(), "a rolled-back admission must not be committed")
	require.False(t, eff.QdiscPresent("eth0"))
	require.Nil(t, c.Degraded())
}

func TestAddTalkerDegradesInterfaceOnFatalRollback(t *testing.T) {
	eff := effector.NewSimEffector()
	eff.FailAction = 2
	eff.FailUndo = true
	c := New("eth0", testProfile(), eff).WithClock(func() time.Time { return epoch })

	cfg := stream.Config{VID: 100, PCP: 6, TxOffsetNS: 250_000}
	spec := stream.Spec{IntervalNS: 2_000_000, SizeBytes: 1522}
	txMax := cfg.TxOffsetNS + spec.DurationNS(testProfile().LinkBps)

	_, _, err := c.AddTalker(context.Background(), cfg, spec, txMax)
	require.Error(t, err)
	require.Equal(t, errors.KindEffectorFatal, errors.GetKind(err))
	require.Error(t, c.Degraded())

	// A subsequent admission must fail fast without touching the effector.
	_, _, err = c.AddTalker(context.Background(), stream.Config{VID: 101, PCP: 5, TxOffsetNS: 500_000}, spec, 0)
	require.Error(t, err)
	require.Equal(t, errors.KindEffectorFatal, errors.GetKind(err))
}

func TestAddTalkerRejectsIntervalOutsideDeviceRange(t *testing.T) {
	eff := effector.NewSimEffector()
	c := New("eth0", testProfile(), eff).WithClock(func() time.Time { return epoch })

	cfg := stream.Config{VID: 100, PCP: 6, TxOffsetNS: 10}
	spec := stream.Spec{IntervalNS: 10_000, SizeBytes: 64} // below MinInterval (100us)

	_, _, err := c.AddTalker(context.Background(), cfg, spec, 0)
	require.Error(t, err)
	require.Equal(t, errors.KindValidation, errors.GetKind(err))
}
