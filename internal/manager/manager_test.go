// Copyright (C) 2026 The detd Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package manager

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

func testRegistry() *device.Registry {
	resolver := device.StaticResolver{"eth0": "igb"}
	return device.NewRegistry([]device.Profile{
		{Driver: "igb", Queues: 8, LinkBps: 1_000_000_000, EEECapable: true, Features: []string{"eee"}, MaxInterval: time.Second},
	}, resolver)
}

func TestAddTalkerCreatesContextLazily(t *testing.T) {
	m := New(testRegistry(), effector.NewSimEffector())
	require.Empty(t, m.Interfaces())

	cfg := stream.Config{VID: 100, PCP: 6, TxOffsetNS: 250_000}
	spec := stream.Spec{IntervalNS: 2_000_000, SizeBytes: 1522}
	txMax := cfg.TxOffsetNS + spec.DurationNS(1_000_000_000)

	vlanIface, prio, err := m.AddTalker(context.Background(), "eth0", cfg, spec, txMax)
	require.NoError(t, err)
	require.Equal(t, "eth0.100", vlanIface)
	require.Equal(t, 7, prio)
	require.Equal(t, []string{"eth0"}, m.Interfaces())
}

func TestAddTalkerUnknownInterface(t *testing.T) {
	m := New(testRegistry(), effector.NewSimEffector())
	_, _, err := m.AddTalker(context.Background(), "eth9", stream.Config{VID: 1}, stream.Spec{IntervalNS: 1, SizeBytes: 1}, 0)
	require.Error(t, err)
	require.Equal(t, errors.KindUnknownDevice, errors.GetKind(err))
}

func TestAddTalkerReusesContextAcrossCalls(t *testing.T) {
	m := New(testRegistry(), effector.NewSimEffector())

	cfg1 := stream.Config{VID: 100, PCP: 6, TxOffsetNS: 250_000}
	spec1 := stream.Spec{IntervalNS: 2_000_000, SizeBytes: 1522}
	_, _, err := m.AddTalker(context.Background(), "eth0", cfg1, spec1, cfg1.TxOffsetNS+spec1.DurationNS(1_000_000_000))
	require.NoError(t, err)

	cfg2 := stream.Config{VID: 100, PCP: 5, TxOffsetNS: 1_000_000}
	spec2 := stream.Spec{IntervalNS: 2_000_000, SizeBytes: 512}
	_, prio2, err := m.AddTalker(context.Background(), "eth0", cfg2, spec2, cfg2.TxOffsetNS+spec2.DurationNS(1_000_000_000))
	require.NoError(t, err)
	require.Equal(t, 6, prio2)

	require.Len(t, m.Interfaces(), 1)
}
