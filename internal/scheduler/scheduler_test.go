// Copyright (C) 2026 The detd Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package scheduler

import (
	"testing"
	"time"

	"github.com/avnu-tsn/detd/internal/stream"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestAddFirstAdmissionSimpleCycle(t *testing.T) {
	s := New()
	spec := stream.Spec{IntervalNS: 2_000_000, SizeBytes: 1522}
	duration := spec.DurationNS(1_000_000_000)

	next, sched, err := s.Add(Entry{
		Stream:     stream.Config{TxOffsetNS: 250_000},
		Spec:       spec,
		TC:         1,
		DurationNS: duration,
	}, epoch)
	require.NoError(t, err)
	require.Equal(t, uint64(2_000_000), sched.CycleNS)

	require.Len(t, sched.Entries, 3)
	require.Equal(t, uint32(0x01), sched.Entries[0].GateMask)
	require.Equal(t, 250_000*time.Nanosecond, sched.Entries[0].Duration)
	require.Equal(t, uint32(0x02), sched.Entries[1].GateMask)
	require.Equal(t, 12176*time.Nanosecond, sched.Entries[1].Duration)
	require.Equal(t, uint32(0x01), sched.Entries[2].GateMask)
	require.Equal(t, 1_737_824*time.Nanosecond, sched.Entries[2].Duration)

	var total time.Duration
	for _, e := range sched.Entries {
		total += e.Duration
	}
	require.Equal(t, time.Duration(2_000_000), total)
	require.Len(t, next.Admitted(), 1)
}

func TestAddSecondAdmissionSamePeriodCoexists(t *testing.T) {
	s := New()
	spec := stream.Spec{IntervalNS: 2_000_000, SizeBytes: 1522}
	d1 := spec.DurationNS(1_000_000_000)

	s, _, err := s.Add(Entry{
		Stream: stream.Config{TxOffsetNS: 250_000}, Spec: spec, TC: 1, DurationNS: d1,
	}, epoch)
	require.NoError(t, err)

	spec2 := stream.Spec{IntervalNS: 2_000_000, SizeBytes: 512}
	d2 := spec2.DurationNS(1_000_000_000)
	_, sched, err := s.Add(Entry{
		Stream: stream.Config{TxOffsetNS: 1_000_000}, Spec: spec2, TC: 2, DurationNS: d2,
	}, epoch)
	require.NoError(t, err)

	require.Equal(t, uint64(2_000_000), sched.CycleNS)

	var starts []uint64
	var cursor uint64
	for _, e := range sched.Entries {
		starts = append(starts, cursor)
		cursor += uint64(e.Duration)
	}
	require.Contains(t, starts, uint64(250_000))
	require.Contains(t, starts, uint64(1_000_000))

	scheduledCount := 0
	for _, e := range sched.Entries {
		if e.GateMask != 0x01 {
			scheduledCount++
		}
	}
	require.Equal(t, 2, scheduledCount)
}

func TestAddCoprimePeriodsExtendCycle(t *testing.T) {
	s := New()
	spec1 := stream.Spec{IntervalNS: 1_000_000, SizeBytes: 100}
	s, _, err := s.Add(Entry{Stream: stream.Config{TxOffsetNS: 0}, Spec: spec1, TC: 1, DurationNS: spec1.DurationNS(1_000_000_000)}, epoch)
	require.NoError(t, err)

	spec2 := stream.Spec{IntervalNS: 1_500_000, SizeBytes: 100}
	_, sched, err := s.Add(Entry{Stream: stream.Config{TxOffsetNS: 300_000}, Spec: spec2, TC: 2, DurationNS: spec2.DurationNS(1_000_000_000)}, epoch)
	require.NoError(t, err)

	require.Equal(t, uint64(3_000_000), sched.CycleNS)

	tc1Count, tc2Count := 0, 0
	for _, e := range sched.Entries {
		switch e.GateMask {
		case 0x02:
			tc1Count++
		case 0x04:
			tc2Count++
		}
	}
	require.Equal(t, 3, tc1Count)
	require.Equal(t, 2, tc2Count)
}

func TestAddOverlapRejected(t *testing.T) {
	s := New()
	spec := stream.Spec{IntervalNS: 2_000_000, SizeBytes: 1522}
	d := spec.DurationNS(1_000_000_000)
	s, _, err := s.Add(Entry{Stream: stream.Config{TxOffsetNS: 250_000}, Spec: spec, TC: 1, DurationNS: d}, epoch)
	require.NoError(t, err)

	_, _, err = s.Add(Entry{Stream: stream.Config{TxOffsetNS: 250_000}, Spec: spec, TC: 2, DurationNS: d}, epoch)
	require.Error(t, err)
}

func TestAddIsPure(t *testing.T) {
	s := New()
	spec := stream.Spec{IntervalNS: 2_000_000, SizeBytes: 1522}
	d := spec.DurationNS(1_000_000_000)

	_, _, err := s.Add(Entry{Stream: stream.Config{TxOffsetNS: 250_000}, Spec: spec, TC: 1, DurationNS: d}, epoch)
	require.NoError(t, err)
	require.Len(t, s.Admitted(), 0, "Add must not mutate the receiver")
}

func TestBaseTimeIsTwoCyclesAhead(t *testing.T) {
	s := New()
	spec := stream.Spec{IntervalNS: 1_000_000, SizeBytes: 100}
	_, sched, err := s.Add(Entry{Stream: stream.Config{TxOffsetNS: 0}, Spec: spec, TC: 1, DurationNS: spec.DurationNS(1_000_000_000)}, epoch)
	require.NoError(t, err)
	require.Equal(t, epoch.Add(2*time.Millisecond), sched.BaseTime)
}
