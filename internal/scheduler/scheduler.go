// Copyright (C) 2026 The detd Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package scheduler implements spec §4.4: the merged gate-control list
// computed across all admitted scheduled streams on one interface.
//
// State.Add is pure (spec §9 Design Notes): it returns a new State and a
// new Schedule, leaving the receiver untouched, so a caller (package
// ifcontext) can commit the new value only after the System Effector
// successfully applies it and simply drop the tentative value otherwise.
package scheduler

import (
	"sort"
	"time"

	"github.com/avnu-tsn/detd/internal/errors"
	"github.com/avnu-tsn/detd/internal/stream"
)

// BestEffortTC is the fixed traffic class for non-scheduled traffic; its
// gate bit (bit 0) is open whenever no scheduled stream's slot is active.
const BestEffortTC = 0

// Entry is one admitted scheduled stream: its stream/traffic spec, its
// assigned traffic class, and its precomputed per-cycle transmission
// duration.
type Entry struct {
	Stream     stream.Config
	Spec       stream.Spec
	TC         int
	DurationNS uint64
}

// GateEntry is one (gate_mask, duration) slot of a Schedule per spec §3.
type GateEntry struct {
	GateMask uint32
	Duration time.Duration
}

// Schedule is the merged, canonical gate-control list for one interface.
type Schedule struct {
	CycleNS  uint64
	Entries  []GateEntry
	BaseTime time.Time
}

// State is the set of admitted (traffic class, stream) entries for one
// interface.
type State struct {
	admitted []Entry
}

// New returns an empty scheduler state.
func New() *State {
	return &State{}
}

// Clone returns an independent copy of s.
func (s *State) Clone() *State {
	cp := &State{admitted: make([]Entry, len(s.admitted))}
	copy(cp.admitted, s.admitted)
	return cp
}

// Admitted returns the admitted entries, for inspection in tests and
// Mapping-state verification. The returned slice must not be mutated.
func (s *State) Admitted() []Entry {
	return s.admitted
}

// release drops the entry for tc from a copy of s. Stream removal is not
// implemented (spec §9 Design Notes (c)); this stub exists so admission
// bookkeeping does not have to be restructured when a remove_talker
// request is added to the wire protocol.
// TODO: wire this up once StreamQosRequest gains a remove/talker-id field.
func (s *State) release(tc int) *State { //nolint:unused
	next := s.Clone()
	filtered := next.admitted[:0]
	for _, e := range next.admitted {
		if e.TC != tc {
			filtered = append(filtered, e)
		}
	}
	next.admitted = filtered
	return next
}

type slot struct {
	start, end uint64
	tc         int
}

// Add admits a new Entry into a copy of s and returns the copy plus the
// recomputed merged Schedule. s itself is never mutated. now is the wall
// clock used to derive the taprio base-time (spec §9 Design Notes,
// resolution (b): wall-clock, not PTP-synchronised).
func (s *State) Add(e Entry, now time.Time) (*State, Schedule, error) {
	next := s.Clone()
	next.admitted = append(next.admitted, e)

	cycle := cycleNS(next.admitted)

	var slots []slot
	for _, entry := range next.admitted {
		period := entry.Spec.IntervalNS
		reps := cycle / period
		for k := uint64(0); k < reps; k++ {
			start := entry.Stream.TxOffsetNS + k*period
			slots = append(slots, slot{start: start, end: start + entry.DurationNS, tc: entry.TC})
		}
	}

	sort.Slice(slots, func(i, j int) bool {
		if slots[i].start != slots[j].start {
			return slots[i].start < slots[j].start
		}
		return slots[i].tc < slots[j].tc
	})

	for i := 1; i < len(slots); i++ {
		if slots[i].start < slots[i-1].end {
			return nil, Schedule{}, errors.Errorf(errors.KindScheduleConflict,
				"scheduled slot [%d,%d) on tc %d overlaps [%d,%d) on tc %d",
				slots[i].start, slots[i].end, slots[i].tc,
				slots[i-1].start, slots[i-1].end, slots[i-1].tc)
		}
	}

	entries := make([]GateEntry, 0, len(slots)*2+1)
	var cursor uint64
	for _, sl := range slots {
		if sl.start > cursor {
			entries = append(entries, GateEntry{
				GateMask: 1 << BestEffortTC,
				Duration: time.Duration(sl.start - cursor),
			})
		}
		entries = append(entries, GateEntry{
			GateMask: 1 << uint(sl.tc),
			Duration: time.Duration(sl.end - sl.start),
		})
		cursor = sl.end
	}
	if cursor < cycle {
		entries = append(entries, GateEntry{
			GateMask: 1 << BestEffortTC,
			Duration: time.Duration(cycle - cursor),
		})
	}
	if len(entries) == 0 {
		entries = append(entries, GateEntry{GateMask: 1 << BestEffortTC, Duration: time.Duration(cycle)})
	}

	sched := Schedule{
		CycleNS:  cycle,
		Entries:  entries,
		BaseTime: now.Add(time.Duration(2 * cycle)),
	}

	return next, sched, nil
}

func cycleNS(entries []Entry) uint64 {
	var cycle uint64 = 1
	for _, e := range entries {
		cycle = lcm(cycle, e.Spec.IntervalNS)
	}
	return cycle
}

func gcd(a, b uint64) uint64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func lcm(a, b uint64) uint64 {
	if a == 0 || b == 0 {
		return 0
	}
	return a / gcd(a, b) * b
}
