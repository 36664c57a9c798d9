// Copyright (C) 2026 The detd Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package stream implements the data model from spec §3: stream
// configuration, traffic specification and the admitted traffic triple.
package stream

import (
	"fmt"

	"github.com/avnu-tsn/detd/internal/netutil"
)

// Type distinguishes admitted traffic kinds. Only Scheduled talkers are
// admitted through the pipeline this repo implements.
type Type int

const (
	Scheduled Type = iota
	BestEffort
)

func (t Type) String() string {
	if t == BestEffort {
		return "best_effort"
	}
	return "scheduled"
}

// Config is the per-stream configuration a talker requests.
type Config struct {
	DestMAC    [6]byte
	VID        uint16 // 802.1Q VLAN id, 1-4094
	PCP        uint8  // priority code point, 0-7
	TxOffsetNS uint64 // offset within cycle, 0 <= TxOffsetNS < Spec.IntervalNS
}

// MAC formats DestMAC as "XX:XX:XX:XX:XX:XX".
func (c Config) MAC() string {
	return netutil.FormatMAC(c.DestMAC[:])
}

// Spec is the traffic specification: cycle interval and frame size.
type Spec struct {
	IntervalNS uint64 // cycle interval in nanoseconds, > 0
	SizeBytes  uint32 // frame size in bytes, > 0
}

// DurationNS returns the transmission duration for one frame at the given
// link speed (bits per second): ceil(size*8*1e9 / link_bps).
func (s Spec) DurationNS(linkBps uint64) uint64 {
	if linkBps == 0 {
		return 0
	}
	bits := uint64(s.SizeBytes) * 8
	num := bits * 1_000_000_000
	d := num / linkBps
	if num%linkBps != 0 {
		d++
	}
	return d
}

// Traffic is the admitted (stream, spec, type) triple from spec §3.
type Traffic struct {
	Stream Config
	Spec   Spec
	Type   Type
}

// MaxFrameBytes bounds frame size validation (MTU 1500 + 802.1Q + Ethernet
// header/FCS headroom, matching the spec's "size ≤ MTU+headers").
const MaxFrameBytes = 1522

// Validate checks the invariants from spec §3/§4.3 that do not depend on a
// Device Profile (interval/device limits are checked by the caller, which
// has the profile in hand). txMaxNS, when nonzero, must equal
// txOffsetNS+durationNS per the Open Question resolution in SPEC_FULL.md
// §4.10(a); pass 0 to skip that check.
func Validate(cfg Config, spec Spec, linkBps uint64, txMaxNS uint64) error {
	var problems []string

	if spec.IntervalNS == 0 {
		problems = append(problems, "interval must be positive")
	}
	if spec.SizeBytes == 0 {
		problems = append(problems, "size must be positive")
	}
	if spec.SizeBytes > MaxFrameBytes {
		problems = append(problems, fmt.Sprintf("size %d exceeds maximum frame size %d", spec.SizeBytes, MaxFrameBytes))
	}
	if cfg.VID < 1 || cfg.VID > 4094 {
		problems = append(problems, fmt.Sprintf("vid %d out of range [1,4094]", cfg.VID))
	}
	if cfg.PCP > 7 {
		problems = append(problems, fmt.Sprintf("pcp %d out of range [0,7]", cfg.PCP))
	}
	if spec.IntervalNS != 0 && cfg.TxOffsetNS >= spec.IntervalNS {
		problems = append(problems, fmt.Sprintf("txoffset %d must be less than interval %d", cfg.TxOffsetNS, spec.IntervalNS))
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}

	duration := spec.DurationNS(linkBps)
	if spec.IntervalNS != 0 && duration > spec.IntervalNS {
		return &ValidationError{Problems: []string{
			fmt.Sprintf("frame duration %dns exceeds interval %dns", duration, spec.IntervalNS),
		}}
	}
	if txMaxNS != 0 && txMaxNS != cfg.TxOffsetNS+duration {
		return &ValidationError{Problems: []string{
			fmt.Sprintf("txmax %d does not equal txmin+duration (%d+%d=%d)", txMaxNS, cfg.TxOffsetNS, duration, cfg.TxOffsetNS+duration),
		}}
	}

	return nil
}

// ValidationError accumulates every validation problem found, matching the
// teacher's accumulate-don't-short-circuit validation style.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 1 {
		return e.Problems[0]
	}
	msg := fmt.Sprintf("%d validation problems:", len(e.Problems))
	for _, p := range e.Problems {
		msg += "\n  - " + p
	}
	return msg
}
