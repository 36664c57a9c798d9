// Copyright (C) 2026 The detd Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package effector implements spec §4.6: the System Effector, a list of
// reversible Actions applied in order with rollback of the already-applied
// prefix on the first failure.
//
// This mirrors the teacher's kernel-effect provider shape (a small
// interface wrapping real OS calls, with a simulation-mode implementation
// for tests) and its documented practice of falling back to the `tc` CLI
// for configuration the netlink library doesn't serialise reliably.
package effector

import (
	"context"
	"strconv"

	"github.com/avnu-tsn/detd/internal/errors"
	"github.com/avnu-tsn/detd/internal/mapping"
	"github.com/avnu-tsn/detd/internal/scheduler"
)

// ActionKind tags the variant of a reversible Action.
type ActionKind int

const (
	// ActionSetFeature disables/enables a named device feature (e.g. EEE).
	ActionSetFeature ActionKind = iota
	// ActionReplaceQdisc replaces the root qdisc with a taprio schedule.
	ActionReplaceQdisc
	// ActionAddVLAN creates the VLAN sub-interface with an egress PCP map.
	ActionAddVLAN
)

// Action is a single declarative, reversible kernel-state change.
type Action struct {
	Kind  ActionKind
	Iface string

	// ActionSetFeature
	Feature string
	Enable  bool

	// ActionReplaceQdisc
	Schedule     scheduler.Schedule
	PriorityToTC [mapping.NumPriorities]int
	TCToQueue    map[int]int

	// ActionAddVLAN
	VID           uint16
	PriorityToPCP [mapping.NumPriorities]uint8
}

// VLANName is the name of the VLAN sub-interface this Action would create.
func (a Action) VLANName() string {
	return vlanName(a.Iface, a.VID)
}

func vlanName(iface string, vid uint16) string {
	return iface + "." + strconv.Itoa(int(vid))
}

// Effector applies and, on failure, rolls back a list of Actions.
type Effector interface {
	Apply(ctx context.Context, actions []Action) error
}

// undoFunc reverses one already-applied Action using the snapshot captured
// at apply time.
type undoFunc func() error

// applyEach runs apply for each action in order, rolling back the already
// applied prefix (in reverse) on the first failure. apply is supplied by
// the concrete Effector (Linux or simulated) and returns an undo closure
// that must restore exactly the state snapshotted before the change.
func applyEach(actions []Action, apply func(Action) (undoFunc, error)) error {
	applied := make([]undoFunc, 0, len(actions))

	for _, a := range actions {
		undo, err := apply(a)
		if err != nil {
			if rerr := rollback(applied); rerr != nil {
				return errors.Wrap(rerr, errors.KindEffectorFatal,
					"action failed and rollback of prior actions also failed; system is in an inconsistent state")
			}
			return errors.Wrap(err, errors.KindEffectorTransient, "effector action failed, rolled back")
		}
		applied = append(applied, undo)
	}
	return nil
}

func rollback(applied []undoFunc) error {
	for i := len(applied) - 1; i >= 0; i-- {
		if applied[i] == nil {
			continue
		}
		if err := applied[i](); err != nil {
			return err
		}
	}
	return nil
}
