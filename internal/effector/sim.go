// Copyright (C) 2026 The detd Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package effector

import (
	"context"
	"fmt"
	"sync"
)

// SimEffector is an in-memory Effector used in tests and whenever
// DETD_TESTENV is not set to "TARGET" (spec §6). It tracks the kernel
// state a real effector would have produced, so test assertions can
// inspect post-admission and post-rollback state directly.
type SimEffector struct {
	mu sync.Mutex

	features map[string]map[string]bool // iface -> feature -> enabled
	qdisc    map[string]qdiscState      // iface -> current taprio config
	vlans    map[string]vlanState       // "iface.vid" -> config

	// FailAction, if non-negative, makes the action at that index fail
	// after the prefix before it has "applied", in every Apply call until
	// it is set back to -1.
	FailAction int
	// FailUndo, if true, makes every undo run during the next Apply call
	// fail, simulating the fatal "undo itself fails" case from spec §7. It
	// is cleared when that Apply call returns, whether or not it rolled
	// back.
	FailUndo bool
}

type qdiscState struct {
	present      bool
	priorityToTC [16]int
	tcToQueue    map[int]int
	cycleNS      uint64
}

type vlanState struct {
	present bool
	pcpMap  [16]uint8
}

// NewSimEffector returns an empty simulated effector.
func NewSimEffector() *SimEffector {
	return &SimEffector{
		features:   make(map[string]map[string]bool),
		qdisc:      make(map[string]qdiscState),
		vlans:      make(map[string]vlanState),
		FailAction: -1,
	}
}

// Apply implements Effector.
func (e *SimEffector) Apply(_ context.Context, actions []Action) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx := 0
	err := applyEach(actions, func(a Action) (undoFunc, error) {
		defer func() { idx++ }()
		if idx == e.FailAction {
			return nil, fmt.Errorf("simulated failure on action %d (%v)", idx, a.Kind)
		}
		return e.applyOne(a)
	})
	if e.FailUndo {
		e.FailUndo = false
	}
	return err
}

func (e *SimEffector) applyOne(a Action) (undoFunc, error) {
	switch a.Kind {
	case ActionSetFeature:
		prior := e.featureState(a.Iface, a.Feature)
		e.setFeature(a.Iface, a.Feature, a.Enable)
		return e.maybeFailingUndo(func() error {
			e.setFeature(a.Iface, a.Feature, prior)
			return nil
		}), nil

	case ActionReplaceQdisc:
		prior, had := e.qdisc[a.Iface]
		e.qdisc[a.Iface] = qdiscState{
			present:      true,
			priorityToTC: a.PriorityToTC,
			tcToQueue:    a.TCToQueue,
			cycleNS:      a.Schedule.CycleNS,
		}
		return e.maybeFailingUndo(func() error {
			if had {
				e.qdisc[a.Iface] = prior
			} else {
				delete(e.qdisc, a.Iface)
			}
			return nil
		}), nil

	case ActionAddVLAN:
		name := a.VLANName()
		prior, had := e.vlans[name]
		e.vlans[name] = vlanState{present: true, pcpMap: a.PriorityToPCP}
		return e.maybeFailingUndo(func() error {
			if had {
				e.vlans[name] = prior
			} else {
				delete(e.vlans, name)
			}
			return nil
		}), nil
	}
	return nil, fmt.Errorf("unknown action kind %v", a.Kind)
}

func (e *SimEffector) maybeFailingUndo(undo func() error) undoFunc {
	return func() error {
		if e.FailUndo {
			return fmt.Errorf("simulated undo failure")
		}
		return undo()
	}
}

func (e *SimEffector) featureState(iface, feature string) bool {
	m, ok := e.features[iface]
	if !ok {
		return false
	}
	return m[feature]
}

func (e *SimEffector) setFeature(iface, feature string, enabled bool) {
	m, ok := e.features[iface]
	if !ok {
		m = make(map[string]bool)
		e.features[iface] = m
	}
	m[feature] = enabled
}

// QdiscPresent reports whether a taprio qdisc is currently recorded for
// iface, for test assertions.
func (e *SimEffector) QdiscPresent(iface string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.qdisc[iface].present
}

// VLANPresent reports whether the VLAN sub-interface "iface.vid" is
// currently recorded, for test assertions.
func (e *SimEffector) VLANPresent(iface string, vid uint16) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.vlans[vlanName(iface, vid)].present
}

// FeatureEnabled reports the currently recorded state of a feature, for
// test assertions.
func (e *SimEffector) FeatureEnabled(iface, feature string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.featureState(iface, feature)
}
