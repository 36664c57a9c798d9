// Copyright (C) 2026 The detd Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package ifcontext implements spec §4.3: the Interface Context, which
// owns all admitted state for one physical interface and serializes
// admission through a single mutex (spec's per-interface mutex model,
// component 6 in §2). It composes the Mapping and Scheduler pure state
// machines with the System Effector, following the commit-after-apply
// shape of the teacher's qos manager: compute tentative state, render
// kernel actions, apply them, and only then fold the tentative state
// into the live Context.
package ifcontext

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/avnu-tsn/detd/internal/device"
	"github.com/avnu-tsn/detd/internal/effector"
	"github.com/avnu-tsn/detd/internal/errors"
	"github.com/avnu-tsn/detd/internal/mapping"
	"github.com/avnu-tsn/detd/internal/scheduler"
	"github.com/avnu-tsn/detd/internal/stream"
)

// AdmissionRecord is the durable (in-process) record of one successful
// add_talker call, kept for diagnostics and for the future stream-removal
// path (spec §9 Design Notes (c)).
type AdmissionRecord struct {
	ID         uuid.UUID
	Stream     stream.Config
	Spec       stream.Spec
	Assignment mapping.Assignment
	AdmittedAt time.Time
}

// Clock supplies the current time. The production path uses wall-clock
// time (spec §9 Design Notes (b): no PTP dependency is introduced); tests
// inject a fixed clock.
type Clock func() time.Time

// Context holds the live Mapping and Scheduler state for one interface
// and serializes admission requests against it.
type Context struct {
	mu sync.Mutex

	iface    string
	profile  device.Profile
	effector effector.Effector
	clock    Clock

	scheduler *scheduler.State
	mapping   *mapping.State

	admitted map[uuid.UUID]AdmissionRecord
	degraded error // non-nil once an effector rollback itself fails
}

// New creates an Interface Context bound to one physical interface and
// its resolved Device Profile.
func New(iface string, profile device.Profile, eff effector.Effector) *Context {
	return &Context{
		iface:     iface,
		profile:   profile,
		effector:  eff,
		clock:     time.Now,
		scheduler: scheduler.New(),
		mapping:   mapping.New(profile.Queues),
		admitted:  make(map[uuid.UUID]AdmissionRecord),
	}
}

// WithClock overrides the time source, for deterministic tests.
func (c *Context) WithClock(clock Clock) *Context {
	c.clock = clock
	return c
}

// Degraded reports whether this interface has been quarantined after an
// effector rollback itself failed (spec §7 KindEffectorFatal).
func (c *Context) Degraded() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.degraded
}

// AddTalker runs the full admission pipeline for one new talker stream:
// validate, tentatively allocate, render kernel actions, apply, and
// commit or roll back. On success it returns the VLAN sub-interface name
// and socket priority the client should use.
func (c *Context) AddTalker(ctx context.Context, cfg stream.Config, spec stream.Spec, txMaxNS uint64) (string, int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.degraded != nil {
		return "", 0, errors.Wrap(c.degraded, errors.KindEffectorFatal, "interface is degraded after a prior rollback failure")
	}

	if err := stream.Validate(cfg, spec, c.profile.LinkBps, txMaxNS); err != nil {
		return "", 0, errors.Wrap(err, errors.KindValidation, "talker request failed validation")
	}
	if spec.IntervalNS < uint64(c.profile.MinInterval) || (c.profile.MaxInterval != 0 && spec.IntervalNS > uint64(c.profile.MaxInterval)) {
		return "", 0, errors.Errorf(errors.KindValidation, "interval %dns outside device-supported range [%s,%s]",
			spec.IntervalNS, c.profile.MinInterval, c.profile.MaxInterval)
	}

	nextMapping, assignment, err := c.mapping.AssignAndMap(cfg)
	if err != nil {
		return "", 0, err
	}

	duration := spec.DurationNS(c.profile.LinkBps)
	nextScheduler, sched, err := c.scheduler.Add(scheduler.Entry{
		Stream:     cfg,
		Spec:       spec,
		TC:         assignment.TC,
		DurationNS: duration,
	}, c.clock())
	if err != nil {
		return "", 0, err
	}

	actions := c.renderActions(nextMapping, sched, cfg)
	if err := c.effector.Apply(ctx, actions); err != nil {
		if errors.GetKind(err) == errors.KindEffectorFatal {
			c.degraded = err
		}
		return "", 0, err
	}

	c.mapping = nextMapping
	c.scheduler = nextScheduler

	id := uuid.New()
	c.admitted[id] = AdmissionRecord{
		ID:         id,
		Stream:     cfg,
		Spec:       spec,
		Assignment: assignment,
		AdmittedAt: c.clock(),
	}

	return vlanIfaceName(c.iface, cfg.VID), assignment.Priority, nil
}

func (c *Context) renderActions(m *mapping.State, sched scheduler.Schedule, cfg stream.Config) []effector.Action {
	actions := make([]effector.Action, 0, 3)

	if c.profile.HasFeature("eee") {
		actions = append(actions, effector.Action{
			Kind:    effector.ActionSetFeature,
			Iface:   c.iface,
			Feature: "eee",
			Enable:  false,
		})
	}

	actions = append(actions, effector.Action{
		Kind:         effector.ActionReplaceQdisc,
		Iface:        c.iface,
		Schedule:     sched,
		PriorityToTC: m.PriorityToTC(),
		TCToQueue:    m.TCToQueue(),
	})

	actions = append(actions, effector.Action{
		Kind:          effector.ActionAddVLAN,
		Iface:         c.iface,
		VID:           cfg.VID,
		PriorityToPCP: m.PriorityToPCP(),
	})

	return actions
}

func vlanIfaceName(iface string, vid uint16) string {
	return fmt.Sprintf("%s.%d", iface, vid)
}

// Admitted returns a snapshot of the currently admitted streams, for
// diagnostics and metrics.
func (c *Context) Admitted() []AdmissionRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]AdmissionRecord, 0, len(c.admitted))
	for _, r := range c.admitted {
		out = append(out, r)
	}
	return out
}
