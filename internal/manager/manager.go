// Copyright (C) 2026 The detd Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package manager implements spec §4.2/§2 component 6: the top-level
// registry of Interface Contexts, keyed by interface name. It resolves a
// Device Profile on first use of an interface and hands every admission
// request off to that interface's own Context, which serializes it.
package manager

import (
	"context"
	"sync"

	"github.com/avnu-tsn/detd/internal/device"
	"github.com/avnu-tsn/detd/internal/effector"
	"github.com/avnu-tsn/detd/internal/ifcontext"
	"github.com/avnu-tsn/detd/internal/stream"
)

// Manager owns one Interface Context per physical interface in use.
type Manager struct {
	mu       sync.Mutex
	contexts map[string]*ifcontext.Context

	registry *device.Registry
	effector effector.Effector
}

// New creates a Manager that resolves Device Profiles from registry and
// applies kernel changes through eff.
func New(registry *device.Registry, eff effector.Effector) *Manager {
	return &Manager{
		contexts: make(map[string]*ifcontext.Context),
		registry: registry,
		effector: eff,
	}
}

// AddTalker resolves (or creates) the Interface Context for iface and
// runs the admission pipeline against it, returning the VLAN
// sub-interface name and socket priority the client should use.
func (m *Manager) AddTalker(ctx context.Context, iface string, cfg stream.Config, spec stream.Spec, txMaxNS uint64) (string, int, error) {
	ic, err := m.contextFor(iface)
	if err != nil {
		return "", 0, err
	}
	return ic.AddTalker(ctx, cfg, spec, txMaxNS)
}

func (m *Manager) contextFor(iface string) (*ifcontext.Context, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ic, ok := m.contexts[iface]; ok {
		return ic, nil
	}

	profile, err := m.registry.Resolve(iface)
	if err != nil {
		return nil, err
	}

	ic := ifcontext.New(iface, profile, m.effector)
	m.contexts[iface] = ic
	return ic, nil
}

// Interfaces returns the names of every interface with a live Context,
// for diagnostics and metrics.
func (m *Manager) Interfaces() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.contexts))
	for name := range m.contexts {
		out = append(out, name)
	}
	return out
}
