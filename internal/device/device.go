// Copyright (C) 2026 The detd Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package device implements the Device Profile and registry from spec §2
// (component 2) and §4.2: per-interface hardware constants looked up by the
// kernel driver backing the interface, per a flat registry rather than the
// original's driver-class inheritance hierarchy (spec §9 Design Notes).
package device

import (
	"sync"
	"time"

	"github.com/avnu-tsn/detd/internal/errors"
)

// Profile describes the hardware/feature envelope of one NIC driver.
type Profile struct {
	Driver      string
	Queues      int
	LinkBps     uint64
	EEECapable  bool
	Features    []string // feature names to disable on admission, e.g. "eee"
	MinInterval time.Duration
	MaxInterval time.Duration
}

// HasFeature reports whether the profile lists the named feature.
func (p Profile) HasFeature(name string) bool {
	for _, f := range p.Features {
		if f == name {
			return true
		}
	}
	return false
}

// DriverResolver maps an interface name to the driver string backing it
// (e.g. via ethtool driver info). Implementations live in package effector
// to avoid a circular import; tests and simulation use a static map.
type DriverResolver interface {
	Driver(ifaceName string) (string, error)
}

// StaticResolver is a DriverResolver backed by a fixed interface->driver
// map, used in tests and for the "sim" bootstrap profile.
type StaticResolver map[string]string

func (s StaticResolver) Driver(ifaceName string) (string, error) {
	driver, ok := s[ifaceName]
	if !ok {
		return "", errors.Errorf(errors.KindUnknownDevice, "no driver override for interface %q", ifaceName)
	}
	return driver, nil
}

// Registry resolves interface names to Device Profiles, keyed by driver id.
type Registry struct {
	mu       sync.RWMutex
	profiles map[string]Profile
	resolver DriverResolver
}

// NewRegistry builds a registry from a profile list and a driver resolver.
func NewRegistry(profiles []Profile, resolver DriverResolver) *Registry {
	r := &Registry{
		profiles: make(map[string]Profile, len(profiles)),
		resolver: resolver,
	}
	for _, p := range profiles {
		r.profiles[p.Driver] = p
	}
	return r
}

// Register adds or replaces a profile.
func (r *Registry) Register(p Profile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[p.Driver] = p
}

// Resolve looks up the Device Profile for the driver backing ifaceName.
func (r *Registry) Resolve(ifaceName string) (Profile, error) {
	driver, err := r.resolver.Driver(ifaceName)
	if err != nil {
		return Profile{}, errors.Wrapf(err, errors.KindUnknownDevice, "resolving driver for %q", ifaceName)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[driver]
	if !ok {
		return Profile{}, errors.Errorf(errors.KindUnknownDevice, "no device profile registered for driver %q", driver)
	}
	return p, nil
}
