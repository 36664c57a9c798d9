// Copyright (C) 2026 The detd Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build !linux

package main

import (
	"github.com/avnu-tsn/detd/internal/device"
	"github.com/avnu-tsn/detd/internal/effector"
)

// newEffector only has a simulated backend outside Linux: taprio, VLAN
// netlink and ethtool EEE control are Linux-only facilities.
func newEffector(overrides map[string]string) (effector.Effector, device.DriverResolver, error) {
	return effector.NewSimEffector(), device.StaticResolver(overrides), nil
}
