// Copyright (C) 2026 The detd Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build linux

package main

import (
	"os"

	"github.com/avnu-tsn/detd/internal/device"
	"github.com/avnu-tsn/detd/internal/effector"
)

// newEffector picks the real Linux effector when DETD_TESTENV=TARGET
// (spec §6: running against actual hardware) and a simulated one
// otherwise, so the daemon can be exercised on a dev machine without a
// TSN-capable NIC.
func newEffector(overrides map[string]string) (effector.Effector, device.DriverResolver, error) {
	if os.Getenv("DETD_TESTENV") != "TARGET" {
		sim := effector.NewSimEffector()
		return sim, device.StaticResolver(overrides), nil
	}

	linux, err := effector.NewLinuxEffector()
	if err != nil {
		return nil, nil, err
	}
	return linux, linux.DriverResolver(), nil
}
