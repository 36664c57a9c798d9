// Copyright (C) 2026 The detd Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package device

import "testing"

func TestRegistryResolve(t *testing.T) {
	resolver := StaticResolver{"eth0": "igb", "sim0": "sim"}
	reg := NewRegistry([]Profile{
		{Driver: "igb", Queues: 8, LinkBps: 1_000_000_000, EEECapable: true, Features: []string{"eee"}},
		{Driver: "sim", Queues: 8, LinkBps: 1_000_000_000},
	}, resolver)

	p, err := reg.Resolve("eth0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Queues != 8 || !p.HasFeature("eee") {
		t.Errorf("unexpected profile: %+v", p)
	}
}

func TestRegistryResolveUnknownDriver(t *testing.T) {
	resolver := StaticResolver{"eth9": "mystery"}
	reg := NewRegistry(nil, resolver)
	if _, err := reg.Resolve("eth9"); err == nil {
		t.Fatal("expected unknown-device error")
	}
}

func TestRegistryResolveUnknownInterface(t *testing.T) {
	resolver := StaticResolver{}
	reg := NewRegistry([]Profile{{Driver: "igb", Queues: 8}}, resolver)
	if _, err := reg.Resolve("eth0"); err == nil {
		t.Fatal("expected error for interface with no driver mapping")
	}
}
