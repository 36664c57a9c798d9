// Copyright (C) 2026 The detd Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build linux

package effector

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strconv"
	"strings"

	"github.com/safchain/ethtool"
	"github.com/vishvananda/netlink"
)

// LinuxEffector applies Actions against the real kernel. VLAN link
// creation and teardown go through vishvananda/netlink; EEE is read and
// set with the `ethtool` CLI, and the safchain/ethtool handle only serves
// driver-name lookups; the taprio qdisc and the VLAN egress PCP map are
// applied with the `tc`/`ip` CLIs, mirroring the documented precedent
// in the teacher's QoS manager for netlink attributes the libraries
// don't serialise (taprio's sched-entry list, and 802.1Q egress-qos-map,
// aren't exposed by either library used here).
type LinuxEffector struct {
	ethtool *ethtool.Ethtool
}

// NewLinuxEffector opens the ethtool ioctl handle used for driver-name
// lookups (see DriverResolver).
func NewLinuxEffector() (*LinuxEffector, error) {
	et, err := ethtool.NewEthtool()
	if err != nil {
		return nil, fmt.Errorf("open ethtool handle: %w", err)
	}
	return &LinuxEffector{ethtool: et}, nil
}

// Close releases the ethtool ioctl handle.
func (e *LinuxEffector) Close() error {
	e.ethtool.Close()
	return nil
}

// DriverResolver returns a device.DriverResolver backed by this
// effector's ethtool handle.
func (e *LinuxEffector) DriverResolver() *EthtoolDriverResolver {
	return NewEthtoolDriverResolver(e.ethtool)
}

// Apply implements Effector.
func (e *LinuxEffector) Apply(ctx context.Context, actions []Action) error {
	return applyEach(actions, func(a Action) (undoFunc, error) {
		switch a.Kind {
		case ActionSetFeature:
			return e.applySetFeature(ctx, a)
		case ActionReplaceQdisc:
			return e.applyReplaceQdisc(ctx, a)
		case ActionAddVLAN:
			return e.applyAddVLAN(ctx, a)
		}
		return nil, fmt.Errorf("unknown action kind %v", a.Kind)
	})
}

func (e *LinuxEffector) applySetFeature(ctx context.Context, a Action) (undoFunc, error) {
	if a.Feature != "eee" {
		return nil, fmt.Errorf("unsupported feature %q", a.Feature)
	}

	prior, err := eeeEnabled(ctx, a.Iface)
	if err != nil {
		return nil, err
	}
	if err := setEEE(ctx, a.Iface, a.Enable); err != nil {
		return nil, err
	}
	return func() error { return setEEE(ctx, a.Iface, prior) }, nil
}

func (e *LinuxEffector) applyReplaceQdisc(ctx context.Context, a Action) (undoFunc, error) {
	priomap := make([]string, mapping16)
	for p := 0; p < mapping16; p++ {
		priomap[p] = strconv.Itoa(a.PriorityToTC[p])
	}

	tcs := sortedTCs(a.TCToQueue)

	args := []string{"qdisc", "replace", "dev", a.Iface, "root", "taprio",
		"num_tc", strconv.Itoa(len(tcs)),
		"map", strings.Join(priomap, " "),
		"queues", strings.Join(queueSpecs(tcs, a.TCToQueue), " "),
		"base-time", strconv.FormatInt(a.Schedule.BaseTime.UnixNano(), 10),
	}
	for _, g := range a.Schedule.Entries {
		args = append(args, "sched-entry", "S", gateMaskHex(g.GateMask), strconv.FormatInt(g.Duration.Nanoseconds(), 10))
	}
	args = append(args, "clockid", "CLOCK_TAI")

	if err := runTC(ctx, args...); err != nil {
		return nil, err
	}
	return func() error {
		return runTC(ctx, "qdisc", "del", "dev", a.Iface, "root")
	}, nil
}

func (e *LinuxEffector) applyAddVLAN(ctx context.Context, a Action) (undoFunc, error) {
	parent, err := netlink.LinkByName(a.Iface)
	if err != nil {
		return nil, fmt.Errorf("lookup parent link %s: %w", a.Iface, err)
	}

	name := a.VLANName()
	vlan := &netlink.Vlan{
		LinkAttrs: netlink.LinkAttrs{
			Name:        name,
			ParentIndex: parent.Attrs().Index,
		},
		VlanId: int(a.VID),
	}
	if err := netlink.LinkAdd(vlan); err != nil {
		return nil, fmt.Errorf("add vlan link %s: %w", name, err)
	}

	if err := setEgressQosMap(ctx, name, a.PriorityToPCP); err != nil {
		_ = netlink.LinkDel(vlan)
		return nil, err
	}

	if err := netlink.LinkSetUp(vlan); err != nil {
		_ = netlink.LinkDel(vlan)
		return nil, fmt.Errorf("set vlan link %s up: %w", name, err)
	}

	return func() error {
		link, err := netlink.LinkByName(name)
		if err != nil {
			return fmt.Errorf("lookup vlan link %s for teardown: %w", name, err)
		}
		return netlink.LinkDel(link)
	}, nil
}

const mapping16 = 16

// sortedTCs returns the traffic classes present in tcToQueue in ascending
// order, so num_tc/map/queues all iterate the same TC sequence.
func sortedTCs(tcToQueue map[int]int) []int {
	tcs := make([]int, 0, len(tcToQueue))
	for tc := range tcToQueue {
		tcs = append(tcs, tc)
	}
	sort.Ints(tcs)
	return tcs
}

// queueSpecs renders the "count@offset" pairs taprio expects: one hardware
// queue per traffic class, at the offset Mapping actually assigned it,
// so a TC placed on a high-index queue by the allocator lands there in the
// qdisc instead of being silently renumbered to its TC's ordinal position.
func queueSpecs(tcs []int, tcToQueue map[int]int) []string {
	out := make([]string, 0, len(tcs))
	for _, tc := range tcs {
		out = append(out, fmt.Sprintf("1@%d", tcToQueue[tc]))
	}
	return out
}

func gateMaskHex(mask uint32) string {
	return fmt.Sprintf("%02x", mask)
}

func runTC(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, "tc", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("tc %s: %w: %s", strings.Join(args, " "), err, stderr.String())
	}
	return nil
}

func setEEE(ctx context.Context, iface string, enable bool) error {
	onoff := "off"
	if enable {
		onoff = "on"
	}
	cmd := exec.CommandContext(ctx, "ethtool", "--set-eee", iface, "eee", onoff)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ethtool --set-eee %s eee %s: %w: %s", iface, onoff, err, stderr.String())
	}
	return nil
}

func eeeEnabled(ctx context.Context, iface string) (bool, error) {
	cmd := exec.CommandContext(ctx, "ethtool", "--show-eee", iface)
	out, err := cmd.Output()
	if err != nil {
		return false, fmt.Errorf("ethtool --show-eee %s: %w", iface, err)
	}
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "EEE status:") {
			return strings.Contains(line, "enabled"), nil
		}
	}
	return false, nil
}

func setEgressQosMap(ctx context.Context, vlanIface string, priorityToPCP [mapping16]uint8) error {
	args := []string{"link", "set", "dev", vlanIface, "type", "vlan"}
	for p := 0; p < mapping16; p++ {
		args = append(args, "egress-qos-map", fmt.Sprintf("%d:%d", p, priorityToPCP[p]))
	}
	cmd := exec.CommandContext(ctx, "ip", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ip %s: %w: %s", strings.Join(args, " "), err, stderr.String())
	}
	return nil
}

// DriverResolver implementation backed by ethtool driver-info queries,
// satisfying device.DriverResolver.
type EthtoolDriverResolver struct {
	ethtool *ethtool.Ethtool
}

func NewEthtoolDriverResolver(et *ethtool.Ethtool) *EthtoolDriverResolver {
	return &EthtoolDriverResolver{ethtool: et}
}

func (r *EthtoolDriverResolver) Driver(iface string) (string, error) {
	name, err := r.ethtool.DriverName(iface)
	if err != nil {
		return "", fmt.Errorf("query driver for %s: %w", iface, err)
	}
	return name, nil
}
