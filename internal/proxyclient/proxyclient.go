// Copyright (C) 2026 The detd Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package proxyclient implements spec §4.7: the client-side mirror of
// the Service. It is the library same-host processes link against to
// ask detd to admit a talker stream: connect, write one framed request,
// read one framed response.
package proxyclient

import (
	"context"
	"io"
	"net"

	"github.com/avnu-tsn/detd/internal/errors"
	"github.com/avnu-tsn/detd/internal/netutil"
	"github.com/avnu-tsn/detd/internal/wire"
)

// Request describes the talker stream a caller wants admitted. DestMAC is
// a standard colon-separated MAC string ("aa:bb:cc:dd:ee:ff"); the client
// parses it to wire bytes, so callers never deal with the byte form.
type Request struct {
	Interface   string
	PeriodNS    uint64
	SizeBytes   uint32
	DestMAC     string
	VID         uint16
	PCP         uint8
	TxMinNS     uint64
	TxMaxNS     uint64
	SetupSocket bool
}

// Client connects to a detd Service socket.
type Client struct {
	socketPath string
}

// New returns a Client that dials socketPath on every call.
func New(socketPath string) *Client {
	return &Client{socketPath: socketPath}
}

// AddTalker sends one admission request and returns the VLAN
// sub-interface name and socket priority to use, or an error describing
// why the request was rejected.
func (c *Client) AddTalker(ctx context.Context, req Request) (vlanIface string, socketPriority int, err error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return "", 0, errors.Wrap(err, errors.KindProtocol, "connecting to detd service socket")
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	destMAC, err := netutil.ParseMAC(req.DestMAC)
	if err != nil {
		return "", 0, errors.Wrap(err, errors.KindValidation, "parsing destination MAC")
	}

	wireReq := &wire.StreamQosRequest{
		Interface:   req.Interface,
		PeriodNS:    req.PeriodNS,
		SizeBytes:   req.SizeBytes,
		DestMAC:     destMAC,
		VID:         uint32(req.VID),
		PCP:         uint32(req.PCP),
		TxMinNS:     req.TxMinNS,
		TxMaxNS:     req.TxMaxNS,
		SetupSocket: req.SetupSocket,
		Talker:      true,
	}

	payload, err := wire.MarshalMessage(wire.Message{Request: wireReq})
	if err != nil {
		return "", 0, err
	}
	framed, err := wire.EncodeFrame(payload)
	if err != nil {
		return "", 0, err
	}
	if _, err := conn.Write(framed); err != nil {
		return "", 0, errors.Wrap(err, errors.KindProtocol, "writing admission request")
	}

	var prefix [4]byte
	if _, err := io.ReadFull(conn, prefix[:]); err != nil {
		return "", 0, errors.Wrap(err, errors.KindProtocol, "reading response frame length")
	}
	n, err := wire.DecodeFrameLength(prefix[:])
	if err != nil {
		return "", 0, errors.Wrap(err, errors.KindProtocol, "invalid response frame")
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(conn, body); err != nil {
		return "", 0, errors.Wrap(err, errors.KindProtocol, "reading response body")
	}

	msg, err := wire.UnmarshalMessage(body)
	if err != nil {
		return "", 0, err
	}
	if msg.Response == nil {
		return "", 0, errors.New(errors.KindProtocol, "service returned a request instead of a response")
	}

	resp := msg.Response
	if !resp.OK {
		return "", 0, errors.Errorf(kindFromString(resp.ErrorKind), "admission rejected: %s", resp.ErrorMessage)
	}
	return resp.VLANInterface, int(resp.SocketPriority), nil
}

func kindFromString(s string) errors.Kind {
	switch s {
	case "validation":
		return errors.KindValidation
	case "unknown_device":
		return errors.KindUnknownDevice
	case "no_capacity":
		return errors.KindNoCapacity
	case "schedule_conflict":
		return errors.KindScheduleConflict
	case "effector_transient":
		return errors.KindEffectorTransient
	case "effector_fatal":
		return errors.KindEffectorFatal
	case "protocol":
		return errors.KindProtocol
	case "internal":
		return errors.KindInternal
	default:
		return errors.KindUnknown
	}
}
