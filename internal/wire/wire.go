// Copyright (C) 2026 The detd Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package wire implements the length-prefixed protobuf framing from
// spec §6. Rather than generated protoc-gen-go bindings, messages are
// encoded and decoded directly against the low-level
// google.golang.org/protobuf/encoding/protowire varint/length-delimited
// primitives; api/detd.proto documents the equivalent .proto schema for
// any client that does run codegen.
package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/avnu-tsn/detd/internal/errors"
)

// Field numbers for StreamQosRequest, matching api/detd.proto.
const (
	fieldReqInterface   = 1
	fieldReqPeriodNS    = 2
	fieldReqSizeBytes   = 3
	fieldReqDestMAC     = 4
	fieldReqVID         = 5
	fieldReqPCP         = 6
	fieldReqTxMinNS     = 7
	fieldReqTxMaxNS     = 8
	fieldReqSetupSocket = 9
	fieldReqBaseTimeNS  = 10
	fieldReqTalker      = 11
	fieldReqMAddress    = 12
)

// Field numbers for StreamQosResponse.
const (
	fieldRespOK             = 1
	fieldRespVLANIface      = 2
	fieldRespSocketPriority = 3
	fieldRespErrorKind      = 4
	fieldRespErrorMessage   = 5
)

// Field numbers for the outer DetdMessage envelope.
const (
	fieldMsgRequest  = 1
	fieldMsgResponse = 2
)

// StreamQosRequest is the admission request sent by a client.
type StreamQosRequest struct {
	Interface   string
	PeriodNS    uint64
	SizeBytes   uint32
	DestMAC     []byte
	VID         uint32
	PCP         uint32
	TxMinNS     uint64
	TxMaxNS     uint64
	SetupSocket bool
	BaseTimeNS  uint64
	Talker      bool
	MAddress    []byte
}

// StreamQosResponse is the admission result returned to the client.
type StreamQosResponse struct {
	OK             bool
	VLANInterface  string
	SocketPriority uint32
	ErrorKind      string
	ErrorMessage   string
}

// Message is the single envelope exchanged over the socket: exactly one
// of Request or Response is set.
type Message struct {
	Request  *StreamQosRequest
	Response *StreamQosResponse
}

// MarshalMessage encodes m as a DetdMessage.
func MarshalMessage(m Message) ([]byte, error) {
	var buf []byte
	switch {
	case m.Request != nil:
		buf = protowire.AppendTag(buf, fieldMsgRequest, protowire.BytesType)
		buf = protowire.AppendBytes(buf, marshalRequest(m.Request))
	case m.Response != nil:
		buf = protowire.AppendTag(buf, fieldMsgResponse, protowire.BytesType)
		buf = protowire.AppendBytes(buf, marshalResponse(m.Response))
	default:
		return nil, errors.New(errors.KindProtocol, "message has neither request nor response set")
	}
	return buf, nil
}

// UnmarshalMessage decodes a DetdMessage.
func UnmarshalMessage(b []byte) (Message, error) {
	var msg Message

	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Message{}, errors.Wrap(protowire.ParseError(n), errors.KindProtocol, "invalid tag")
		}
		b = b[n:]

		if typ != protowire.BytesType {
			m := protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return Message{}, errors.Wrap(protowire.ParseError(m), errors.KindProtocol, "invalid field value")
			}
			b = b[m:]
			continue
		}

		payload, m := protowire.ConsumeBytes(b)
		if m < 0 {
			return Message{}, errors.Wrap(protowire.ParseError(m), errors.KindProtocol, "invalid length-delimited field")
		}
		b = b[m:]

		switch num {
		case fieldMsgRequest:
			req, err := unmarshalRequest(payload)
			if err != nil {
				return Message{}, err
			}
			msg.Request = req
		case fieldMsgResponse:
			resp, err := unmarshalResponse(payload)
			if err != nil {
				return Message{}, err
			}
			msg.Response = resp
		}
	}

	if msg.Request == nil && msg.Response == nil {
		return Message{}, errors.New(errors.KindProtocol, "message has neither request nor response set")
	}
	return msg, nil
}

func marshalRequest(r *StreamQosRequest) []byte {
	var b []byte
	b = appendString(b, fieldReqInterface, r.Interface)
	b = appendVarint(b, fieldReqPeriodNS, r.PeriodNS)
	b = appendVarint(b, fieldReqSizeBytes, uint64(r.SizeBytes))
	b = appendBytesField(b, fieldReqDestMAC, r.DestMAC)
	b = appendVarint(b, fieldReqVID, uint64(r.VID))
	b = appendVarint(b, fieldReqPCP, uint64(r.PCP))
	b = appendVarint(b, fieldReqTxMinNS, r.TxMinNS)
	b = appendVarint(b, fieldReqTxMaxNS, r.TxMaxNS)
	b = appendBool(b, fieldReqSetupSocket, r.SetupSocket)
	b = appendVarint(b, fieldReqBaseTimeNS, r.BaseTimeNS)
	b = appendBool(b, fieldReqTalker, r.Talker)
	b = appendBytesField(b, fieldReqMAddress, r.MAddress)
	return b
}

func unmarshalRequest(b []byte) (*StreamQosRequest, error) {
	r := &StreamQosRequest{}
	return r, consumeFields(b, func(num protowire.Number, typ protowire.Type, v []byte, u uint64) error {
		switch num {
		case fieldReqInterface:
			r.Interface = string(v)
		case fieldReqPeriodNS:
			r.PeriodNS = u
		case fieldReqSizeBytes:
			r.SizeBytes = uint32(u)
		case fieldReqDestMAC:
			r.DestMAC = append([]byte(nil), v...)
		case fieldReqVID:
			r.VID = uint32(u)
		case fieldReqPCP:
			r.PCP = uint32(u)
		case fieldReqTxMinNS:
			r.TxMinNS = u
		case fieldReqTxMaxNS:
			r.TxMaxNS = u
		case fieldReqSetupSocket:
			r.SetupSocket = u != 0
		case fieldReqBaseTimeNS:
			r.BaseTimeNS = u
		case fieldReqTalker:
			r.Talker = u != 0
		case fieldReqMAddress:
			r.MAddress = append([]byte(nil), v...)
		}
		return nil
	})
}

func marshalResponse(r *StreamQosResponse) []byte {
	var b []byte
	b = appendBool(b, fieldRespOK, r.OK)
	b = appendString(b, fieldRespVLANIface, r.VLANInterface)
	b = appendVarint(b, fieldRespSocketPriority, uint64(r.SocketPriority))
	b = appendString(b, fieldRespErrorKind, r.ErrorKind)
	b = appendString(b, fieldRespErrorMessage, r.ErrorMessage)
	return b
}

func unmarshalResponse(b []byte) (*StreamQosResponse, error) {
	r := &StreamQosResponse{}
	return r, consumeFields(b, func(num protowire.Number, typ protowire.Type, v []byte, u uint64) error {
		switch num {
		case fieldRespOK:
			r.OK = u != 0
		case fieldRespVLANIface:
			r.VLANInterface = string(v)
		case fieldRespSocketPriority:
			r.SocketPriority = uint32(u)
		case fieldRespErrorKind:
			r.ErrorKind = string(v)
		case fieldRespErrorMessage:
			r.ErrorMessage = string(v)
		}
		return nil
	})
}

// consumeFields walks every top-level field in b, decoding varint and
// length-delimited values and handing both representations to fn so
// callers can pick whichever their field needs.
func consumeFields(b []byte, fn func(num protowire.Number, typ protowire.Type, bytesVal []byte, varintVal uint64) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return errors.Wrap(protowire.ParseError(n), errors.KindProtocol, "invalid tag")
		}
		b = b[n:]

		switch typ {
		case protowire.VarintType:
			val, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return errors.Wrap(protowire.ParseError(m), errors.KindProtocol, "invalid varint field")
			}
			b = b[m:]
			if err := fn(num, typ, nil, val); err != nil {
				return err
			}
		case protowire.BytesType:
			val, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return errors.Wrap(protowire.ParseError(m), errors.KindProtocol, "invalid bytes field")
			}
			b = b[m:]
			if err := fn(num, typ, val, 0); err != nil {
				return err
			}
		default:
			m := protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return errors.Wrap(protowire.ParseError(m), errors.KindProtocol, "invalid field value")
			}
			b = b[m:]
		}
	}
	return nil
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	return appendVarint(b, num, 1)
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, []byte(v))
}

func appendBytesField(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

// MaxFrameBytes is the hard cap on a single framed message (spec §6).
const MaxFrameBytes = 64 * 1024

// EncodeFrame prepends the 4-byte big-endian length prefix used on the
// wire.
func EncodeFrame(payload []byte) ([]byte, error) {
	if len(payload) > MaxFrameBytes {
		return nil, fmt.Errorf("payload of %d bytes exceeds frame limit %d", len(payload), MaxFrameBytes)
	}
	out := make([]byte, 4+len(payload))
	putUint32BE(out, uint32(len(payload)))
	copy(out[4:], payload)
	return out, nil
}

func putUint32BE(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}

func uint32BE(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// DecodeFrameLength reads the 4-byte big-endian length prefix and
// validates it against the frame limit. prefix must be exactly 4 bytes.
func DecodeFrameLength(prefix []byte) (uint32, error) {
	n := uint32BE(prefix)
	if n == 0 {
		return 0, fmt.Errorf("zero-length frame")
	}
	if n > MaxFrameBytes {
		return 0, fmt.Errorf("frame length %d exceeds limit %d", n, MaxFrameBytes)
	}
	return n, nil
}
