// Copyright (C) 2026 The detd Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package service implements spec §4.1/§5: the Unix-domain-socket Service
// that accepts connections from same-host clients, reads one framed
// StreamQosRequest per connection, dispatches it to the Manager through a
// bounded worker pool, and writes back one framed StreamQosResponse.
package service

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"os/user"
	"strconv"
	"sync"

	deterrors "github.com/avnu-tsn/detd/internal/errors"
	"github.com/avnu-tsn/detd/internal/logging"
	"github.com/avnu-tsn/detd/internal/manager"
	"github.com/avnu-tsn/detd/internal/metrics"
	"github.com/avnu-tsn/detd/internal/stream"
	"github.com/avnu-tsn/detd/internal/wire"
)

// Config controls the listening socket and worker pool.
type Config struct {
	SocketPath  string
	SocketGroup string
	Workers     int
}

// Service owns the listening socket and dispatches requests to mgr
// through a fixed-size worker pool, bounding how many admissions run
// concurrently regardless of how many clients connect at once.
type Service struct {
	cfg     Config
	mgr     *manager.Manager
	log     *logging.Logger
	metrics *metrics.Metrics

	listener net.Listener
	conns    chan net.Conn
	wg       sync.WaitGroup
}

// New creates a Service bound to cfg.SocketPath, not yet listening.
func New(cfg Config, mgr *manager.Manager, log *logging.Logger, m *metrics.Metrics) *Service {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Service{
		cfg:     cfg,
		mgr:     mgr,
		log:     log,
		metrics: m,
		conns:   make(chan net.Conn),
	}
}

// Serve binds the socket, applies its permissions, starts the worker
// pool, and accepts connections until ctx is canceled.
func (s *Service) Serve(ctx context.Context) error {
	_ = os.Remove(s.cfg.SocketPath)

	l, err := net.Listen("unix", s.cfg.SocketPath)
	if err != nil {
		return err
	}
	s.listener = l

	if err := os.Chmod(s.cfg.SocketPath, 0o660); err != nil {
		s.log.Warn("could not set socket permissions", "path", s.cfg.SocketPath, "err", err)
	}
	if s.cfg.SocketGroup != "" {
		if err := chownToGroup(s.cfg.SocketPath, s.cfg.SocketGroup); err != nil {
			s.log.Warn("could not set socket group", "path", s.cfg.SocketPath, "group", s.cfg.SocketGroup, "err", err)
		}
	}

	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx)
	}

	go func() {
		<-ctx.Done()
		_ = l.Close()
	}()

	for {
		conn, err := l.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				close(s.conns)
				s.wg.Wait()
				return nil
			default:
				return err
			}
		}
		s.conns <- conn
	}
}

func (s *Service) worker(ctx context.Context) {
	defer s.wg.Done()
	for conn := range s.conns {
		s.handle(ctx, conn)
	}
}

func (s *Service) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	req, err := readRequest(conn)
	if err != nil {
		s.log.Debug("dropping connection with malformed frame", "err", err)
		return
	}

	resp := s.dispatch(ctx, req)

	if err := writeResponse(conn, resp); err != nil {
		s.log.Warn("failed to write response", "err", err)
	}
}

func (s *Service) dispatch(ctx context.Context, req *wire.StreamQosRequest) *wire.StreamQosResponse {
	cfg := stream.Config{VID: uint16(req.VID), PCP: uint8(req.PCP), TxOffsetNS: req.TxMinNS}
	copy(cfg.DestMAC[:], req.DestMAC)
	spec := stream.Spec{IntervalNS: req.PeriodNS, SizeBytes: req.SizeBytes}

	vlanIface, prio, err := s.mgr.AddTalker(ctx, req.Interface, cfg, spec, req.TxMaxNS)
	if err != nil {
		var derr *deterrors.Error
		kind := deterrors.KindInternal
		if errors.As(err, &derr) {
			kind = derr.Kind
		}
		s.metrics.RecordAdmission(req.Interface, kind.String())
		if kind == deterrors.KindEffectorTransient || kind == deterrors.KindEffectorFatal {
			s.metrics.RecordRollback()
		}
		s.log.Info("admission rejected", "interface", req.Interface, "kind", kind.String(), "err", err)
		return &wire.StreamQosResponse{OK: false, ErrorKind: kind.String(), ErrorMessage: err.Error()}
	}

	s.metrics.RecordAdmission(req.Interface, "ok")
	s.log.Info("admission granted", "interface", req.Interface, "vlan_interface", vlanIface, "socket_priority", prio)
	return &wire.StreamQosResponse{OK: true, VLANInterface: vlanIface, SocketPriority: uint32(prio)}
}

func chownToGroup(path, group string) error {
	g, err := user.LookupGroup(group)
	if err != nil {
		return err
	}
	gid, err := strconv.Atoi(g.Gid)
	if err != nil {
		return err
	}
	return os.Chown(path, -1, gid)
}

func readRequest(r io.Reader) (*wire.StreamQosRequest, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, err
	}
	n, err := wire.DecodeFrameLength(prefix[:])
	if err != nil {
		return nil, err
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}

	msg, err := wire.UnmarshalMessage(payload)
	if err != nil {
		return nil, err
	}
	if msg.Request == nil {
		return nil, deterrors.New(deterrors.KindProtocol, "expected a request message")
	}
	return msg.Request, nil
}

func writeResponse(w io.Writer, resp *wire.StreamQosResponse) error {
	payload, err := wire.MarshalMessage(wire.Message{Response: resp})
	if err != nil {
		return err
	}
	framed, err := wire.EncodeFrame(payload)
	if err != nil {
		return err
	}
	_, err = w.Write(framed)
	return err
}
