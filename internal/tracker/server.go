package tracker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/AbdullahhussainYasim/p2p-os-term-project/pkg/wire"
)

// Server is the tracker's TCP front end: one request, one response per
// accepted connection, plus the janitor that evicts stale peers.
type Server struct {
	registry        *Registry
	log             *zap.Logger
	janitorInterval time.Duration
	maxFrame        uint32

	ln net.Listener
}

func NewServer(registry *Registry, janitorInterval time.Duration, maxFrame uint32, log *zap.Logger) *Server {
	return &Server{
		registry:        registry,
		log:             log,
		janitorInterval: janitorInterval,
		maxFrame:        maxFrame,
	}
}

// ListenAndServe binds addr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind tracker listener: %w", err)
	}
	s.ln = ln
	s.log.Info("tracker listening", zap.String("addr", ln.Addr().String()))

	go s.janitor(ctx)
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.log.Warn("accept failed", zap.Error(err))
			continue
		}
		go s.handle(conn)
	}
}

// Addr returns the bound listener address.
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

func (s *Server) janitor(ctx context.Context) {
	ticker := time.NewTicker(s.janitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.registry.Evict(); n > 0 {
				s.log.Debug("janitor pass", zap.Int("evicted", n))
			}
		}
	}
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(30 * time.Second))

	raw, err := wire.ReadFrame(conn, s.maxFrame)
	if err != nil {
		if !errors.Is(err, wire.ErrTruncated) {
			s.log.Debug("bad frame", zap.Error(err))
		}
		return
	}
	resp := s.dispatch(raw)
	if err := wire.WriteFrame(conn, resp); err != nil {
		s.log.Debug("failed to write response", zap.Error(err))
	}
}

func (s *Server) dispatch(raw []byte) any {
	msgType, err := wire.PeekType(raw)
	if err != nil {
		return wire.ToResponse(wire.Errorf(wire.CodeBadRequest, "%v", err))
	}
	resp, err := s.route(msgType, raw)
	if err != nil {
		return wire.ToResponse(err)
	}
	return resp
}

func (s *Server) route(msgType string, raw []byte) (any, error) {
	switch msgType {
	case wire.TypeRegister:
		req, err := wire.Decode[wire.RegisterRequest](raw)
		if err != nil {
			return nil, wire.Errorf(wire.CodeBadRequest, "%v", err)
		}
		if err := s.registry.Register(req.Identity, req.Addr, req.Load); err != nil {
			return nil, err
		}
		return wire.NewAck(wire.TypeRegister), nil

	case wire.TypeUnregister:
		req, err := wire.Decode[wire.UnregisterRequest](raw)
		if err != nil {
			return nil, wire.Errorf(wire.CodeBadRequest, "%v", err)
		}
		if err := s.registry.Unregister(req.Identity); err != nil {
			return nil, err
		}
		return wire.NewAck(wire.TypeUnregister), nil

	case wire.TypeUpdateLoad:
		req, err := wire.Decode[wire.UpdateLoadRequest](raw)
		if err != nil {
			return nil, wire.Errorf(wire.CodeBadRequest, "%v", err)
		}
		if err := s.registry.UpdateLoad(req.Identity, req.Load); err != nil {
			return nil, err
		}
		return wire.NewAck(wire.TypeUpdateLoad), nil

	case wire.TypeRequestBestPeer:
		req, err := wire.Decode[wire.BestPeerRequest](raw)
		if err != nil {
			return nil, wire.Errorf(wire.CodeBadRequest, "%v", err)
		}
		rec, found := s.registry.BestPeer(req.Identity, req.ExcludeSelf)
		resp := wire.BestPeerResponse{Type: wire.TypeRequestBestPeer, Found: found}
		if found {
			resp.Identity = rec.Identity
			resp.Addr = rec.Addr
			resp.Load = rec.Load
		}
		return resp, nil

	case wire.TypeRegisterFile:
		req, err := wire.Decode[wire.FileAdvertRequest](raw)
		if err != nil {
			return nil, wire.Errorf(wire.CodeBadRequest, "%v", err)
		}
		if err := s.registry.RegisterFile(req.Identity, req.Filename); err != nil {
			return nil, err
		}
		return wire.NewAck(wire.TypeRegisterFile), nil

	case wire.TypeUnregisterFile:
		req, err := wire.Decode[wire.FileAdvertRequest](raw)
		if err != nil {
			return nil, wire.Errorf(wire.CodeBadRequest, "%v", err)
		}
		if err := s.registry.UnregisterFile(req.Identity, req.Filename); err != nil {
			return nil, err
		}
		return wire.NewAck(wire.TypeUnregisterFile), nil

	case wire.TypeFindFile:
		req, err := wire.Decode[wire.FindFileRequest](raw)
		if err != nil {
			return nil, wire.Errorf(wire.CodeBadRequest, "%v", err)
		}
		addrs := s.registry.FindFile(req.Filename)
		return wire.FindFileResponse{
			Type:      wire.TypeFindFile,
			Filename:  req.Filename,
			Found:     len(addrs) > 0,
			Addresses: addrs,
		}, nil

	case wire.TypeRegisterOwnedFile:
		req, err := wire.Decode[wire.RegisterOwnedFileRequest](raw)
		if err != nil {
			return nil, wire.Errorf(wire.CodeBadRequest, "%v", err)
		}
		if err := s.registry.RegisterOwnedFile(req.Filename, req.OwnerID, req.OwnerAddr,
			req.StorageIdentity, req.StorageAddr); err != nil {
			return nil, err
		}
		return wire.NewAck(wire.TypeRegisterOwnedFile), nil

	case wire.TypeFindOwnedFile:
		req, err := wire.Decode[wire.OwnedFileLookupRequest](raw)
		if err != nil {
			return nil, wire.Errorf(wire.CodeBadRequest, "%v", err)
		}
		addrs, err := s.registry.FindOwnedFile(req.Filename, req.RequesterID)
		if err != nil {
			return nil, err
		}
		return wire.OwnedFileLookupResponse{
			Type:     wire.TypeFindOwnedFile,
			Filename: req.Filename,
			Found:    true,
			Storage:  addrs,
		}, nil

	case wire.TypeDeleteOwnedFile:
		req, err := wire.Decode[wire.OwnedFileLookupRequest](raw)
		if err != nil {
			return nil, wire.Errorf(wire.CodeBadRequest, "%v", err)
		}
		if err := s.registry.DeleteOwnedFile(req.Filename, req.RequesterID); err != nil {
			return nil, err
		}
		return wire.NewAck(wire.TypeDeleteOwnedFile), nil

	case wire.TypeTrackerStatus, wire.TypeStatus:
		peers, ownedCount := s.registry.Snapshot()
		return wire.TrackerStatusResponse{
			Type:       wire.TypeTrackerStatus,
			PeerCount:  len(peers),
			Peers:      peers,
			OwnedFiles: ownedCount,
		}, nil
	}
	return nil, wire.Errorf(wire.CodeBadRequest, "unknown message type %q", msgType)
}
