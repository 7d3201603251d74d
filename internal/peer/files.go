package peer

import (
	"context"

	"go.uber.org/zap"

	"github.com/AbdullahhussainYasim/p2p-os-term-project/pkg/wire"
)

// handlePutFile stores a blob locally and advertises it to the tracker.
func (p *Peer) handlePutFile(raw []byte) (any, error) {
	req, err := wire.Decode[wire.FileRequest](raw)
	if err != nil {
		return nil, wire.Errorf(wire.CodeBadRequest, "%v", err)
	}
	if req.Filename == "" {
		return nil, wire.Errorf(wire.CodeBadRequest, "filename required for PUT_FILE")
	}
	if len(req.Data) == 0 {
		return nil, wire.Errorf(wire.CodeBadRequest, "data required for PUT_FILE")
	}
	if int64(len(req.Data)) > p.opts.MaxFileSize {
		return nil, wire.Errorf(wire.CodeBadRequest,
			"file too large (max %d bytes)", p.opts.MaxFileSize)
	}
	if err := p.ledger.ReserveStorage(int64(len(req.Data))); err != nil {
		return nil, err
	}
	if err := p.files.Put(req.Filename, req.Data); err != nil {
		p.ledger.ReleaseStorage(int64(len(req.Data)))
		return nil, err
	}
	p.advertiseFile(req.Filename)
	return wire.NewAck(wire.TypePutFile), nil
}

// handleGetFile serves a locally stored blob. Blobs held for other owners
// are refused: those travel only through GET_OWNED_FILE.
func (p *Peer) handleGetFile(raw []byte) (any, error) {
	req, err := wire.Decode[wire.FileRequest](raw)
	if err != nil {
		return nil, wire.Errorf(wire.CodeBadRequest, "%v", err)
	}
	if req.Filename == "" {
		return nil, wire.Errorf(wire.CodeBadRequest, "filename required for GET_FILE")
	}
	if p.owned.Holds(req.Filename) {
		return nil, wire.Errorf(wire.CodeNotOwner,
			"file %s is held for another peer; use GET_OWNED_FILE", req.Filename)
	}
	data, err := p.files.Get(req.Filename)
	if err != nil {
		return nil, err
	}
	return wire.FileResponse{
		Type:     wire.TypeGetFile,
		Filename: req.Filename,
		Found:    true,
		Data:     data,
		Size:     int64(len(data)),
	}, nil
}

func (p *Peer) handleListFile() (any, error) {
	names, err := p.files.List()
	if err != nil {
		return nil, err
	}
	return wire.FileResponse{Type: wire.TypeListFile, Found: true, Files: names}, nil
}

func (p *Peer) handleDeleteFile(raw []byte) (any, error) {
	req, err := wire.Decode[wire.FileRequest](raw)
	if err != nil {
		return nil, wire.Errorf(wire.CodeBadRequest, "%v", err)
	}
	if req.Filename == "" {
		return nil, wire.Errorf(wire.CodeBadRequest, "filename required for DELETE_FILE")
	}
	size, err := p.files.Delete(req.Filename)
	if err != nil {
		return nil, err
	}
	p.ledger.ReleaseStorage(size)
	p.unadvertiseFile(req.Filename)
	return wire.NewAck(wire.TypeDeleteFile), nil
}

// handleGetFileChunk serves a byte range of a local blob for the chunked
// download protocol.
func (p *Peer) handleGetFileChunk(raw []byte) (any, error) {
	req, err := wire.Decode[wire.FileChunkRequest](raw)
	if err != nil {
		return nil, wire.Errorf(wire.CodeBadRequest, "%v", err)
	}
	if req.Filename == "" {
		return nil, wire.Errorf(wire.CodeBadRequest, "filename required for GET_FILE_CHUNK")
	}
	if p.owned.Holds(req.Filename) {
		return nil, wire.Errorf(wire.CodeNotOwner,
			"file %s is held for another peer", req.Filename)
	}
	if req.Length == 0 {
		// A zero-length request is a size probe.
		size, err := p.files.Size(req.Filename)
		if err != nil {
			return nil, err
		}
		return wire.FileResponse{Type: wire.TypeGetFileChunk, Filename: req.Filename, Found: true, Size: size}, nil
	}
	data, err := p.files.ReadRange(req.Filename, req.Offset, req.Length)
	if err != nil {
		return nil, err
	}
	return wire.FileResponse{
		Type:     wire.TypeGetFileChunk,
		Filename: req.Filename,
		Found:    true,
		Data:     data,
		Size:     int64(len(data)),
	}, nil
}

// advertiseFile registers a local file with the tracker; failures are
// logged, not fatal. Files on disk are advertised again at the next start
// (advertiseExistingFiles).
func (p *Peer) advertiseFile(filename string) {
	if p.opts.TrackerAddr == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.opts.SocketTimeout)
	defer cancel()
	err := wire.Call(ctx, p.opts.TrackerAddr, wire.FileAdvertRequest{
		Type:     wire.TypeRegisterFile,
		Identity: p.opts.Identity,
		Filename: filename,
	}, nil)
	if err != nil {
		p.log.Debug("failed to advertise file", zap.String("filename", filename), zap.Error(err))
	}
}

func (p *Peer) unadvertiseFile(filename string) {
	if p.opts.TrackerAddr == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.opts.SocketTimeout)
	defer cancel()
	err := wire.Call(ctx, p.opts.TrackerAddr, wire.FileAdvertRequest{
		Type:     wire.TypeUnregisterFile,
		Identity: p.opts.Identity,
		Filename: filename,
	}, nil)
	if err != nil {
		p.log.Debug("failed to withdraw advert", zap.String("filename", filename), zap.Error(err))
	}
}

// advertiseExistingFiles re-registers files already on disk after a
// restart.
func (p *Peer) advertiseExistingFiles(ctx context.Context) {
	names, err := p.files.List()
	if err != nil {
		p.log.Warn("failed to list local files", zap.Error(err))
		return
	}
	for _, name := range names {
		select {
		case <-ctx.Done():
			return
		default:
		}
		p.advertiseFile(name)
	}
}
