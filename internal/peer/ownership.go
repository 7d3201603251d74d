package peer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/AbdullahhussainYasim/p2p-os-term-project/internal/storage"
	"github.com/AbdullahhussainYasim/p2p-os-term-project/pkg/fabriccrypto"
	"github.com/AbdullahhussainYasim/p2p-os-term-project/pkg/types"
	"github.com/AbdullahhussainYasim/p2p-os-term-project/pkg/wire"
)

// Storage-peer side of the ownership lifecycle.

// handleUploadToPeer stores ciphertext on behalf of another peer and
// registers the ownership with the tracker.
func (p *Peer) handleUploadToPeer(raw []byte) (any, error) {
	req, err := wire.Decode[wire.UploadToPeerRequest](raw)
	if err != nil {
		return nil, wire.Errorf(wire.CodeBadRequest, "%v", err)
	}
	if req.Filename == "" || len(req.Data) == 0 || req.OwnerID == "" || req.OwnerAddr.IsZero() {
		return nil, wire.Errorf(wire.CodeBadRequest,
			"filename, data, owner_id and owner_address required")
	}
	if int64(len(req.Data)) > p.opts.MaxFileSize {
		return nil, wire.Errorf(wire.CodeBadRequest,
			"file too large (max %d bytes)", p.opts.MaxFileSize)
	}
	if err := p.ledger.ReserveStorage(int64(len(req.Data))); err != nil {
		return nil, err
	}
	ref := storage.OwnerRef{ID: req.OwnerID, Addr: req.OwnerAddr}
	if err := p.owned.Store(ref, req.Filename, req.Data); err != nil {
		p.ledger.ReleaseStorage(int64(len(req.Data)))
		return nil, err
	}
	p.ownerHints.Set(req.Filename, req.OwnerID, 0)

	if err := p.registerOwnedWithTracker(req.Filename, req.OwnerID, req.OwnerAddr); err != nil {
		p.log.Warn("failed to register owned file with tracker",
			zap.String("filename", req.Filename), zap.Error(err))
	}
	p.log.Info("stored owned file",
		zap.String("filename", req.Filename),
		zap.String("owner", req.OwnerID),
		zap.Int("bytes", len(req.Data)))
	return wire.NewAck(wire.TypeUploadToPeer), nil
}

// handleGetOwnedFile returns ciphertext only to its registered owner. The
// claimed owner id is verified against the tracker, with a short-TTL hint
// cache so repeated reads do not round-trip.
func (p *Peer) handleGetOwnedFile(raw []byte) (any, error) {
	req, err := wire.Decode[wire.OwnedFileRequest](raw)
	if err != nil {
		return nil, wire.Errorf(wire.CodeBadRequest, "%v", err)
	}
	if req.Filename == "" || req.OwnerID == "" {
		return nil, wire.Errorf(wire.CodeBadRequest, "filename and owner_id required")
	}
	if err := p.verifyOwner(req.Filename, req.OwnerID); err != nil {
		return nil, err
	}
	data, err := p.owned.Load(req.Filename)
	if err != nil {
		return nil, err
	}
	return wire.FileResponse{
		Type:     wire.TypeGetOwnedFile,
		Filename: req.Filename,
		Found:    true,
		Data:     data,
		Size:     int64(len(data)),
	}, nil
}

// handleDeleteOwnedStored removes stored ciphertext after the same
// ownership verification as a read.
func (p *Peer) handleDeleteOwnedStored(raw []byte) (any, error) {
	req, err := wire.Decode[wire.OwnedFileRequest](raw)
	if err != nil {
		return nil, wire.Errorf(wire.CodeBadRequest, "%v", err)
	}
	if req.Filename == "" || req.OwnerID == "" {
		return nil, wire.Errorf(wire.CodeBadRequest, "filename and owner_id required")
	}
	if err := p.verifyOwner(req.Filename, req.OwnerID); err != nil {
		return nil, err
	}
	size, err := p.owned.Delete(req.Filename)
	if err != nil {
		return nil, err
	}
	p.ledger.ReleaseStorage(size)
	p.ownerHints.Delete(req.Filename)
	return wire.NewAck(wire.TypeDeleteOwnedFile), nil
}

// verifyOwner checks the claimed owner id for a stored file: first against
// the hint cache, then against the tracker's authoritative record. With no
// tracker reachable the local metadata decides.
func (p *Peer) verifyOwner(filename, claimedID string) error {
	if hint, ok := p.ownerHints.Get(filename); ok {
		if hint.(string) == claimedID {
			return nil
		}
		return wire.Errorf(wire.CodeNotOwner,
			"peer %s is not the owner of %s", claimedID, filename)
	}

	if p.opts.TrackerAddr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), p.opts.SocketTimeout)
		defer cancel()
		_, err := p.findOwnedOnTracker(ctx, filename, claimedID)
		if err == nil {
			p.ownerHints.Set(filename, claimedID, 0)
			return nil
		}
		if werr, ok := err.(*wire.Error); ok && (werr.Code == wire.CodeNotOwner || werr.Code == wire.CodeUnknownFile) {
			return wire.Errorf(wire.CodeNotOwner,
				"peer %s is not the owner of %s", claimedID, filename)
		}
		p.log.Warn("tracker unavailable for ownership check; using local metadata",
			zap.String("filename", filename), zap.Error(err))
	}

	ref, ok := p.owned.Owner(filename)
	if !ok {
		return wire.Errorf(wire.CodeUnknownFile, "owned file %s not found", filename)
	}
	// Reconstructed metadata may only carry the id prefix.
	if ref.ID == claimedID || (len(ref.ID) < len(claimedID) && claimedID[:len(ref.ID)] == ref.ID) {
		return nil
	}
	return wire.Errorf(wire.CodeNotOwner, "peer %s is not the owner of %s", claimedID, filename)
}

// Owner side of the ownership lifecycle.

// handleUploadOwnedFile encrypts a client-provided file and places it on
// storage peers chosen by the tracker.
func (p *Peer) handleUploadOwnedFile(raw []byte) (any, error) {
	req, err := wire.Decode[wire.UploadOwnedRequest](raw)
	if err != nil {
		return nil, wire.Errorf(wire.CodeBadRequest, "%v", err)
	}
	if req.Filename == "" || len(req.Data) == 0 {
		return nil, wire.Errorf(wire.CodeBadRequest, "filename and data required")
	}
	replication := req.Replication
	if replication <= 0 {
		replication = 1
	}
	stored, errs := p.UploadOwned(context.Background(), req.Filename, req.Data, replication)
	if len(stored) == 0 {
		return nil, wire.Errorf(wire.CodeUnavailable,
			"failed to place %s on any storage peer: %v", req.Filename, errs)
	}
	return wire.UploadOwnedResponse{
		Type:    wire.TypeUploadOwnedFile,
		Storage: stored,
		Errors:  errs,
	}, nil
}

// UploadOwned encrypts data with the key derived from this peer's identity
// and the filename, then uploads the ciphertext to up to replication
// storage peers.
func (p *Peer) UploadOwned(ctx context.Context, filename string, data []byte, replication int) ([]types.Addr, []string) {
	key := fabriccrypto.DeriveKey(p.opts.Identity, filename)
	ciphertext := fabriccrypto.Transform(data, key)

	var stored []types.Addr
	var errs []string
	tried := make(map[string]struct{})
	for len(stored) < replication {
		target, ok := p.pickStorageTarget(ctx, tried)
		if !ok {
			errs = append(errs, "no further storage peers available")
			break
		}
		tried[target.String()] = struct{}{}

		err := wire.Call(ctx, target.String(), wire.UploadToPeerRequest{
			Type:      wire.TypeUploadToPeer,
			Filename:  filename,
			Data:      ciphertext,
			OwnerID:   p.opts.Identity,
			OwnerAddr: p.opts.Addr,
		}, nil)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", target.String(), err))
			continue
		}
		stored = append(stored, target)
	}

	if len(stored) > 0 {
		p.ownedMu.Lock()
		p.ownedByMe[filename] = stored
		p.ownedMu.Unlock()
	}
	return stored, errs
}

func (p *Peer) pickStorageTarget(ctx context.Context, tried map[string]struct{}) (types.Addr, bool) {
	if p.opts.TrackerAddr == "" {
		return types.Addr{}, false
	}
	var resp wire.BestPeerResponse
	err := wire.Call(ctx, p.opts.TrackerAddr, wire.BestPeerRequest{
		Type:        wire.TypeRequestBestPeer,
		Identity:    p.opts.Identity,
		ExcludeSelf: true,
	}, &resp)
	if err != nil || !resp.Found {
		return types.Addr{}, false
	}
	if _, seen := tried[resp.Addr.String()]; seen {
		return types.Addr{}, false
	}
	return resp.Addr, true
}

// handleDownloadOwnedFile retrieves and decrypts a file this peer owns.
func (p *Peer) handleDownloadOwnedFile(raw []byte) (any, error) {
	req, err := wire.Decode[wire.FileRequest](raw)
	if err != nil {
		return nil, wire.Errorf(wire.CodeBadRequest, "%v", err)
	}
	if req.Filename == "" {
		return nil, wire.Errorf(wire.CodeBadRequest, "filename required")
	}
	data, err := p.DownloadOwned(context.Background(), req.Filename)
	if err != nil {
		return nil, err
	}
	return wire.FileResponse{
		Type:     wire.TypeDownloadOwnedFile,
		Filename: req.Filename,
		Found:    true,
		Data:     data,
		Size:     int64(len(data)),
	}, nil
}

// DownloadOwned asks the tracker for the storage peers holding filename,
// fetches the ciphertext from any of them, and reverses the transform.
func (p *Peer) DownloadOwned(ctx context.Context, filename string) ([]byte, error) {
	addrs, err := p.findOwnedOnTracker(ctx, filename, p.opts.Identity)
	if err != nil {
		return nil, err
	}
	var lastErr error
	for _, target := range addrs {
		var resp wire.FileResponse
		err := wire.Call(ctx, target.String(), wire.OwnedFileRequest{
			Type:     wire.TypeGetOwnedFile,
			Filename: filename,
			OwnerID:  p.opts.Identity,
		}, &resp)
		if err != nil {
			lastErr = err
			continue
		}
		key := fabriccrypto.DeriveKey(p.opts.Identity, filename)
		return fabriccrypto.Transform(resp.Data, key), nil
	}
	if lastErr == nil {
		lastErr = wire.Errorf(wire.CodeUnavailable, "no storage peers hold %s", filename)
	}
	return nil, lastErr
}

// handleRemoveOwnedFile deletes an owned file from every storage peer, then
// removes the tracker's ownership record.
func (p *Peer) handleRemoveOwnedFile(raw []byte) (any, error) {
	req, err := wire.Decode[wire.FileRequest](raw)
	if err != nil {
		return nil, wire.Errorf(wire.CodeBadRequest, "%v", err)
	}
	if req.Filename == "" {
		return nil, wire.Errorf(wire.CodeBadRequest, "filename required")
	}
	if err := p.RemoveOwned(context.Background(), req.Filename); err != nil {
		return nil, err
	}
	return wire.NewAck(wire.TypeRemoveOwnedFile), nil
}

// RemoveOwned is the owner-side delete: authorize against the tracker,
// delete on every storage peer, then drop the tracker entry once all
// confirmed.
func (p *Peer) RemoveOwned(ctx context.Context, filename string) error {
	addrs, err := p.findOwnedOnTracker(ctx, filename, p.opts.Identity)
	if err != nil {
		return err
	}
	for _, target := range addrs {
		err := wire.Call(ctx, target.String(), wire.OwnedFileRequest{
			Type:     wire.TypeDeleteOwnedFile,
			Filename: filename,
			OwnerID:  p.opts.Identity,
		}, nil)
		if err != nil {
			return fmt.Errorf("storage peer %s did not confirm delete: %w", target.String(), err)
		}
	}
	err = wire.Call(ctx, p.opts.TrackerAddr, wire.OwnedFileLookupRequest{
		Type:        wire.TypeDeleteOwnedFile,
		Filename:    filename,
		RequesterID: p.opts.Identity,
	}, nil)
	if err != nil {
		return err
	}
	p.ownedMu.Lock()
	delete(p.ownedByMe, filename)
	p.ownedMu.Unlock()
	return nil
}

func (p *Peer) handleListOwnedFiles() (any, error) {
	p.ownedMu.Lock()
	names := make([]string, 0, len(p.ownedByMe))
	for name := range p.ownedByMe {
		names = append(names, name)
	}
	p.ownedMu.Unlock()
	return wire.FileResponse{Type: wire.TypeListOwnedFiles, Found: true, Files: names}, nil
}

func (p *Peer) findOwnedOnTracker(ctx context.Context, filename, requesterID string) ([]types.Addr, error) {
	if p.opts.TrackerAddr == "" {
		return nil, wire.Errorf(wire.CodeUnavailable, "no tracker configured")
	}
	var resp wire.OwnedFileLookupResponse
	err := wire.Call(ctx, p.opts.TrackerAddr, wire.OwnedFileLookupRequest{
		Type:        wire.TypeFindOwnedFile,
		Filename:    filename,
		RequesterID: requesterID,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if !resp.Found || len(resp.Storage) == 0 {
		return nil, wire.Errorf(wire.CodeUnknownFile, "no storage peers recorded for %s", filename)
	}
	return resp.Storage, nil
}

func (p *Peer) registerOwnedWithTracker(filename, ownerID string, ownerAddr types.Addr) error {
	if p.opts.TrackerAddr == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.opts.SocketTimeout)
	defer cancel()
	return wire.Call(ctx, p.opts.TrackerAddr, wire.RegisterOwnedFileRequest{
		Type:            wire.TypeRegisterOwnedFile,
		Filename:        filename,
		OwnerID:         ownerID,
		OwnerAddr:       ownerAddr,
		StorageIdentity: p.opts.Identity,
		StorageAddr:     p.opts.Addr,
	}, nil)
}

// reportOwnedFiles re-registers every stored-for-others file with the
// tracker after a restart, rebuilding the registry if the tracker lost it.
func (p *Peer) reportOwnedFiles(ctx context.Context) {
	for filename, ref := range p.owned.Files() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		// Reconstructed refs may only carry an id prefix; the tracker's
		// create-or-union keeps whichever full id it already knows.
		if err := p.registerOwnedWithTracker(filename, ref.ID, ref.Addr); err != nil {
			p.log.Debug("failed to re-report owned file",
				zap.String("filename", filename), zap.Error(err))
		}
	}
}
