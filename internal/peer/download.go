package peer

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/AbdullahhussainYasim/p2p-os-term-project/pkg/types"
	"github.com/AbdullahhussainYasim/p2p-os-term-project/pkg/wire"
)

// handleDownloadFile fetches an advertised file from the network on behalf
// of the requesting client, chunked across every advertising peer.
func (p *Peer) handleDownloadFile(raw []byte) (any, error) {
	req, err := wire.Decode[wire.FileRequest](raw)
	if err != nil {
		return nil, wire.Errorf(wire.CodeBadRequest, "%v", err)
	}
	if req.Filename == "" {
		return nil, wire.Errorf(wire.CodeBadRequest, "filename required for DOWNLOAD_FILE")
	}
	data, err := p.DownloadFromNetwork(context.Background(), req.Filename)
	if err != nil {
		return nil, err
	}
	return wire.FileResponse{
		Type:     wire.TypeDownloadFile,
		Filename: req.Filename,
		Found:    true,
		Data:     data,
		Size:     int64(len(data)),
	}, nil
}

// FindOnNetwork asks the tracker which peers advertise filename.
func (p *Peer) FindOnNetwork(ctx context.Context, filename string) ([]types.Addr, error) {
	if p.opts.TrackerAddr == "" {
		return nil, wire.Errorf(wire.CodeUnavailable, "no tracker configured")
	}
	var resp wire.FindFileResponse
	err := wire.Call(ctx, p.opts.TrackerAddr, wire.FindFileRequest{
		Type:     wire.TypeFindFile,
		Filename: filename,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if !resp.Found {
		return nil, wire.Errorf(wire.CodeUnknownFile, "file %s not found on any peer", filename)
	}
	return resp.Addresses, nil
}

// DownloadFromNetwork performs the multi-peer chunked fetch: probe any
// advertiser for the size, split into fixed chunks, pull chunks in parallel
// round-robin across the peer set, and retry each failed chunk on the other
// peers. A chunk no peer can serve fails the whole fetch.
func (p *Peer) DownloadFromNetwork(ctx context.Context, filename string) ([]byte, error) {
	peers, err := p.FindOnNetwork(ctx, filename)
	if err != nil {
		return nil, err
	}

	size, err := p.probeSize(ctx, peers, filename)
	if err != nil {
		return nil, err
	}
	if size == 0 {
		return []byte{}, nil
	}

	chunkSize := p.opts.ChunkSize
	numChunks := int((size + chunkSize - 1) / chunkSize)
	chunks := make([][]byte, numChunks)
	errs := make([]error, numChunks)

	var wg sync.WaitGroup
	for i := 0; i < numChunks; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			offset := int64(idx) * chunkSize
			length := chunkSize
			if offset+length > size {
				length = size - offset
			}
			// Start from a different peer per chunk, falling through the
			// rest of the set on failure.
			for attempt := 0; attempt < len(peers); attempt++ {
				target := peers[(idx+attempt)%len(peers)]
				data, err := p.fetchChunk(ctx, target, filename, offset, length)
				if err == nil {
					chunks[idx] = data
					return
				}
				errs[idx] = err
				p.log.Debug("chunk fetch failed",
					zap.String("filename", filename),
					zap.Int("chunk", idx),
					zap.String("peer", target.String()),
					zap.Error(err))
			}
		}(i)
	}
	wg.Wait()

	var out []byte
	for i, chunk := range chunks {
		if chunk == nil {
			return nil, wire.Errorf(wire.CodeUnavailable,
				"chunk %d of %s unobtainable from any peer: %v", i, filename, errs[i])
		}
		out = append(out, chunk...)
	}
	if int64(len(out)) != size {
		return nil, wire.Errorf(wire.CodeInternal,
			"reassembled %d bytes of %s, expected %d", len(out), filename, size)
	}
	return out, nil
}

func (p *Peer) probeSize(ctx context.Context, peers []types.Addr, filename string) (int64, error) {
	var lastErr error
	for _, target := range peers {
		var resp wire.FileResponse
		err := wire.Call(ctx, target.String(), wire.FileChunkRequest{
			Type:     wire.TypeGetFileChunk,
			Filename: filename,
		}, &resp)
		if err == nil {
			return resp.Size, nil
		}
		lastErr = err
	}
	return 0, wire.Errorf(wire.CodeUnavailable, "size probe for %s failed: %v", filename, lastErr)
}

func (p *Peer) fetchChunk(ctx context.Context, target types.Addr, filename string, offset, length int64) ([]byte, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.opts.SocketTimeout)
	defer cancel()
	var resp wire.FileResponse
	err := wire.Call(callCtx, target.String(), wire.FileChunkRequest{
		Type:     wire.TypeGetFileChunk,
		Filename: filename,
		Offset:   offset,
		Length:   length,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if int64(len(resp.Data)) != length {
		return nil, wire.Errorf(wire.CodeInternal,
			"peer %s returned %d bytes for a %d-byte chunk", target.String(), len(resp.Data), length)
	}
	return resp.Data, nil
}
