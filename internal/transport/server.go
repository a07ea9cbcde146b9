// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package transport

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/fruina/fruina/internal/blob"
	"github.com/fruina/fruina/internal/fruinaerr"
	"github.com/fruina/fruina/internal/peer"
	"golang.org/x/sys/unix"
)

// Server exposes a peer.Peer over a Unix domain socket, with blob file
// descriptors riding alongside acquire responses via SCM_RIGHTS (spec
// §4.5, §6.3). One goroutine per connection; one peer behind all of them.
type Server struct {
	peer     peer.Peer
	listener *net.UnixListener
}

// NewServer binds socketPath, removing any stale socket file a prior,
// crashed server left behind.
func NewServer(p peer.Peer, socketPath string) (*Server, error) {
	if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
		return nil, fruinaerr.Wrap("transport.server", err)
	}
	addr, err := net.ResolveUnixAddr("unix", socketPath)
	if err != nil {
		return nil, fruinaerr.Wrap("transport.server", err)
	}
	ln, err := net.ListenUnix("unix", addr)
	if err != nil {
		return nil, fruinaerr.Wrap("transport.server", err)
	}
	return &Server{peer: p, listener: ln}, nil
}

// Serve accepts connections until ctx is cancelled or the listener fails.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()

	for {
		conn, err := s.listener.AcceptUnix()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fruinaerr.Wrap("transport.serve", err)
			}
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn *net.UnixConn) {
	defer conn.Close()
	for {
		var req wireRequest
		if err := readFrame(conn, &req); err != nil {
			return
		}

		resp, fds := s.dispatch(ctx, req)
		if err := writeFrame(conn, resp); err != nil {
			closeAll(fds)
			return
		}
		if len(fds) > 0 {
			err := sendFDs(conn, fds)
			closeAll(fds)
			if err != nil {
				return
			}
		}
	}
}

func closeAll(fds []int) {
	for _, fd := range fds {
		unix.Close(fd)
	}
}

func (s *Server) dispatch(ctx context.Context, req wireRequest) (wireResponse, []int) {
	switch req.Verb {
	case verbAcquire:
		return s.handleAcquire(ctx, req)
	case verbSeal:
		return statusResponse(s.peer.Seal(ctx, req.LeaseID)), nil
	case verbDiscard:
		return statusResponse(s.peer.Discard(ctx, req.LeaseID)), nil
	case verbRelease:
		return statusResponse(s.peer.Release(ctx, req.LeaseID)), nil
	default:
		err := fruinaerr.New("dispatch", fruinaerr.Protocol, fmt.Errorf("unknown verb %q", req.Verb))
		return errorResponse(err), nil
	}
}

func statusResponse(err error) wireResponse {
	if err != nil {
		return errorResponse(err)
	}
	return wireResponse{Status: "ok"}
}

func errorResponse(err error) wireResponse {
	return wireResponse{Status: "error", Kind: string(fruinaerr.Of(err)), Message: err.Error()}
}

func (s *Server) handleAcquire(ctx context.Context, req wireRequest) (wireResponse, []int) {
	areq := peer.AcquireRequest{
		ObjectID: req.ObjectID,
		Access:   accessFromWire(req.Intent),
		Meta:     req.Meta,
	}
	if req.TTLSeconds != nil {
		d := time.Duration(*req.TTLSeconds * float64(time.Second))
		areq.TTL = &d
	}

	res, err := s.peer.Acquire(ctx, areq)
	if err != nil {
		return errorResponse(err), nil
	}

	handles := make([]wireHandle, 0, len(res.Blobs))
	var fds []int
	for _, b := range res.Blobs {
		h := b.Handle()
		switch h.Kind {
		case blob.FileDescriptorHandle:
			dup, err := unix.Dup(h.FD)
			if err != nil {
				closeAll(fds)
				return errorResponse(fruinaerr.Wrap("acquire.dup", err)), nil
			}
			handles = append(handles, wireHandle{Type: handleFD})
			fds = append(fds, dup)
		case blob.FilesystemPathHandle:
			handles = append(handles, wireHandle{Type: handlePath, Path: h.Path})
		case blob.SharedFSHandle:
			handles = append(handles, wireHandle{Type: handleSharedFS, Path: h.Path, DataOffset: h.DataOffset})
		}
	}

	var ttl *float64
	if res.Lease.TTL != nil {
		secs := res.Lease.TTL.Seconds()
		ttl = &secs
	}

	return wireResponse{
		Status:     "ok",
		LeaseID:    res.Lease.ID,
		ObjectID:   res.Object.ID,
		Intent:     wireIntent(res.Lease.Access),
		State:      string(res.Object.State),
		TTLSeconds: ttl,
		Meta:       res.Object.Meta,
		SealedSize: res.Object.SealedSize,
		Handles:    handles,
	}, fds
}
