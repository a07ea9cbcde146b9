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
	"errors"
	"net"
	"sync"
	"time"

	"github.com/fruina/fruina/internal/blob"
	"github.com/fruina/fruina/internal/fruinaerr"
	"github.com/fruina/fruina/internal/lease"
	"github.com/fruina/fruina/internal/object"
	"github.com/fruina/fruina/internal/peer"
)

// Client is a wire-level connection to a Server, implementing peer.Peer
// itself so callers one layer up (the client façade) can treat a local
// peer.Peer and a remote Client interchangeably.
type Client struct {
	mu   sync.Mutex // serializes request/response pairs on conn
	conn *net.UnixConn
}

// Dial connects to a Server listening at socketPath.
func Dial(socketPath string) (*Client, error) {
	addr, err := net.ResolveUnixAddr("unix", socketPath)
	if err != nil {
		return nil, fruinaerr.Wrap("transport.dial", err)
	}
	conn, err := net.DialUnix("unix", nil, addr)
	if err != nil {
		return nil, fruinaerr.Wrap("transport.dial", err)
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Acquire(_ context.Context, req peer.AcquireRequest) (*peer.AcquireResult, error) {
	wreq := wireRequest{
		Verb:     verbAcquire,
		ObjectID: req.ObjectID,
		Intent:   wireIntent(req.Access),
		Meta:     req.Meta,
	}
	if req.TTL != nil {
		secs := req.TTL.Seconds()
		wreq.TTLSeconds = &secs
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := writeFrame(c.conn, wreq); err != nil {
		return nil, fruinaerr.Wrap("transport.acquire", err)
	}
	var resp wireResponse
	if err := readFrame(c.conn, &resp); err != nil {
		return nil, fruinaerr.Wrap("transport.acquire", err)
	}
	if resp.Status == "error" {
		return nil, fruinaerr.New("acquire", fruinaerr.Kind(resp.Kind), errors.New(resp.Message))
	}

	fdCount := 0
	for _, h := range resp.Handles {
		if h.Type == handleFD {
			fdCount++
		}
	}
	var fds []int
	if fdCount > 0 {
		var err error
		fds, err = recvFDs(c.conn, fdCount)
		if err != nil {
			return nil, fruinaerr.Wrap("transport.acquire", err)
		}
	}

	sealed := resp.State == string(object.Sealed)
	blobs := make([]blob.Blob, 0, len(resp.Handles))
	fdIdx := 0
	for _, h := range resp.Handles {
		switch h.Type {
		case handleFD:
			blobs = append(blobs, newFDBlob(fds[fdIdx], resp.SealedSize, sealed))
			fdIdx++
		case handlePath:
			b, err := newPathBlob(h.Path, resp.SealedSize, sealed)
			if err != nil {
				return nil, err
			}
			blobs = append(blobs, b)
		case handleSharedFS:
			b, err := blob.OpenSharedFS(h.Path)
			if err != nil {
				return nil, err
			}
			blobs = append(blobs, &sharedFSClientBlob{SharedFSBlob: b})
		}
	}

	l := &lease.Lease{
		ID:            resp.LeaseID,
		ObjectID:      resp.ObjectID,
		Access:        accessFromWire(resp.Intent),
		CreatedAt:     time.Now(),
		LastRenewedAt: time.Now(),
	}
	if resp.TTLSeconds != nil {
		d := time.Duration(*resp.TTLSeconds * float64(time.Second))
		l.TTL = &d
	}
	l.SetActive()

	obj := &object.Object{
		ID:         resp.ObjectID,
		State:      object.State(resp.State),
		Meta:       resp.Meta,
		SealedSize: resp.SealedSize,
	}

	return &peer.AcquireResult{Lease: l, Object: obj, Blobs: blobs}, nil
}

func (c *Client) Seal(ctx context.Context, leaseID string) error {
	return c.call(verbSeal, leaseID)
}

func (c *Client) Discard(ctx context.Context, leaseID string) error {
	return c.call(verbDiscard, leaseID)
}

func (c *Client) Release(ctx context.Context, leaseID string) error {
	return c.call(verbRelease, leaseID)
}

func (c *Client) call(verb, leaseID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := writeFrame(c.conn, wireRequest{Verb: verb, LeaseID: leaseID}); err != nil {
		return fruinaerr.Wrap("transport."+verb, err)
	}
	var resp wireResponse
	if err := readFrame(c.conn, &resp); err != nil {
		return fruinaerr.Wrap("transport."+verb, err)
	}
	if resp.Status == "error" {
		return fruinaerr.New(verb, fruinaerr.Kind(resp.Kind), errors.New(resp.Message))
	}
	return nil
}

// Close closes the underlying connection. It does not release any leases
// still outstanding on the server; callers should Release first.
func (c *Client) Close() error {
	return c.conn.Close()
}

var _ peer.Peer = (*Client)(nil)
