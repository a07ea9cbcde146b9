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

// Package client is the thin façade spec §6.1 describes: create/get/delete
// on top of any peer.Peer, local or remote. Grounded on gcsproxy's
// proxy-over-lease style (mutable_content.go's Content sitting on top of
// lease.ReadProxy/ReadWriteLease) — here the layer underneath is a
// peer.Peer rather than a lease, since a transport.Client satisfies that
// same interface.
package client

import (
	"context"

	"github.com/fruina/fruina/internal/lease"
	"github.com/fruina/fruina/internal/peer"
)

// Client is a façade over one peer.Peer, local (peer.MemoryPeer,
// peer.SharedFSPeer, peer.TieredPeer) or remote (transport.Client).
type Client struct {
	peer peer.Peer
}

// New wraps p in a Client façade.
func New(p peer.Peer) *Client {
	return &Client{peer: p}
}

// Create acquires a new object in CREATE intent. If size is non-nil the
// blob is truncated to that length immediately (spec §6.1).
func (c *Client) Create(ctx context.Context, size *int64, meta map[string]string) (*Object, error) {
	res, err := c.peer.Acquire(ctx, peer.AcquireRequest{Access: lease.Create, Meta: meta})
	if err != nil {
		return nil, err
	}

	o := newObject(c.peer, res)
	if size != nil {
		if err := o.Truncate(ctx, *size); err != nil {
			c.peer.Discard(ctx, res.Lease.ID)
			return nil, err
		}
	}
	return o, nil
}

// Get acquires an existing object in READ intent; fails with
// fruinaerr.NotSealed if it has not been sealed yet.
func (c *Client) Get(ctx context.Context, objectID string) (*Object, error) {
	res, err := c.peer.Acquire(ctx, peer.AcquireRequest{ObjectID: &objectID, Access: lease.Read})
	if err != nil {
		return nil, err
	}
	return newObject(c.peer, res), nil
}

// Delete acquires objectID in WRITE intent and discards it.
func (c *Client) Delete(ctx context.Context, objectID string) error {
	res, err := c.peer.Acquire(ctx, peer.AcquireRequest{ObjectID: &objectID, Access: lease.Write})
	if err != nil {
		return err
	}
	return c.peer.Discard(ctx, res.Lease.ID)
}

// WithObject acquires req and guarantees obj.Close runs before returning —
// on a normal return, an error return, or a panic unwinding through fn
// (spec §6.1: "Object also supports scoped acquisition with guaranteed
// release on all exit paths").
func (c *Client) WithObject(ctx context.Context, req peer.AcquireRequest, fn func(obj *Object) error) (err error) {
	res, acquireErr := c.peer.Acquire(ctx, req)
	if acquireErr != nil {
		return acquireErr
	}

	o := newObject(c.peer, res)
	defer func() {
		if closeErr := o.Close(ctx); err == nil {
			err = closeErr
		}
	}()

	return fn(o)
}

// Close closes the underlying peer.
func (c *Client) Close() error {
	return c.peer.Close()
}
