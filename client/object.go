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

package client

import (
	"context"
	"sync"

	"github.com/fruina/fruina/internal/blob"
	"github.com/fruina/fruina/internal/lease"
	"github.com/fruina/fruina/internal/object"
	"github.com/fruina/fruina/internal/peer"
	"github.com/fruina/fruina/internal/transport"
)

// Object is the client-held handle on one acquire: a lease, the object
// record as of that acquire, and the backing blob the lease grants access
// to. Close always runs, regardless of what else failed, mirroring
// mutable_content.go's Destroy being safe to call unconditionally.
type Object struct {
	mu     sync.Mutex
	peer   peer.Peer
	lease  *lease.Lease
	info   *object.Object
	blob   blob.Blob
	closed bool
}

func newObject(p peer.Peer, res *peer.AcquireResult) *Object {
	return &Object{peer: p, lease: res.Lease, info: res.Object, blob: res.Blobs[0]}
}

// ID returns the object's identifier.
func (o *Object) ID() string { return o.info.ID }

// State returns CREATING or SEALED as of the last acquire/seal call made
// through this handle.
func (o *Object) State() object.State { return o.info.State }

// Meta returns the metadata fixed at CREATE.
func (o *Object) Meta() map[string]string { return o.info.Meta }

// Buffer returns a zero-copy mapped view of the object's current bytes:
// read-write while CREATING, read-only once SEALED (spec §6.1).
func (o *Object) Buffer() ([]byte, error) {
	mode := blob.ReadOnly
	if o.info.State == object.Creating {
		mode = blob.ReadWrite
	}
	return o.blob.MemoryRegion(mode)
}

// Write writes p at offset 0, the common case of replacing an object's
// entire content in one call (spec §6.1's "Object.write(bytes)").
func (o *Object) Write(ctx context.Context, p []byte) (int, error) {
	return o.blob.WriteAt(ctx, p, 0)
}

// WriteAt writes p at offset, for callers building content incrementally.
func (o *Object) WriteAt(ctx context.Context, p []byte, offset int64) (int, error) {
	return o.blob.WriteAt(ctx, p, offset)
}

// ReadAt reads from the object's current bytes; only meaningful once
// SEALED, or on the writer's own still-CREATING view.
func (o *Object) ReadAt(ctx context.Context, p []byte, offset int64) (int, error) {
	return o.blob.ReadAt(ctx, p, offset)
}

// Truncate resizes the blob to n bytes.
func (o *Object) Truncate(ctx context.Context, n int64) error {
	return o.blob.Truncate(ctx, n)
}

// Seal flushes and freezes the blob, then forwards the state-machine
// transition to the peer. Mapped views returned by Buffer are not unmapped
// here; they stay mapped until the blob is closed. Fails with
// fruinaerr.BadLease if this handle was not acquired with CREATE intent.
func (o *Object) Seal(ctx context.Context) error {
	if err := o.blob.Seal(); err != nil {
		return err
	}
	if err := o.peer.Seal(ctx, o.lease.ID); err != nil {
		return err
	}

	o.mu.Lock()
	o.info.State = object.Sealed
	o.info.SealedSize = o.blob.Size()
	o.mu.Unlock()
	return nil
}

// Close releases the lease and, when the blob view is client-owned (one
// reconstructed by a transport.Client), closes it. A local peer keeps
// ownership of the blobs it hands out, so those are left open. Idempotent
// and safe to call via defer regardless of what else failed.
func (o *Object) Close(ctx context.Context) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	o.mu.Unlock()

	releaseErr := o.peer.Release(ctx, o.lease.ID)
	var closeErr error
	if _, remote := o.peer.(*transport.Client); remote {
		closeErr = o.blob.Close()
	}
	if releaseErr != nil {
		return releaseErr
	}
	return closeErr
}
