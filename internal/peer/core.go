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

package peer

import (
	"context"
	"fmt"
	"time"

	"github.com/fruina/fruina/clock"
	"github.com/fruina/fruina/internal/blob"
	"github.com/fruina/fruina/internal/fruinaerr"
	"github.com/fruina/fruina/internal/lease"
	"github.com/fruina/fruina/internal/object"
	"github.com/google/uuid"
	"github.com/jacobsa/syncutil"
)

// core is the §4.1 state machine: one lock over one table of objects and
// leases, embedded by the memory peer and the filesystem peer. The shared-FS
// peer keeps its own lease table and does not use core. Modeled on the
// single table + single lock shape reconstructed from lease.fileLeaser
// (lease/file_leaser_test.go) in the teacher.
//
// Every table update is serialized on mu; no blocking I/O happens while it
// is held (spec §5) — blob creation/seal/delete happen with the lock
// released. Create and seal commit to the table only after the blob-level
// work succeeds, and create re-checks the id after re-taking the lock;
// discard removes the object from the table before deleting its blob.
type core struct {
	mu syncutil.InvariantMutex // GUARDED: objects, leases, blobs

	clock   clock.Clock
	factory blob.Factory

	objects map[string]*object.Object
	leases  map[string]*lease.Lease
	blobs   map[string]blob.Blob // objectID -> backing blob
}

func newCore(clk clock.Clock, factory blob.Factory) *core {
	c := &core{
		clock:   clk,
		factory: factory,
		objects: make(map[string]*object.Object),
		leases:  make(map[string]*lease.Lease),
		blobs:   make(map[string]blob.Blob),
	}
	c.mu = syncutil.NewInvariantMutex(c.checkInvariants)
	return c
}

func (c *core) checkInvariants() {
	for id, obj := range c.objects {
		if obj.ID != id {
			panic(fmt.Sprintf("peer core: object key %q has ID %q", id, obj.ID))
		}
	}
	creating := make(map[string]int)
	for _, l := range c.leases {
		if l.Active() && l.Access == lease.Create {
			creating[l.ObjectID]++
		}
	}
	for id, n := range creating {
		if n > 1 {
			panic(fmt.Sprintf("peer core: object %q has %d concurrent CREATE leases", id, n))
		}
	}
}

// sweepExpiredLocked drops expired leases. Run at the head of every
// acquire (spec §4.1 "Lazy expiry cleanup").
func (c *core) sweepExpiredLocked() {
	now := c.clock.Now()
	for id, l := range c.leases {
		if l.Active() && l.Expired(now) {
			l.SetInactive()
			delete(c.leases, id)
		}
	}
}

// expireIfDueLocked reports whether l is past its TTL; if so it is released
// and dropped from the table. Seal and discard call this on their own
// lease before the blanket sweep runs, so the specific lease they were
// asked about fails with Expired rather than collapsing into NotFound
// once sweepExpiredLocked has already removed it (spec §4.1: "A lease
// passed to any op is first checked for expiry; if expired, it is
// released and the op fails with Expired").
func (c *core) expireIfDueLocked(l *lease.Lease) bool {
	if !l.Expired(c.clock.Now()) {
		return false
	}
	l.SetInactive()
	delete(c.leases, l.ID)
	return true
}

func (c *core) Acquire(ctx context.Context, req AcquireRequest) (*AcquireResult, error) {
	c.mu.Lock()
	c.sweepExpiredLocked()

	switch req.Access {
	case lease.Create:
		return c.acquireCreateLocked(ctx, req)
	case lease.Read:
		return c.acquireReadLocked(ctx, req)
	case lease.Write:
		return c.acquireWriteLocked(ctx, req)
	default:
		c.mu.Unlock()
		return nil, fruinaerr.New("acquire", fruinaerr.Protocol, fmt.Errorf("unknown access %q", req.Access))
	}
}

func (c *core) acquireCreateLocked(ctx context.Context, req AcquireRequest) (*AcquireResult, error) {
	id := ""
	if req.ObjectID != nil {
		id = *req.ObjectID
	}
	if id == "" {
		id = uuid.NewString()
	} else if _, known := c.objects[id]; known {
		c.mu.Unlock()
		return nil, fruinaerr.New("acquire", fruinaerr.Conflict, nil)
	}

	c.mu.Unlock()
	b, err := c.factory.Create(ctx, id)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	if _, known := c.objects[id]; known {
		// Another CREATE for the same id committed while the lock was
		// released for blob creation.
		c.mu.Unlock()
		b.Delete()
		return nil, fruinaerr.New("acquire", fruinaerr.Conflict, nil)
	}
	defer c.mu.Unlock()

	obj := &object.Object{ID: id, State: object.Creating, Meta: cloneMeta(req.Meta)}
	c.objects[id] = obj
	c.blobs[id] = b

	l := newLease(id, lease.Create, req.TTL, c.clock.Now())
	c.leases[l.ID] = l

	return &AcquireResult{Lease: l, Object: obj.Clone(), Blobs: []blob.Blob{b}}, nil
}

func (c *core) acquireReadLocked(_ context.Context, req AcquireRequest) (*AcquireResult, error) {
	defer c.mu.Unlock()

	if req.ObjectID == nil {
		return nil, fruinaerr.New("acquire", fruinaerr.NotFound, nil)
	}
	obj, ok := c.objects[*req.ObjectID]
	if !ok {
		return nil, fruinaerr.New("acquire", fruinaerr.NotFound, nil)
	}
	if obj.State != object.Sealed {
		return nil, fruinaerr.New("acquire", fruinaerr.NotSealed, nil)
	}

	l := newLease(obj.ID, lease.Read, req.TTL, c.clock.Now())
	c.leases[l.ID] = l

	return &AcquireResult{Lease: l, Object: obj.Clone(), Blobs: []blob.Blob{c.blobs[obj.ID]}}, nil
}

func (c *core) acquireWriteLocked(_ context.Context, req AcquireRequest) (*AcquireResult, error) {
	defer c.mu.Unlock()

	if req.ObjectID == nil {
		return nil, fruinaerr.New("acquire", fruinaerr.NotFound, nil)
	}
	obj, ok := c.objects[*req.ObjectID]
	if !ok {
		return nil, fruinaerr.New("acquire", fruinaerr.NotFound, nil)
	}

	l := newLease(obj.ID, lease.Write, req.TTL, c.clock.Now())
	c.leases[l.ID] = l

	return &AcquireResult{Lease: l, Object: obj.Clone(), Blobs: []blob.Blob{c.blobs[obj.ID]}}, nil
}

func (c *core) Seal(_ context.Context, leaseID string) error {
	c.mu.Lock()

	l, ok := c.leases[leaseID]
	if ok && c.expireIfDueLocked(l) {
		c.sweepExpiredLocked()
		c.mu.Unlock()
		return fruinaerr.New("seal", fruinaerr.Expired, nil)
	}
	c.sweepExpiredLocked()

	if !ok {
		c.mu.Unlock()
		return fruinaerr.New("seal", fruinaerr.NotFound, nil)
	}
	if l.Access != lease.Create {
		c.mu.Unlock()
		return fruinaerr.New("seal", fruinaerr.BadLease, nil)
	}

	obj := c.objects[l.ObjectID]
	if obj.State == object.Sealed {
		// Idempotent on the object; the lease is left untouched (spec §4.1
		// "tie-breaks" edge case).
		c.mu.Unlock()
		return nil
	}

	b := c.blobs[l.ObjectID]
	c.mu.Unlock()

	if err := b.Seal(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	obj.State = object.Sealed
	obj.SealedSize = b.Size()
	return nil
}

func (c *core) Discard(_ context.Context, leaseID string) error {
	c.mu.Lock()

	l, ok := c.leases[leaseID]
	if ok && c.expireIfDueLocked(l) {
		c.sweepExpiredLocked()
		c.mu.Unlock()
		return fruinaerr.New("discard", fruinaerr.Expired, nil)
	}
	c.sweepExpiredLocked()

	if !ok {
		c.mu.Unlock()
		return fruinaerr.New("discard", fruinaerr.NotFound, nil)
	}
	if l.Access == lease.Read {
		c.mu.Unlock()
		return fruinaerr.New("discard", fruinaerr.BadLease, nil)
	}

	b := c.blobs[l.ObjectID]
	objectID := l.ObjectID
	delete(c.objects, objectID)
	delete(c.blobs, objectID)
	l.SetInactive()
	delete(c.leases, leaseID)
	c.mu.Unlock()

	if b != nil {
		return b.Delete()
	}
	return nil
}

func (c *core) Release(_ context.Context, leaseID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	l, ok := c.leases[leaseID]
	if !ok {
		return nil
	}
	l.SetInactive()
	delete(c.leases, leaseID)
	return nil
}

func (c *core) Close() error { return nil }

func newLease(objectID string, access lease.Access, ttl *time.Duration, now time.Time) *lease.Lease {
	l := &lease.Lease{
		ID:            uuid.NewString(),
		ObjectID:      objectID,
		Access:        access,
		TTL:           ttl,
		CreatedAt:     now,
		LastRenewedAt: now,
	}
	l.SetActive()
	return l
}

func cloneMeta(meta map[string]string) map[string]string {
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}
