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
	"os"
	"path/filepath"
	"time"

	"github.com/fruina/fruina/clock"
	"github.com/fruina/fruina/internal/blob"
	"github.com/fruina/fruina/internal/fruinaerr"
	"github.com/fruina/fruina/internal/lease"
	"github.com/fruina/fruina/internal/logger"
	"github.com/fruina/fruina/internal/object"
	"github.com/google/uuid"
	"github.com/jacobsa/syncutil"
)

// sharedFSLease is the bookkeeping the shared-FS peer keeps for a lease
// it issued locally. Cross-process coordination never looks at this; it
// happens purely by filename and mtime (spec §4.3).
type sharedFSLease struct {
	lease    *lease.Lease
	objectID string
	path     string // leases/<id>.<lid> while CREATEing, data/<id> once sealed/read
	blob     *blob.SharedFSBlob
	obj      *object.Object
	sealed   bool
}

// sharedFSBlobView adapts blob.SharedFSBlob's one-argument Seal (which
// takes the object's TTL) to the no-argument blob.Blob contract; the
// TTL itself is resolved by the shared-FS peer's Seal operation, not by
// the blob.
type sharedFSBlobView struct {
	*blob.SharedFSBlob
	ttl func() int64
}

func (v *sharedFSBlobView) Seal() error { return v.SharedFSBlob.Seal(v.ttl()) }

var _ blob.Blob = (*sharedFSBlobView)(nil)

// SharedFSPeer realizes the peer contract over a directory shared between
// processes: leases/ holds in-progress objects, data/ holds sealed ones,
// and a background goroutine reaps TTL-expired files from both (spec
// §4.3). Grounded on fs/garbage_collect.go's scan-and-unlink loop shape.
type SharedFSPeer struct {
	mu syncutil.InvariantMutex // GUARDED: leases

	root      string
	leasesDir string
	dataDir   string
	clock     clock.Clock

	leases map[string]*sharedFSLease

	gcInterval time.Duration
	gcStop     chan struct{}
	gcDone     chan struct{}
}

// NewSharedFSPeer creates leases/ and data/ under root if needed and
// starts the GC loop at the given interval (0 disables it).
func NewSharedFSPeer(root string, clk clock.Clock, gcInterval time.Duration) (*SharedFSPeer, error) {
	leasesDir := filepath.Join(root, "leases")
	dataDir := filepath.Join(root, "data")
	for _, d := range []string{leasesDir, dataDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fruinaerr.Wrap("sharedfs.peer", err)
		}
	}

	p := &SharedFSPeer{
		root:      root,
		leasesDir: leasesDir,
		dataDir:   dataDir,
		clock:     clk,
		leases:    make(map[string]*sharedFSLease),
	}
	p.mu = syncutil.NewInvariantMutex(p.checkInvariants)

	if gcInterval > 0 {
		p.gcInterval = gcInterval
		p.gcStop = make(chan struct{})
		p.gcDone = make(chan struct{})
		go p.runGC()
	}

	return p, nil
}

func (p *SharedFSPeer) checkInvariants() {
	for id, l := range p.leases {
		if l.lease.ID != id {
			panic(fmt.Sprintf("sharedfs peer: lease key %q has ID %q", id, l.lease.ID))
		}
	}
}

func (p *SharedFSPeer) dataPath(id string) string { return filepath.Join(p.dataDir, id) }
func (p *SharedFSPeer) leasePath(id, lid string) string {
	return filepath.Join(p.leasesDir, id+"."+lid)
}

func (p *SharedFSPeer) exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (p *SharedFSPeer) isKnown(id string) bool {
	if p.exists(p.dataPath(id)) {
		return true
	}
	matches, _ := filepath.Glob(filepath.Join(p.leasesDir, id+".*"))
	return len(matches) > 0
}

func (p *SharedFSPeer) Acquire(ctx context.Context, req AcquireRequest) (*AcquireResult, error) {
	switch req.Access {
	case lease.Create:
		return p.acquireCreate(ctx, req)
	case lease.Read:
		return p.acquireRead(ctx, req)
	case lease.Write:
		return p.acquireWrite(ctx, req)
	default:
		return nil, fruinaerr.New("acquire", fruinaerr.Protocol, fmt.Errorf("unknown access %q", req.Access))
	}
}

func (p *SharedFSPeer) acquireCreate(_ context.Context, req AcquireRequest) (*AcquireResult, error) {
	id := ""
	if req.ObjectID != nil {
		id = *req.ObjectID
	}

	p.mu.Lock()
	if id == "" {
		id = uuid.NewString()
	} else if p.isKnown(id) {
		p.mu.Unlock()
		return nil, fruinaerr.New("acquire", fruinaerr.Conflict, nil)
	}
	p.mu.Unlock()

	l := newLease(id, lease.Create, req.TTL, p.clock.Now())
	path := p.leasePath(id, l.ID)

	var ttlMillis uint32
	if req.TTL != nil {
		ttlMillis = uint32(req.TTL.Milliseconds())
	}

	b, err := blob.CreateSharedFS(path, cloneMeta(req.Meta), ttlMillis)
	if err != nil {
		return nil, err
	}

	obj := &object.Object{ID: id, State: object.Creating, Meta: cloneMeta(req.Meta)}
	entry := &sharedFSLease{lease: l, objectID: id, path: path, blob: b, obj: obj}

	p.mu.Lock()
	p.leases[l.ID] = entry
	p.mu.Unlock()

	view := &sharedFSBlobView{SharedFSBlob: b, ttl: obj.TTLSeconds}
	return &AcquireResult{Lease: l, Object: obj, Blobs: []blob.Blob{view}}, nil
}

func (p *SharedFSPeer) acquireRead(_ context.Context, req AcquireRequest) (*AcquireResult, error) {
	if req.ObjectID == nil {
		return nil, fruinaerr.New("acquire", fruinaerr.NotFound, nil)
	}
	id := *req.ObjectID
	path := p.dataPath(id)
	if !p.exists(path) {
		return nil, fruinaerr.New("acquire", fruinaerr.NotFound, nil)
	}

	b, err := blob.OpenSharedFS(path)
	if err != nil {
		return nil, err
	}

	l := newLease(id, lease.Read, req.TTL, p.clock.Now())
	entry := &sharedFSLease{lease: l, objectID: id, path: path, blob: b, sealed: true}

	p.mu.Lock()
	p.leases[l.ID] = entry
	p.mu.Unlock()

	obj := &object.Object{ID: id, State: object.Sealed, Meta: b.Meta(), SealedSize: b.Size()}
	view := &sharedFSBlobView{SharedFSBlob: b, ttl: obj.TTLSeconds}
	return &AcquireResult{Lease: l, Object: obj, Blobs: []blob.Blob{view}}, nil
}

func (p *SharedFSPeer) acquireWrite(_ context.Context, req AcquireRequest) (*AcquireResult, error) {
	if req.ObjectID == nil {
		return nil, fruinaerr.New("acquire", fruinaerr.NotFound, nil)
	}
	id := *req.ObjectID

	path := p.dataPath(id)
	sealed := true
	if !p.exists(path) {
		matches, _ := filepath.Glob(filepath.Join(p.leasesDir, id+".*"))
		if len(matches) == 0 {
			return nil, fruinaerr.New("acquire", fruinaerr.NotFound, nil)
		}
		path = matches[0]
		sealed = false
	}

	b, err := blob.OpenSharedFS(path)
	if err != nil {
		return nil, err
	}

	l := newLease(id, lease.Write, req.TTL, p.clock.Now())
	entry := &sharedFSLease{lease: l, objectID: id, path: path, blob: b, sealed: sealed}

	p.mu.Lock()
	p.leases[l.ID] = entry
	p.mu.Unlock()

	state := object.Sealed
	if !sealed {
		state = object.Creating
	}
	obj := &object.Object{ID: id, State: state, Meta: b.Meta(), SealedSize: b.Size()}
	view := &sharedFSBlobView{SharedFSBlob: b, ttl: obj.TTLSeconds}
	return &AcquireResult{Lease: l, Object: obj, Blobs: []blob.Blob{view}}, nil
}

func (p *SharedFSPeer) Seal(_ context.Context, leaseID string) error {
	p.mu.Lock()
	entry, ok := p.leases[leaseID]
	p.mu.Unlock()

	if !ok {
		return fruinaerr.New("seal", fruinaerr.NotFound, nil)
	}
	if entry.lease.Access != lease.Create {
		return fruinaerr.New("seal", fruinaerr.BadLease, nil)
	}
	if entry.sealed {
		return nil
	}

	if err := entry.blob.Seal(entry.obj.TTLSeconds()); err != nil {
		return err
	}

	finalPath := p.dataPath(entry.objectID)
	if err := os.Rename(entry.path, finalPath); err != nil {
		return fruinaerr.Wrap("seal.rename", err)
	}

	p.mu.Lock()
	entry.sealed = true
	entry.path = finalPath
	p.mu.Unlock()

	return nil
}

func (p *SharedFSPeer) Discard(_ context.Context, leaseID string) error {
	p.mu.Lock()
	entry, ok := p.leases[leaseID]
	if ok {
		delete(p.leases, leaseID)
	}
	p.mu.Unlock()

	if !ok {
		return fruinaerr.New("discard", fruinaerr.NotFound, nil)
	}
	if entry.lease.Access == lease.Read {
		return fruinaerr.New("discard", fruinaerr.BadLease, nil)
	}

	entry.lease.SetInactive()
	return entry.blob.Delete()
}

func (p *SharedFSPeer) Release(_ context.Context, leaseID string) error {
	p.mu.Lock()
	entry, ok := p.leases[leaseID]
	if ok {
		delete(p.leases, leaseID)
	}
	p.mu.Unlock()

	if !ok {
		return nil
	}
	entry.lease.SetInactive()
	return entry.blob.Close()
}

func (p *SharedFSPeer) Close() error {
	if p.gcStop != nil {
		close(p.gcStop)
		<-p.gcDone
	}
	return nil
}

var _ Peer = (*SharedFSPeer)(nil)

func logf(format string, args ...any) { logger.Debugf(format, args...) }
