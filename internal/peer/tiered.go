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

	"github.com/fruina/fruina/internal/fruinaerr"
	"github.com/fruina/fruina/internal/lease"
	"github.com/fruina/fruina/internal/lrucache"
	"github.com/jacobsa/syncutil"
)

// leaseInfo records which underlying tier issued a lease, so Seal/Discard/
// Release know where to forward without the caller naming a tier.
type leaseInfo struct {
	peer     Peer
	objectID string
}

// TieredPeer composes a hot peer and a cold peer behind one Peer surface
// (spec §4.4). New objects land in hot and join the LRU order immediately;
// once hot would hold more than maxItems, the least recently used id is
// evicted to cold before the new object is created. Cold hits are never
// promoted back (spec §9).
type TieredPeer struct {
	mu syncutil.InvariantMutex // GUARDED: location, leases, lru

	hot, cold Peer
	maxItems  int

	location map[string]Peer      // objectID -> tier currently holding it
	leases   map[string]leaseInfo // leaseID -> issuing tier + object
	lru      *lrucache.Cache      // recency order over hot-resident object ids
}

// NewTieredPeer composes hot and cold into a single Peer that keeps at most
// maxItems objects resident in hot.
func NewTieredPeer(hot, cold Peer, maxItems int) *TieredPeer {
	p := &TieredPeer{
		hot:      hot,
		cold:     cold,
		maxItems: maxItems,
		location: make(map[string]Peer),
		leases:   make(map[string]leaseInfo),
		lru:      lrucache.New(),
	}
	p.mu = syncutil.NewInvariantMutex(p.checkInvariants)
	return p
}

func (p *TieredPeer) checkInvariants() {
	hotCount := 0
	for _, tier := range p.location {
		if tier == p.hot {
			hotCount++
		}
	}
	if hotCount != p.lru.Len() {
		panic(fmt.Sprintf("tiered peer: %d hot-resident objects but lru tracks %d", hotCount, p.lru.Len()))
	}
	p.lru.CheckInvariants()
}

func (p *TieredPeer) Acquire(ctx context.Context, req AcquireRequest) (*AcquireResult, error) {
	switch req.Access {
	case lease.Create:
		return p.acquireCreate(ctx, req)
	case lease.Read, lease.Write:
		return p.acquireExisting(ctx, req)
	default:
		return nil, fruinaerr.New("acquire", fruinaerr.Protocol, fmt.Errorf("unknown access %q", req.Access))
	}
}

// acquireCreate evicts until hot has room, then creates in hot and appends
// the new id to LRU (spec §4.4 "evict until |hot| < max_items, then create
// in hot and append to LRU").
func (p *TieredPeer) acquireCreate(ctx context.Context, req AcquireRequest) (*AcquireResult, error) {
	if err := p.makeRoom(ctx); err != nil {
		return nil, err
	}

	res, err := p.hot.Acquire(ctx, req)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.location[res.Object.ID] = p.hot
	p.leases[res.Lease.ID] = leaseInfo{peer: p.hot, objectID: res.Object.ID}
	p.lru.Touch(res.Object.ID)
	p.mu.Unlock()

	return res, nil
}

// acquireExisting routes a READ or WRITE acquire to whichever tier
// currently holds the object; a hot hit updates LRU recency (spec §4.4).
func (p *TieredPeer) acquireExisting(ctx context.Context, req AcquireRequest) (*AcquireResult, error) {
	if req.ObjectID == nil {
		return nil, fruinaerr.New("acquire", fruinaerr.NotFound, nil)
	}

	p.mu.Lock()
	target, ok := p.location[*req.ObjectID]
	p.mu.Unlock()
	if !ok {
		return nil, fruinaerr.New("acquire", fruinaerr.NotFound, nil)
	}

	res, err := target.Acquire(ctx, req)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.leases[res.Lease.ID] = leaseInfo{peer: target, objectID: *req.ObjectID}
	if target == p.hot {
		p.lru.Touch(*req.ObjectID)
	}
	p.mu.Unlock()

	return res, nil
}

func (p *TieredPeer) Seal(ctx context.Context, leaseID string) error {
	p.mu.Lock()
	info, ok := p.leases[leaseID]
	p.mu.Unlock()
	if !ok {
		return fruinaerr.New("seal", fruinaerr.NotFound, nil)
	}
	return info.peer.Seal(ctx, leaseID)
}

func (p *TieredPeer) Discard(ctx context.Context, leaseID string) error {
	p.mu.Lock()
	info, ok := p.leases[leaseID]
	if ok {
		delete(p.leases, leaseID)
	}
	p.mu.Unlock()
	if !ok {
		return fruinaerr.New("discard", fruinaerr.NotFound, nil)
	}

	if err := info.peer.Discard(ctx, leaseID); err != nil {
		return err
	}

	p.mu.Lock()
	delete(p.location, info.objectID)
	p.lru.Remove(info.objectID)
	p.mu.Unlock()

	return nil
}

func (p *TieredPeer) Release(ctx context.Context, leaseID string) error {
	p.mu.Lock()
	info, ok := p.leases[leaseID]
	if ok {
		delete(p.leases, leaseID)
	}
	p.mu.Unlock()
	if !ok {
		return nil
	}
	return info.peer.Release(ctx, leaseID)
}

func (p *TieredPeer) Close() error {
	hotErr := p.hot.Close()
	coldErr := p.cold.Close()
	if hotErr != nil {
		return hotErr
	}
	return coldErr
}

// makeRoom evicts LRU-front hot objects to cold until hot has fewer than
// maxItems resident. An id that is still CREATING (not yet sealed) cannot
// be read to copy it to cold; makeRoom moves such an id to the back of LRU
// and stops, accepting a transient overshoot rather than looping forever
// (spec §4.4 does not resolve this case explicitly).
func (p *TieredPeer) makeRoom(ctx context.Context) error {
	for {
		p.mu.Lock()
		if p.lru.Len() < p.maxItems {
			p.mu.Unlock()
			return nil
		}
		id, ok := p.lru.Front()
		p.mu.Unlock()
		if !ok {
			return nil
		}

		evicted, err := p.migrateToCold(ctx, id)
		if err != nil {
			return err
		}
		if !evicted {
			p.mu.Lock()
			p.lru.Touch(id)
			p.mu.Unlock()
			return nil
		}
	}
}

// migrateToCold copies a sealed object's bytes into cold and discards the
// hot copy, reporting false (no error) if id is still CREATING. Blob I/O
// happens without the tiered lock held, the same way the peer core keeps
// blocking work off its own lock.
func (p *TieredPeer) migrateToCold(ctx context.Context, id string) (bool, error) {
	rres, err := p.hot.Acquire(ctx, AcquireRequest{ObjectID: &id, Access: lease.Read})
	if fruinaerr.Of(err) == fruinaerr.NotSealed {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer p.hot.Release(ctx, rres.Lease.ID)

	buf := make([]byte, rres.Object.SealedSize)
	if len(buf) > 0 {
		if _, err := rres.Blobs[0].ReadAt(ctx, buf, 0); err != nil {
			return false, err
		}
	}

	cres, err := p.cold.Acquire(ctx, AcquireRequest{ObjectID: &id, Access: lease.Create, Meta: rres.Object.Meta})
	if err != nil {
		return false, err
	}
	if len(buf) > 0 {
		if _, err := cres.Blobs[0].WriteAt(ctx, buf, 0); err != nil {
			p.cold.Discard(ctx, cres.Lease.ID)
			return false, err
		}
	}
	if err := p.cold.Seal(ctx, cres.Lease.ID); err != nil {
		p.cold.Discard(ctx, cres.Lease.ID)
		return false, err
	}
	if err := p.cold.Release(ctx, cres.Lease.ID); err != nil {
		return false, err
	}

	wres, err := p.hot.Acquire(ctx, AcquireRequest{ObjectID: &id, Access: lease.Write})
	if err != nil {
		return false, err
	}
	if err := p.hot.Discard(ctx, wres.Lease.ID); err != nil {
		return false, err
	}

	p.mu.Lock()
	p.location[id] = p.cold
	p.lru.Remove(id)
	p.mu.Unlock()

	return true, nil
}

var _ Peer = (*TieredPeer)(nil)
