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
	"testing"
	"time"

	"github.com/fruina/fruina/clock"
	"github.com/fruina/fruina/internal/fruinaerr"
	"github.com/fruina/fruina/internal/lease"
	"github.com/stretchr/testify/require"
)

func newTestTiered(maxItems int) (*TieredPeer, *MemoryPeer, *MemoryPeer) {
	hot := NewMemoryPeer(clock.NewSimulatedClock(time.Unix(0, 0)))
	cold := NewMemoryPeer(clock.NewSimulatedClock(time.Unix(0, 0)))
	return NewTieredPeer(hot, cold, maxItems), hot, cold
}

func createSealed(t *testing.T, ctx context.Context, p Peer, content string) string {
	res, err := p.Acquire(ctx, AcquireRequest{Access: lease.Create})
	require.NoError(t, err)
	_, err = res.Blobs[0].WriteAt(ctx, []byte(content), 0)
	require.NoError(t, err)
	require.NoError(t, p.Seal(ctx, res.Lease.ID))
	return res.Object.ID
}

func TestTieredPeerEvictsLeastRecentlyUsedToCold(t *testing.T) {
	ctx := context.Background()
	tiered, hot, cold := newTestTiered(2)

	o1 := createSealed(t, ctx, tiered, "one")
	o2 := createSealed(t, ctx, tiered, "two")
	o3 := createSealed(t, ctx, tiered, "three")

	_, err := hot.Acquire(ctx, AcquireRequest{ObjectID: &o2, Access: lease.Read})
	require.NoError(t, err)
	_, err = hot.Acquire(ctx, AcquireRequest{ObjectID: &o3, Access: lease.Read})
	require.NoError(t, err)

	_, err = hot.Acquire(ctx, AcquireRequest{ObjectID: &o1, Access: lease.Read})
	require.Equal(t, fruinaerr.NotFound, fruinaerr.Of(err))

	coldRes, err := cold.Acquire(ctx, AcquireRequest{ObjectID: &o1, Access: lease.Read})
	require.NoError(t, err)
	buf := make([]byte, 3)
	_, err = coldRes.Blobs[0].ReadAt(ctx, buf, 0)
	require.NoError(t, err)
	require.Equal(t, "one", string(buf))
}

func TestTieredPeerReadRoutesThroughWhicheverTierHolds(t *testing.T) {
	ctx := context.Background()
	tiered, _, _ := newTestTiered(2)

	o1 := createSealed(t, ctx, tiered, "one")
	createSealed(t, ctx, tiered, "two")
	createSealed(t, ctx, tiered, "three") // evicts o1 to cold

	res, err := tiered.Acquire(ctx, AcquireRequest{ObjectID: &o1, Access: lease.Read})
	require.NoError(t, err)

	buf := make([]byte, 3)
	_, err = res.Blobs[0].ReadAt(ctx, buf, 0)
	require.NoError(t, err)
	require.Equal(t, "one", string(buf))
}

func TestTieredPeerDiscardRemovesFromWhicheverTier(t *testing.T) {
	ctx := context.Background()
	tiered, _, _ := newTestTiered(2)

	o1 := createSealed(t, ctx, tiered, "one")
	createSealed(t, ctx, tiered, "two")
	createSealed(t, ctx, tiered, "three") // evicts o1 to cold

	wres, err := tiered.Acquire(ctx, AcquireRequest{ObjectID: &o1, Access: lease.Write})
	require.NoError(t, err)
	require.NoError(t, tiered.Discard(ctx, wres.Lease.ID))

	_, err = tiered.Acquire(ctx, AcquireRequest{ObjectID: &o1, Access: lease.Read})
	require.Equal(t, fruinaerr.NotFound, fruinaerr.Of(err))
}
