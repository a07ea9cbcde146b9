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
	"github.com/fruina/fruina/internal/object"
	"github.com/stretchr/testify/require"
)

func TestFilesystemPeerCreateWriteSealRead(t *testing.T) {
	ctx := context.Background()
	p := NewFilesystemPeer(t.TempDir(), clock.NewSimulatedClock(time.Unix(0, 0)))

	created, err := p.Acquire(ctx, AcquireRequest{Access: lease.Create, Meta: map[string]string{"k": "v"}})
	require.NoError(t, err)
	require.Len(t, created.Blobs, 1)

	_, err = created.Blobs[0].WriteAt(ctx, []byte("hello, file"), 0)
	require.NoError(t, err)
	require.NoError(t, p.Seal(ctx, created.Lease.ID))

	read, err := p.Acquire(ctx, AcquireRequest{ObjectID: &created.Object.ID, Access: lease.Read})
	require.NoError(t, err)
	require.Equal(t, object.Sealed, read.Object.State)
	require.EqualValues(t, len("hello, file"), read.Object.SealedSize)

	buf := make([]byte, len("hello, file"))
	_, err = read.Blobs[0].ReadAt(ctx, buf, 0)
	require.NoError(t, err)
	require.Equal(t, "hello, file", string(buf))
}

func TestFilesystemPeerDiscardRemovesFile(t *testing.T) {
	ctx := context.Background()
	p := NewFilesystemPeer(t.TempDir(), clock.NewSimulatedClock(time.Unix(0, 0)))

	created, err := p.Acquire(ctx, AcquireRequest{Access: lease.Create})
	require.NoError(t, err)
	require.NoError(t, p.Discard(ctx, created.Lease.ID))

	_, err = p.Acquire(ctx, AcquireRequest{ObjectID: &created.Object.ID, Access: lease.Read})
	require.Equal(t, fruinaerr.NotFound, fruinaerr.Of(err))
}

// TestCoreSealOnExpiredLeaseReturnsExpired is spec §4.1's explicit tie-break:
// a lease past its TTL fails the op with Expired, not NotFound, even though
// the lease is also dropped from the table as part of that failure.
func TestCoreSealOnExpiredLeaseReturnsExpired(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewSimulatedClock(time.Unix(0, 0))
	p := NewMemoryPeer(clk)

	ttl := time.Second
	created, err := p.Acquire(ctx, AcquireRequest{Access: lease.Create, TTL: &ttl})
	require.NoError(t, err)

	clk.AdvanceTime(2 * time.Second)

	require.Equal(t, fruinaerr.Expired, fruinaerr.Of(p.Seal(ctx, created.Lease.ID)))
	// The lease is gone now, so a second attempt sees NotFound, not Expired.
	require.Equal(t, fruinaerr.NotFound, fruinaerr.Of(p.Seal(ctx, created.Lease.ID)))
}

func TestCoreDiscardOnExpiredLeaseReturnsExpired(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewSimulatedClock(time.Unix(0, 0))
	p := NewMemoryPeer(clk)

	ttl := time.Second
	created, err := p.Acquire(ctx, AcquireRequest{Access: lease.Create, TTL: &ttl})
	require.NoError(t, err)

	clk.AdvanceTime(2 * time.Second)

	require.Equal(t, fruinaerr.Expired, fruinaerr.Of(p.Discard(ctx, created.Lease.ID)))
}
