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
	"testing"
	"time"

	"github.com/fruina/fruina/clock"
	"github.com/fruina/fruina/internal/fruinaerr"
	"github.com/fruina/fruina/internal/peer"
	"github.com/stretchr/testify/require"
)

// TestScenarioCreateWriteSealGetDelete is spec §8 scenario #1.
func TestScenarioCreateWriteSealGetDelete(t *testing.T) {
	ctx := context.Background()
	c := New(peer.NewMemoryPeer(clock.NewSimulatedClock(time.Unix(0, 0))))
	defer c.Close()

	obj, err := c.Create(ctx, nil, nil)
	require.NoError(t, err)

	_, err = obj.Write(ctx, []byte("Hello, Fruina!"))
	require.NoError(t, err)
	require.NoError(t, obj.Seal(ctx))
	require.NoError(t, obj.Close(ctx))

	got, err := c.Get(ctx, obj.ID())
	require.NoError(t, err)
	buf := make([]byte, len("Hello, Fruina!"))
	_, err = got.ReadAt(ctx, buf, 0)
	require.NoError(t, err)
	require.Equal(t, "Hello, Fruina!", string(buf))
	require.NoError(t, got.Close(ctx))

	require.NoError(t, c.Delete(ctx, obj.ID()))

	_, err = c.Get(ctx, obj.ID())
	require.Equal(t, fruinaerr.NotFound, fruinaerr.Of(err))
}

// TestScenarioTwoSharedFSPeersSeeEachOthersWrites is spec §8 scenario #2,
// using the Registry to stand in for two separate processes sharing one
// shared-FS root (§12's supplemented feature).
func TestScenarioTwoSharedFSPeersSeeEachOthersWrites(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	clk := clock.NewSimulatedClock(time.Unix(0, 0))

	peerA, err := peer.NewSharedFSPeer(root, clk, 0)
	require.NoError(t, err)
	peerB, err := peer.NewSharedFSPeer(root, clk, 0)
	require.NoError(t, err)

	reg := NewRegistry()
	require.NoError(t, reg.Register("a", peerA))
	require.NoError(t, reg.Register("b", peerB))
	defer reg.TeardownAll()

	a := New(peerA)
	b := New(peerB)

	obj, err := a.Create(ctx, nil, map[string]string{"author": "demo"})
	require.NoError(t, err)
	_, err = obj.Write(ctx, []byte("Hello, Shared World!"))
	require.NoError(t, err)
	require.NoError(t, obj.Seal(ctx))
	require.NoError(t, obj.Close(ctx))

	seen, err := b.Get(ctx, obj.ID())
	require.NoError(t, err)
	require.Equal(t, "demo", seen.Meta()["author"])

	buf := make([]byte, len("Hello, Shared World!"))
	_, err = seen.ReadAt(ctx, buf, 0)
	require.NoError(t, err)
	require.Equal(t, "Hello, Shared World!", string(buf))
}

// TestScenarioSharedFSTTLExpiry is spec §8 scenario #3. The shared-FS
// peer's GC ticks on real wall-clock time, so the TTL comparison itself
// uses a simulated clock advanced well past the TTL rather than an actual
// multi-second sleep, while still exercising the real background sweep.
func TestScenarioSharedFSTTLExpiry(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	clk := clock.NewSimulatedClock(time.Now())

	writer, err := peer.NewSharedFSPeer(root, clk, 20*time.Millisecond)
	require.NoError(t, err)
	defer writer.Close()

	a := New(writer)
	obj, err := a.Create(ctx, nil, map[string]string{"ttl": "2"})
	require.NoError(t, err)
	_, err = obj.Write(ctx, []byte("x"))
	require.NoError(t, err)
	require.NoError(t, obj.Seal(ctx))
	require.NoError(t, obj.Close(ctx))

	clk.AdvanceTime(4 * time.Second)
	time.Sleep(100 * time.Millisecond) // let the GC ticker observe the advance

	reader, err := peer.NewSharedFSPeer(root, clk, 0)
	require.NoError(t, err)
	defer reader.Close()

	b := New(reader)
	_, err = b.Get(ctx, obj.ID())
	require.Equal(t, fruinaerr.NotFound, fruinaerr.Of(err))
}

// TestScenarioBadLeaseAndNotSealed is spec §8 scenario #6.
func TestScenarioBadLeaseAndNotSealed(t *testing.T) {
	ctx := context.Background()
	c := New(peer.NewMemoryPeer(clock.NewSimulatedClock(time.Unix(0, 0))))
	defer c.Close()

	obj, err := c.Create(ctx, nil, nil)
	require.NoError(t, err)
	_, err = obj.Write(ctx, []byte("x"))
	require.NoError(t, err)
	require.NoError(t, obj.Seal(ctx))
	require.NoError(t, obj.Close(ctx))

	read, err := c.Get(ctx, obj.ID())
	require.NoError(t, err)
	require.Equal(t, fruinaerr.BadLease, fruinaerr.Of(read.Seal(ctx)))
	require.NoError(t, read.Close(ctx))

	second, err := c.Create(ctx, nil, nil)
	require.NoError(t, err)
	defer second.Close(ctx)

	_, err = c.Get(ctx, second.ID())
	require.Equal(t, fruinaerr.NotSealed, fruinaerr.Of(err))
}

func TestRegistryRegisterConflictAndLookup(t *testing.T) {
	reg := NewRegistry()
	p := peer.NewMemoryPeer(clock.NewSimulatedClock(time.Unix(0, 0)))

	require.NoError(t, reg.Register("main", p))
	require.Equal(t, fruinaerr.Conflict, fruinaerr.Of(reg.Register("main", p)))

	got, ok := reg.Lookup("main")
	require.True(t, ok)
	require.Same(t, p, got.(*peer.MemoryPeer))

	require.NoError(t, reg.TeardownAll())
	_, ok = reg.Lookup("main")
	require.False(t, ok)
}

// TestWithObjectReleasesOnError confirms WithObject's guaranteed-release
// contract even when fn returns an error.
func TestWithObjectReleasesOnError(t *testing.T) {
	ctx := context.Background()
	p := peer.NewMemoryPeer(clock.NewSimulatedClock(time.Unix(0, 0)))
	c := New(p)
	defer c.Close()

	sentinel := fruinaerr.New("test", fruinaerr.IO, nil)
	var held *Object
	err := c.WithObject(ctx, peer.AcquireRequest{Access: "CREATE"}, func(o *Object) error {
		held = o
		return sentinel
	})
	require.Equal(t, sentinel, err)
	require.True(t, held.closed)
}
