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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fruina/fruina/clock"
	"github.com/fruina/fruina/internal/fruinaerr"
	"github.com/fruina/fruina/internal/lease"
	"github.com/fruina/fruina/internal/object"
	"github.com/stretchr/testify/require"
)

func TestSharedFSPeerCreateSealReadAcrossPeers(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	clk := clock.NewSimulatedClock(time.Unix(0, 0))

	writer, err := NewSharedFSPeer(root, clk, 0)
	require.NoError(t, err)
	defer writer.Close()

	created, err := writer.Acquire(ctx, AcquireRequest{Access: lease.Create, Meta: map[string]string{"k": "v"}})
	require.NoError(t, err)
	_, err = created.Blobs[0].WriteAt(ctx, []byte("shared"), 0)
	require.NoError(t, err)
	require.NoError(t, writer.Seal(ctx, created.Lease.ID))

	// A second peer instance rooted at the same directory sees the sealed
	// object purely by scanning the filesystem.
	reader, err := NewSharedFSPeer(root, clk, 0)
	require.NoError(t, err)
	defer reader.Close()

	read, err := reader.Acquire(ctx, AcquireRequest{ObjectID: &created.Object.ID, Access: lease.Read})
	require.NoError(t, err)
	require.Equal(t, object.Sealed, read.Object.State)
	require.Equal(t, "v", read.Object.Meta["k"])

	buf := make([]byte, 6)
	_, err = read.Blobs[0].ReadAt(ctx, buf, 0)
	require.NoError(t, err)
	require.Equal(t, "shared", string(buf))
}

func TestSharedFSPeerReadBeforeSealNotFound(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	clk := clock.NewSimulatedClock(time.Unix(0, 0))

	p, err := NewSharedFSPeer(root, clk, 0)
	require.NoError(t, err)
	defer p.Close()

	created, err := p.Acquire(ctx, AcquireRequest{Access: lease.Create})
	require.NoError(t, err)

	_, err = p.Acquire(ctx, AcquireRequest{ObjectID: &created.Object.ID, Access: lease.Read})
	require.Equal(t, fruinaerr.NotFound, fruinaerr.Of(err))
}

func TestSharedFSPeerCreateDuplicateIDConflicts(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	clk := clock.NewSimulatedClock(time.Unix(0, 0))

	p, err := NewSharedFSPeer(root, clk, 0)
	require.NoError(t, err)
	defer p.Close()

	id := "dup-id"
	_, err = p.Acquire(ctx, AcquireRequest{ObjectID: &id, Access: lease.Create})
	require.NoError(t, err)

	_, err = p.Acquire(ctx, AcquireRequest{ObjectID: &id, Access: lease.Create})
	require.Equal(t, fruinaerr.Conflict, fruinaerr.Of(err))
}

func TestSharedFSPeerDiscardRemovesFile(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	clk := clock.NewSimulatedClock(time.Unix(0, 0))

	p, err := NewSharedFSPeer(root, clk, 0)
	require.NoError(t, err)
	defer p.Close()

	created, err := p.Acquire(ctx, AcquireRequest{Access: lease.Create})
	require.NoError(t, err)
	require.NoError(t, p.Discard(ctx, created.Lease.ID))

	matches, err := filepath.Glob(filepath.Join(root, "leases", created.Object.ID+".*"))
	require.NoError(t, err)
	require.Empty(t, matches)
}

func TestSharedFSPeerGCReapsExpiredFiles(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	clk := clock.NewSimulatedClock(time.Now())

	p, err := NewSharedFSPeer(root, clk, time.Hour) // manual sweep below, timer never fires
	require.NoError(t, err)
	defer p.Close()

	created, err := p.Acquire(ctx, AcquireRequest{Access: lease.Create, Meta: map[string]string{"ttl": "1"}})
	require.NoError(t, err)
	require.NoError(t, p.Seal(ctx, created.Lease.ID))

	dataPath := filepath.Join(root, "data", created.Object.ID)
	old := clk.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(dataPath, old, old))

	p.sweepDir(p.dataDir)

	_, statErr := os.Stat(dataPath)
	require.True(t, os.IsNotExist(statErr))
}
