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

package blob

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSharedFSRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "obj1")

	b, err := CreateSharedFS(path, map[string]string{"author": "demo"}, 5000)
	require.NoError(t, err)

	_, err = b.WriteAt(ctx, []byte("Hello, Fruina!"), 0)
	require.NoError(t, err)
	require.NoError(t, b.Seal(0))
	require.NoError(t, b.Close())

	reopened, err := OpenSharedFS(path)
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, "demo", reopened.Meta()["author"])
	assert.True(t, reopened.sealed)
	assert.EqualValues(t, 14, reopened.Size())

	buf := make([]byte, 14)
	n, err := reopened.ReadAt(ctx, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "Hello, Fruina!", string(buf[:n]))
}

func TestSharedFSHeaderLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "obj2")
	b, err := CreateSharedFS(path, map[string]string{"k": "v"}, 1000)
	require.NoError(t, err)
	defer b.Close()

	assert.Zero(t, b.dataOffset%pageSize)
	assert.GreaterOrEqual(t, b.dataOffset, int64(headerSize+len(`{"k":"v"}`)))
}

func TestSharedFSWriteAfterSealFails(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "obj3")
	b, err := CreateSharedFS(path, nil, 0)
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, b.Seal(10))

	_, err = b.WriteAt(ctx, []byte("x"), 0)
	assert.Error(t, err)
}

func TestSharedFSSealReplacesTTLWithObjectTTL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "obj4")
	b, err := CreateSharedFS(path, map[string]string{"ttl": "2"}, 60000)
	require.NoError(t, err)
	require.NoError(t, b.Seal(2))
	require.NoError(t, b.Close())

	reopened, err := OpenSharedFS(path)
	require.NoError(t, err)
	defer reopened.Close()

	assert.EqualValues(t, 2000, reopened.TTLMillis())
}
