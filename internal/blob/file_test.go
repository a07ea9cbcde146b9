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
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileBlobSealAndReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	f, err := NewFileFactory(dir).Create(ctx, "obj1")
	require.NoError(t, err)

	_, err = f.WriteAt(ctx, []byte("payload"), 0)
	require.NoError(t, err)
	require.NoError(t, f.Seal())
	path := f.Handle().Path
	require.NoError(t, f.Close())

	reopened, err := OpenFileBlob(path)
	require.NoError(t, err)
	defer reopened.Close()

	buf := make([]byte, 7)
	_, err = reopened.ReadAt(ctx, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(buf))
}

func TestFileBlobDeleteRemovesFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	f, err := NewFileFactory(dir).Create(ctx, "obj2")
	require.NoError(t, err)
	path := f.Handle().Path

	require.NoError(t, f.Delete())

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
