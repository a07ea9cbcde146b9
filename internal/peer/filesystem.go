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
	"github.com/fruina/fruina/clock"
	"github.com/fruina/fruina/internal/blob"
)

// FilesystemPeer backs every object with a plain file under one directory
// (spec §4.2.2), one file per object id, named by the transferable path
// rather than a passed descriptor. A natural cold tier for TieredPeer: an
// evicted object only needs to be reachable by path, not shared live.
type FilesystemPeer struct {
	*core
}

// NewFilesystemPeer returns a Peer whose blobs are plain files under dir.
func NewFilesystemPeer(dir string, clk clock.Clock) *FilesystemPeer {
	return &FilesystemPeer{core: newCore(clk, blob.NewFileFactory(dir))}
}

var _ Peer = (*FilesystemPeer)(nil)
