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

// MemoryPeer backs every object with an anonymous-memory blob: no
// persistence, pure zero-copy sharing within one process (or across
// processes via the local-socket transport's FD passing).
type MemoryPeer struct {
	*core
}

// NewMemoryPeer returns a Peer whose blobs live in anonymous memory.
func NewMemoryPeer(clk clock.Clock) *MemoryPeer {
	return &MemoryPeer{core: newCore(clk, blob.NewAnonMemFactory())}
}

var _ Peer = (*MemoryPeer)(nil)
