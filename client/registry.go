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
	"sync"

	"github.com/fruina/fruina/internal/fruinaerr"
	"github.com/fruina/fruina/internal/peer"
)

// Registry is the process-wide "named shared peer" map spec §9 calls out
// as global mutable state: an explicit, owned map rather than a package
// singleton, so tests can spin up their own and tear it down deterministically.
type Registry struct {
	mu    sync.Mutex
	peers map[string]peer.Peer
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{peers: make(map[string]peer.Peer)}
}

// Register names p; fails with fruinaerr.Conflict if name is already taken.
func (r *Registry) Register(name string, p peer.Peer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.peers[name]; exists {
		return fruinaerr.New("registry.register", fruinaerr.Conflict, nil)
	}
	r.peers[name] = p
	return nil
}

// Lookup returns the peer registered under name, if any.
func (r *Registry) Lookup(name string) (peer.Peer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.peers[name]
	return p, ok
}

// TeardownAll closes every registered peer and empties the registry. Meant
// to run once at process exit; the first error encountered is returned,
// but every peer is still given a chance to close.
func (r *Registry) TeardownAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for name, p := range r.peers {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(r.peers, name)
	}
	return firstErr
}
