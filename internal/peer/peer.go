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

// Package peer defines the Peer contract (spec §4.1) and its variants: an
// in-process memory peer, a shared-filesystem peer, and a tiered composite.
package peer

import (
	"context"
	"time"

	"github.com/fruina/fruina/internal/blob"
	"github.com/fruina/fruina/internal/lease"
	"github.com/fruina/fruina/internal/object"
)

// AcquireRequest describes an acquire call (spec §4.1's first column).
type AcquireRequest struct {
	// ObjectID is nil for "mint a new id" CREATE calls.
	ObjectID *string
	Access   lease.Access
	TTL      *time.Duration

	// Meta is only consulted on CREATE.
	Meta map[string]string
}

// AcquireResult is what a successful acquire hands back: the lease, the
// object record, and the backing blob(s) to map (spec §3: "blobs: ordered
// non-empty sequence").
type AcquireResult struct {
	Lease  *lease.Lease
	Object *object.Object
	Blobs  []blob.Blob
}

// Peer is the contract every backend (memory, shared-FS, tiered) speaks
// (spec §4.1).
type Peer interface {
	Acquire(ctx context.Context, req AcquireRequest) (*AcquireResult, error)
	Seal(ctx context.Context, leaseID string) error
	Discard(ctx context.Context, leaseID string) error
	Release(ctx context.Context, leaseID string) error

	// Close stops any background work (e.g. the shared-FS GC loop). Peers
	// with no background work treat this as a no-op.
	Close() error
}
