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

// Package lease implements the Lease record of spec §3: a time-bounded
// capability for one access mode against one object. The object/lease
// tables that track leases live in the peer package, not here.
package lease

import "time"

// Access is the capability a Lease grants.
type Access string

const (
	Create Access = "CREATE"
	Read   Access = "READ"
	Write  Access = "WRITE"
)

// Lease is a bounded-lifetime capability granting one access mode against
// one object (spec §3).
type Lease struct {
	ID       string
	ObjectID string
	Access   Access

	// TTL is nil when the lease never expires.
	TTL *time.Duration

	CreatedAt     time.Time
	LastRenewedAt time.Time

	active bool
}

// Active reports whether the lease has not yet been released.
func (l *Lease) Active() bool {
	return l.active
}

// SetActive marks the lease as active; used when minting a new lease.
func (l *Lease) SetActive() {
	l.active = true
}

// SetInactive marks the lease as released or expired (spec §3 invariant 6:
// the two are indistinguishable from outside).
func (l *Lease) SetInactive() {
	l.active = false
}

// Expired reports whether now is past LastRenewedAt+TTL. A lease with no
// TTL never expires.
func (l *Lease) Expired(now time.Time) bool {
	if l.TTL == nil {
		return false
	}
	return now.Sub(l.LastRenewedAt) > *l.TTL
}
