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

// Package object holds the Object record: identity, state, and metadata
// (spec §3). It is a thin value type, analogous to how gcsfuse's
// gcs.Object carries a generation and gcsproxy.MutableObject branches off
// of a src gcs.Object — except an Object here only ever moves forward
// through one transition, CREATING -> SEALED.
package object

// State is an Object's position in its one-way lifecycle.
type State string

const (
	Creating State = "CREATING"
	Sealed   State = "SEALED"
)

// Object is the identity, state, and metadata record the peer core keeps
// for every object it has not yet discarded or GC'd. The bytes themselves
// live in the backing Blob(s); Object never holds them.
type Object struct {
	ID    string
	State State

	// Meta is fixed at CREATE; the "ttl" key (seconds) governs shared-FS
	// lifetime (spec §3, §9).
	Meta map[string]string

	// SealedSize is the byte length at seal time; zero/unset while CREATING.
	SealedSize int64
}

// TTLSeconds returns the `ttl` meta key as seconds, or 0 ("no expiry" /
// "lives forever" depending on context) if absent or unparsable.
func (o *Object) TTLSeconds() int64 {
	return ttlSeconds(o.Meta)
}

func ttlSeconds(meta map[string]string) int64 {
	v, ok := meta["ttl"]
	if !ok {
		return 0
	}
	var n int64
	for _, r := range v {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int64(r-'0')
	}
	return n
}

// Clone returns a deep-enough copy of o that mutating the clone's Meta map
// cannot affect the original — Meta is documented immutable (spec §3) but
// callers across package boundaries (transport encode/decode) need their
// own copy.
func (o *Object) Clone() *Object {
	meta := make(map[string]string, len(o.Meta))
	for k, v := range o.Meta {
		meta[k] = v
	}
	return &Object{ID: o.ID, State: o.State, Meta: meta, SealedSize: o.SealedSize}
}
