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

// Package blob implements the three blob backends of spec §4.2: anonymous
// memory (zero-copy, FD-addressable), a plain filesystem file, and the
// framed shared-filesystem format multiple processes can discover through
// a shared directory.
//
// The capability shape is lifted from gcsfuse's lease.ReadLease /
// lease.ReadWriteLease (read/write/size/seal over an *os.File) and
// generalized with the memory_region/handle/delete operations spec.md
// layers on top.
package blob

import (
	"context"

	"github.com/fruina/fruina/internal/fruinaerr"
)

// Mode selects how a MemoryRegion view is mapped.
type Mode int

const (
	ReadOnly Mode = iota
	ReadWrite
)

// HandleKind discriminates the Handle tagged union (spec §3 Blob.Handle).
type HandleKind int

const (
	FileDescriptorHandle HandleKind = iota
	FilesystemPathHandle
	SharedFSHandle
)

// Handle is the transferable reference to a blob's bytes: a duplicable file
// descriptor, a filesystem path, or a path plus the shared-FS data offset.
type Handle struct {
	Kind HandleKind

	// Valid when Kind == FileDescriptorHandle. Owned by whoever holds the
	// Handle; duplicate before handing to another owner (spec §9).
	FD int

	// Valid when Kind == FilesystemPathHandle or SharedFSHandle.
	Path string

	// Valid when Kind == SharedFSHandle: byte offset of the data region.
	DataOffset int64
}

// Blob is the capability set every backend exposes (spec §3 "Blob").
type Blob interface {
	// WriteAt writes p at offset, extending the blob if necessary. Fails
	// with fruinaerr.Sealed if the blob has been sealed.
	WriteAt(ctx context.Context, p []byte, offset int64) (int, error)

	// ReadAt reads len(p) bytes (or fewer, at EOF) starting at offset.
	ReadAt(ctx context.Context, p []byte, offset int64) (int, error)

	// Truncate resizes the blob to n bytes.
	Truncate(ctx context.Context, n int64) error

	// Size returns the current byte length of the data region.
	Size() int64

	// MemoryRegion returns a zero-copy mapped view of the entire current
	// content. An empty blob returns an empty, unmapped slice (spec
	// §4.2.1) since mmap rejects zero-length mappings.
	MemoryRegion(mode Mode) ([]byte, error)

	// Seal flushes and freezes the blob's bytes in place.
	Seal() error

	// Handle returns this blob's transferable reference.
	Handle() Handle

	// Close releases any in-process resources (mmaps, descriptors) this
	// view holds, without deleting the underlying bytes.
	Close() error

	// Delete removes the backing bytes entirely. Requires Close to have
	// not yet been called, or to be a no-op afterwards depending on
	// backend; callers always Delete before or instead of Close.
	Delete() error
}

// Factory creates a fresh, empty Blob for CREATE, keyed by object id.
// Each peer variant supplies the Factory matching its backend.
type Factory interface {
	Create(ctx context.Context, objectID string) (Blob, error)
}

func sealedErr(op string) error {
	return fruinaerr.New(op, fruinaerr.Sealed, nil)
}
