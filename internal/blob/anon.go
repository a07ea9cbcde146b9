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
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fruina/fruina/internal/fruinaerr"
	"golang.org/x/sys/unix"
)

// AnonMemBlob backs bytes with an anonymous, kernel-visible memory object
// created via memfd_create. The descriptor is the transferable handle; it
// stays valid after Seal so readers can keep mapped views (spec §4.2.1).
type AnonMemBlob struct {
	mu       sync.Mutex
	file     *os.File
	size     int64
	sealed   bool
	mappings [][]byte
}

// NewAnonMemFactory returns a Factory minting AnonMemBlobs.
func NewAnonMemFactory() Factory {
	return anonFactory{}
}

type anonFactory struct{}

func (anonFactory) Create(_ context.Context, objectID string) (Blob, error) {
	fd, err := unix.MemfdCreate("fruina-"+objectID, 0)
	if err != nil {
		return nil, fruinaerr.Wrap("anon.create", err)
	}
	return &AnonMemBlob{file: os.NewFile(uintptr(fd), "fruina-"+objectID)}, nil
}

func (b *AnonMemBlob) WriteAt(_ context.Context, p []byte, offset int64) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sealed {
		return 0, sealedErr("anon.write")
	}
	n, err := b.file.WriteAt(p, offset)
	if err != nil {
		return n, fruinaerr.Wrap("anon.write", err)
	}
	if end := offset + int64(n); end > b.size {
		b.size = end
	}
	return n, nil
}

func (b *AnonMemBlob) ReadAt(_ context.Context, p []byte, offset int64) (int, error) {
	n, err := b.file.ReadAt(p, offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, fruinaerr.Wrap("anon.read", err)
	}
	return n, err
}

func (b *AnonMemBlob) Truncate(_ context.Context, n int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sealed {
		return sealedErr("anon.truncate")
	}
	if err := b.file.Truncate(n); err != nil {
		return fruinaerr.Wrap("anon.truncate", err)
	}
	b.size = n
	return nil
}

func (b *AnonMemBlob) Size() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

func (b *AnonMemBlob) MemoryRegion(mode Mode) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.size == 0 {
		return []byte{}, nil
	}

	prot := unix.PROT_READ
	if mode == ReadWrite {
		if b.sealed {
			return nil, sealedErr("anon.memory_region")
		}
		prot |= unix.PROT_WRITE
	}

	region, err := unix.Mmap(int(b.file.Fd()), 0, int(b.size), prot, unix.MAP_SHARED)
	if err != nil {
		return nil, fruinaerr.Wrap("anon.mmap", err)
	}
	b.mappings = append(b.mappings, region)
	return region, nil
}

func (b *AnonMemBlob) Seal() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.file.Sync(); err != nil {
		return fruinaerr.Wrap("anon.seal", err)
	}

	// A peer on the other end of the FD-passing transport writes through
	// its own dup'd descriptor via pwrite, never through this struct's
	// WriteAt, so b.size can be stale here. fstat the memfd itself rather
	// than trusting the in-struct counter.
	info, err := b.file.Stat()
	if err != nil {
		return fruinaerr.Wrap("anon.seal", err)
	}
	b.size = info.Size()
	b.sealed = true
	return nil
}

func (b *AnonMemBlob) Handle() Handle {
	return Handle{Kind: FileDescriptorHandle, FD: int(b.file.Fd())}
}

func (b *AnonMemBlob) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var firstErr error
	for _, m := range b.mappings {
		if err := unix.Munmap(m); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("anon.munmap: %w", err)
		}
	}
	b.mappings = nil
	if err := b.file.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (b *AnonMemBlob) Delete() error {
	// Anonymous memory has no path to unlink; dropping the last fd (via
	// Close) is what reclaims it. Matches memfd_create semantics: the
	// kernel keeps the pages alive only as long as some fd or mapping
	// references them.
	return b.Close()
}
