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

package transport

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"

	"github.com/fruina/fruina/internal/blob"
	"github.com/fruina/fruina/internal/fruinaerr"
	"golang.org/x/sys/unix"
)

// fdBlob is the client-side view of a blob.FileDescriptorHandle received
// over SCM_RIGHTS: the dup'd fd is ours to mmap and close, exactly like
// the server's own blob.AnonMemBlob, just without the memfd_create step
// (the memory object already exists; we only received a reference to it).
type fdBlob struct {
	mu       sync.Mutex
	file     *os.File
	size     int64
	sealed   bool
	mappings [][]byte
}

func newFDBlob(fd int, size int64, sealed bool) *fdBlob {
	return &fdBlob{file: os.NewFile(uintptr(fd), "fruina-client-fd"), size: size, sealed: sealed}
}

func (b *fdBlob) WriteAt(_ context.Context, p []byte, offset int64) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sealed {
		return 0, fruinaerr.New("fdview.write", fruinaerr.Sealed, nil)
	}
	n, err := b.file.WriteAt(p, offset)
	if err != nil {
		return n, fruinaerr.Wrap("fdview.write", err)
	}
	if end := offset + int64(n); end > b.size {
		b.size = end
	}
	return n, nil
}

func (b *fdBlob) ReadAt(_ context.Context, p []byte, offset int64) (int, error) {
	n, err := b.file.ReadAt(p, offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, fruinaerr.Wrap("fdview.read", err)
	}
	return n, err
}

func (b *fdBlob) Truncate(_ context.Context, n int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sealed {
		return fruinaerr.New("fdview.truncate", fruinaerr.Sealed, nil)
	}
	if err := b.file.Truncate(n); err != nil {
		return fruinaerr.Wrap("fdview.truncate", err)
	}
	b.size = n
	return nil
}

func (b *fdBlob) Size() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

func (b *fdBlob) MemoryRegion(mode blob.Mode) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.size == 0 {
		return []byte{}, nil
	}
	prot := unix.PROT_READ
	if mode == blob.ReadWrite {
		if b.sealed {
			return nil, fruinaerr.New("fdview.memory_region", fruinaerr.Sealed, nil)
		}
		prot |= unix.PROT_WRITE
	}
	region, err := unix.Mmap(int(b.file.Fd()), 0, int(b.size), prot, unix.MAP_SHARED)
	if err != nil {
		return nil, fruinaerr.Wrap("fdview.mmap", err)
	}
	b.mappings = append(b.mappings, region)
	return region, nil
}

// Seal is a local-only flush: the state-machine transition to SEALED
// happens over the wire via Client.Seal, not here.
func (b *fdBlob) Seal() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.file.Sync(); err != nil {
		return fruinaerr.Wrap("fdview.seal", err)
	}
	b.sealed = true
	return nil
}

func (b *fdBlob) Handle() blob.Handle {
	return blob.Handle{Kind: blob.FileDescriptorHandle, FD: int(b.file.Fd())}
}

func (b *fdBlob) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var firstErr error
	for _, m := range b.mappings {
		if err := unix.Munmap(m); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	b.mappings = nil
	if err := b.file.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Delete only closes this client-local view; the object itself is removed
// only by the peer that owns it, via Client.Discard.
func (b *fdBlob) Delete() error { return b.Close() }

var _ blob.Blob = (*fdBlob)(nil)

// pathBlob is the client-side view of a blob.FilesystemPathHandle: a plain
// file opened directly by path, mirroring blob.FileBlob's capability set.
type pathBlob struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	size   int64
	sealed bool
}

func newPathBlob(path string, size int64, sealed bool) (*pathBlob, error) {
	flag := os.O_RDWR
	if sealed {
		flag = os.O_RDONLY
	}
	f, err := os.OpenFile(path, flag, 0o644)
	if err != nil {
		return nil, fruinaerr.Wrap("pathview.open", err)
	}
	return &pathBlob{path: path, file: f, size: size, sealed: sealed}, nil
}

func (b *pathBlob) WriteAt(_ context.Context, p []byte, offset int64) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sealed {
		return 0, fruinaerr.New("pathview.write", fruinaerr.Sealed, nil)
	}
	n, err := b.file.WriteAt(p, offset)
	if err != nil {
		return n, fruinaerr.Wrap("pathview.write", err)
	}
	if end := offset + int64(n); end > b.size {
		b.size = end
	}
	return n, nil
}

func (b *pathBlob) ReadAt(_ context.Context, p []byte, offset int64) (int, error) {
	n, err := b.file.ReadAt(p, offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, fruinaerr.Wrap("pathview.read", err)
	}
	return n, err
}

func (b *pathBlob) Truncate(_ context.Context, n int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sealed {
		return fruinaerr.New("pathview.truncate", fruinaerr.Sealed, nil)
	}
	if err := b.file.Truncate(n); err != nil {
		return fruinaerr.Wrap("pathview.truncate", err)
	}
	b.size = n
	return nil
}

func (b *pathBlob) Size() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

func (b *pathBlob) MemoryRegion(mode blob.Mode) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.size == 0 {
		return []byte{}, nil
	}
	prot := unix.PROT_READ
	if mode == blob.ReadWrite {
		if b.sealed {
			return nil, fruinaerr.New("pathview.memory_region", fruinaerr.Sealed, nil)
		}
		prot |= unix.PROT_WRITE
	}
	return unix.Mmap(int(b.file.Fd()), 0, int(b.size), prot, unix.MAP_SHARED)
}

func (b *pathBlob) Seal() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.file.Sync(); err != nil {
		return fruinaerr.Wrap("pathview.seal", err)
	}
	b.sealed = true
	return nil
}

func (b *pathBlob) Handle() blob.Handle {
	return blob.Handle{Kind: blob.FilesystemPathHandle, Path: b.path}
}

func (b *pathBlob) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.file.Close()
}

func (b *pathBlob) Delete() error { return b.Close() }

var _ blob.Blob = (*pathBlob)(nil)

// sharedFSClientBlob adapts blob.SharedFSBlob's one-argument Seal to the
// no-argument blob.Blob contract, the same shadowing trick
// peer.sharedFSBlobView uses server-side: the local Seal does nothing,
// since the authoritative CREATING->SEALED transition is the wire-level
// Client.Seal call.
type sharedFSClientBlob struct {
	*blob.SharedFSBlob
}

func (v *sharedFSClientBlob) Seal() error { return nil }

var _ blob.Blob = (*sharedFSClientBlob)(nil)
