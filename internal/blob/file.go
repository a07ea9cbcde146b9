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
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/fruina/fruina/internal/fruinaerr"
	"golang.org/x/sys/unix"
)

// FileBlob backs bytes with a regular file whose path is the transferable
// handle (spec §4.2.2). Backing blob for peer.FilesystemPeer.
type FileBlob struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	size   int64
	sealed bool
}

// NewFileFactory returns a Factory creating FileBlobs under dir, one file
// per object id.
func NewFileFactory(dir string) Factory {
	return fileFactory{dir: dir}
}

type fileFactory struct{ dir string }

func (f fileFactory) Create(_ context.Context, objectID string) (Blob, error) {
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return nil, fruinaerr.Wrap("file.create", err)
	}
	path := filepath.Join(f.dir, objectID)
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fruinaerr.Wrap("file.create", err)
	}
	return &FileBlob{path: path, file: file}, nil
}

// OpenFileBlob reopens an existing, already-sealed file at path read-only.
func OpenFileBlob(path string) (*FileBlob, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fruinaerr.Wrap("file.open", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fruinaerr.Wrap("file.open", err)
	}
	return &FileBlob{path: path, file: file, size: info.Size(), sealed: true}, nil
}

func (b *FileBlob) WriteAt(_ context.Context, p []byte, offset int64) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sealed {
		return 0, sealedErr("file.write")
	}
	n, err := b.file.WriteAt(p, offset)
	if err != nil {
		return n, fruinaerr.Wrap("file.write", err)
	}
	if end := offset + int64(n); end > b.size {
		b.size = end
	}
	return n, nil
}

func (b *FileBlob) ReadAt(_ context.Context, p []byte, offset int64) (int, error) {
	n, err := b.file.ReadAt(p, offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, fruinaerr.Wrap("file.read", err)
	}
	return n, err
}

func (b *FileBlob) Truncate(_ context.Context, n int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sealed {
		return sealedErr("file.truncate")
	}
	if err := b.file.Truncate(n); err != nil {
		return fruinaerr.Wrap("file.truncate", err)
	}
	b.size = n
	return nil
}

func (b *FileBlob) Size() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

func (b *FileBlob) MemoryRegion(mode Mode) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.size == 0 {
		return []byte{}, nil
	}

	prot := unix.PROT_READ
	if mode == ReadWrite {
		if b.sealed {
			return nil, sealedErr("file.memory_region")
		}
		prot |= unix.PROT_WRITE
	}

	return unix.Mmap(int(b.file.Fd()), 0, int(b.size), prot, unix.MAP_SHARED)
}

func (b *FileBlob) Seal() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.file.Sync(); err != nil {
		return fruinaerr.Wrap("file.seal", err)
	}
	if err := b.file.Close(); err != nil {
		return fruinaerr.Wrap("file.seal", err)
	}
	f, err := os.Open(b.path)
	if err != nil {
		return fruinaerr.Wrap("file.seal", err)
	}

	// A client holding this blob's FilesystemPathHandle writes through its
	// own separately opened *os.File, never through this struct's WriteAt,
	// so b.size can be stale here. fstat the reopened file instead of
	// trusting the in-struct counter.
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fruinaerr.Wrap("file.seal", err)
	}

	b.file = f
	b.size = info.Size()
	b.sealed = true
	return nil
}

func (b *FileBlob) Handle() Handle {
	return Handle{Kind: FilesystemPathHandle, Path: b.path}
}

func (b *FileBlob) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.file.Close()
}

func (b *FileBlob) Delete() error {
	b.mu.Lock()
	path := b.path
	b.mu.Unlock()

	b.file.Close()
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fruinaerr.Wrap("file.delete", err)
	}
	return nil
}
