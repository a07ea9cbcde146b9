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
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fruina/fruina/internal/fruinaerr"
	"golang.org/x/sys/unix"
)

// On-disk framing (spec §6.2): fixed 32-byte header, network byte order.
const (
	magic      = "FRUINA!!"
	headerSize = 32
	pageSize   = 4096

	flagSealed uint8 = 1 << 0
)

// header is the fixed portion of the shared-FS file format.
type header struct {
	Version    uint16
	Flags      uint8
	TTLMillis  uint32
	MetaLen    uint64
	DataOffset uint64
}

func (h header) sealed() bool { return h.Flags&flagSealed != 0 }

func encodeHeader(h header) []byte {
	buf := make([]byte, headerSize)
	copy(buf[0:8], magic)
	binary.BigEndian.PutUint16(buf[8:10], h.Version)
	buf[10] = h.Flags
	binary.BigEndian.PutUint32(buf[11:15], h.TTLMillis)
	// buf[15] is the reserved byte.
	binary.BigEndian.PutUint64(buf[16:24], h.MetaLen)
	binary.BigEndian.PutUint64(buf[24:32], h.DataOffset)
	return buf
}

func decodeHeader(buf []byte) (header, error) {
	if len(buf) < headerSize {
		return header{}, fmt.Errorf("sharedfs: short header (%d bytes)", len(buf))
	}
	if string(buf[0:8]) != magic {
		return header{}, fmt.Errorf("sharedfs: bad magic %q", buf[0:8])
	}
	return header{
		Version:    binary.BigEndian.Uint16(buf[8:10]),
		Flags:      buf[10],
		TTLMillis:  binary.BigEndian.Uint32(buf[11:15]),
		MetaLen:    binary.BigEndian.Uint64(buf[16:24]),
		DataOffset: binary.BigEndian.Uint64(buf[24:32]),
	}, nil
}

func dataOffsetFor(metaLen int) int64 {
	n := int64(headerSize + metaLen)
	if rem := n % pageSize; rem != 0 {
		n += pageSize - rem
	}
	return n
}

// SharedFSBlob backs bytes with a single framed file that any process
// sharing the directory can open, parse, and read without any shared
// in-memory state (spec §4.2.3).
type SharedFSBlob struct {
	mu         sync.Mutex
	path       string
	file       *os.File
	dataOffset int64
	size       int64
	sealed     bool
	ttlMillis  uint32
	meta       map[string]string
}

// CreateSharedFS writes a new framed file at path with the given metadata
// and ttlMillis (the create path uses the lease TTL per spec §4.3, the
// seal path overwrites it with the object TTL).
func CreateSharedFS(path string, meta map[string]string, ttlMillis uint32) (*SharedFSBlob, error) {
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return nil, fruinaerr.New("sharedfs.create", fruinaerr.IO, err)
	}

	dataOffset := dataOffsetFor(len(metaBytes))
	h := header{Version: 1, TTLMillis: ttlMillis, MetaLen: uint64(len(metaBytes)), DataOffset: uint64(dataOffset)}

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fruinaerr.Wrap("sharedfs.create", err)
	}

	frame := make([]byte, dataOffset)
	copy(frame, encodeHeader(h))
	copy(frame[headerSize:], metaBytes)
	if _, err := file.WriteAt(frame, 0); err != nil {
		file.Close()
		return nil, fruinaerr.Wrap("sharedfs.create", err)
	}

	return &SharedFSBlob{path: path, file: file, dataOffset: dataOffset, ttlMillis: ttlMillis, meta: meta}, nil
}

// OpenSharedFS opens an existing framed file and parses its header.
func OpenSharedFS(path string) (*SharedFSBlob, error) {
	file, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, fruinaerr.Wrap("sharedfs.open", err)
	}

	hbuf := make([]byte, headerSize)
	if _, err := io.ReadFull(file, hbuf); err != nil {
		file.Close()
		return nil, fruinaerr.New("sharedfs.open", fruinaerr.IO, err)
	}
	h, err := decodeHeader(hbuf)
	if err != nil {
		file.Close()
		return nil, fruinaerr.New("sharedfs.open", fruinaerr.Protocol, err)
	}

	metaBytes := make([]byte, h.MetaLen)
	if h.MetaLen > 0 {
		if _, err := file.ReadAt(metaBytes, headerSize); err != nil {
			file.Close()
			return nil, fruinaerr.New("sharedfs.open", fruinaerr.IO, err)
		}
	}
	var meta map[string]string
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		file.Close()
		return nil, fruinaerr.New("sharedfs.open", fruinaerr.Protocol, err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fruinaerr.Wrap("sharedfs.open", err)
	}

	return &SharedFSBlob{
		path:       path,
		file:       file,
		dataOffset: int64(h.DataOffset),
		size:       info.Size() - int64(h.DataOffset),
		sealed:     h.sealed(),
		ttlMillis:  h.TTLMillis,
		meta:       meta,
	}, nil
}

// Meta returns the metadata block decoded from the header.
func (b *SharedFSBlob) Meta() map[string]string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.meta
}

// TTLMillis returns the header's current TTL, in milliseconds.
func (b *SharedFSBlob) TTLMillis() uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ttlMillis
}

func (b *SharedFSBlob) WriteAt(_ context.Context, p []byte, offset int64) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sealed {
		return 0, sealedErr("sharedfs.write")
	}
	n, err := b.file.WriteAt(p, b.dataOffset+offset)
	if err != nil {
		return n, fruinaerr.Wrap("sharedfs.write", err)
	}
	if end := offset + int64(n); end > b.size {
		b.size = end
	}
	return n, nil
}

func (b *SharedFSBlob) ReadAt(_ context.Context, p []byte, offset int64) (int, error) {
	b.mu.Lock()
	dataOffset := b.dataOffset
	b.mu.Unlock()

	n, err := b.file.ReadAt(p, dataOffset+offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, fruinaerr.Wrap("sharedfs.read", err)
	}
	return n, err
}

func (b *SharedFSBlob) Truncate(_ context.Context, n int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sealed {
		return sealedErr("sharedfs.truncate")
	}
	if err := b.file.Truncate(b.dataOffset + n); err != nil {
		return fruinaerr.Wrap("sharedfs.truncate", err)
	}
	b.size = n
	return nil
}

func (b *SharedFSBlob) Size() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

func (b *SharedFSBlob) MemoryRegion(mode Mode) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.size == 0 {
		return []byte{}, nil
	}

	prot := unix.PROT_READ
	if mode == ReadWrite {
		if b.sealed {
			return nil, sealedErr("sharedfs.memory_region")
		}
		prot |= unix.PROT_WRITE
	}

	return unix.Mmap(int(b.file.Fd()), b.dataOffset, int(b.size), prot, unix.MAP_SHARED)
}

// Seal rewrites the header with the SEALED flag set and replaces the TTL
// with objectTTLSeconds, the object's own lifetime (0 = no expiry) (spec
// §4.3's seal path: lease TTL at create time, object TTL at seal time).
func (b *SharedFSBlob) Seal(objectTTLSeconds int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.ttlMillis = uint32(objectTTLSeconds * 1000)
	h := header{
		Version:    1,
		Flags:      flagSealed,
		TTLMillis:  b.ttlMillis,
		MetaLen:    uint64(metaLen(b.meta)),
		DataOffset: uint64(b.dataOffset),
	}
	if _, err := b.file.WriteAt(encodeHeader(h), 0); err != nil {
		return fruinaerr.Wrap("sharedfs.seal", err)
	}
	if err := b.file.Sync(); err != nil {
		return fruinaerr.Wrap("sharedfs.seal", err)
	}
	b.sealed = true
	return nil
}

func metaLen(meta map[string]string) int {
	b, _ := json.Marshal(meta)
	return len(b)
}

func (b *SharedFSBlob) Handle() Handle {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Handle{Kind: SharedFSHandle, Path: b.path, DataOffset: b.dataOffset}
}

func (b *SharedFSBlob) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.file.Close()
}

func (b *SharedFSBlob) Delete() error {
	b.mu.Lock()
	path := b.path
	b.mu.Unlock()

	b.file.Close()
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fruinaerr.Wrap("sharedfs.delete", err)
	}
	return nil
}
