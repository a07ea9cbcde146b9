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
	"os"
	"path/filepath"
	"time"

	"github.com/fruina/fruina/internal/blob"
)

// runGC scans leases/ and data/ on a timer and unlinks any file whose TTL
// has elapsed since it was last written. Grounded on
// fs/garbage_collect.go's periodic-scan-and-unlink loop shape; here mtime
// stands in for the inode generation number the teacher tracks, since
// plain files carry no generation counter of their own.
func (p *SharedFSPeer) runGC() {
	defer close(p.gcDone)

	ticker := time.NewTicker(p.gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.gcStop:
			return
		case <-ticker.C:
			p.sweepDir(p.leasesDir)
			p.sweepDir(p.dataDir)
		}
	}
}

func (p *SharedFSPeer) sweepDir(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	now := p.clock.Now()
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if p.expired(path, now) {
			logf("sharedfs gc: removing expired file %s", path)
			os.Remove(path)
		}
	}
}

func (p *SharedFSPeer) expired(path string, now time.Time) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}

	b, err := blob.OpenSharedFS(path)
	if err != nil {
		return false
	}
	defer b.Close()

	ttlMillis := b.TTLMillis()
	if ttlMillis == 0 {
		return false
	}

	ttl := time.Duration(ttlMillis) * time.Millisecond
	return now.Sub(info.ModTime()) > ttl
}
