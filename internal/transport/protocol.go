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

// Package transport implements the handle-passing local-socket control
// plane of spec §4.5/§6.3: length-prefixed JSON request/response frames,
// with file descriptors for anonymous-memory blobs riding in the socket's
// ancillary data.
package transport

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/fruina/fruina/internal/lease"
	"golang.org/x/sys/unix"
)

const (
	verbAcquire = "acquire"
	verbSeal    = "seal"
	verbDiscard = "discard"
	verbRelease = "release"
)

const (
	handleFD       = "fd"
	handlePath     = "path"
	handleSharedFS = "shared_fs"
)

// wireRequest is the JSON body of one request frame.
type wireRequest struct {
	Verb       string            `json:"verb"`
	ObjectID   *string           `json:"object_id,omitempty"`
	Intent     string            `json:"intent,omitempty"`
	TTLSeconds *float64          `json:"ttl_seconds,omitempty"`
	Meta       map[string]string `json:"meta,omitempty"`
	LeaseID    string            `json:"lease_id,omitempty"`
}

// wireHandle is one entry of a response's `handles` array.
type wireHandle struct {
	Type       string `json:"type"`
	Path       string `json:"path,omitempty"`
	DataOffset int64  `json:"data_offset,omitempty"`
}

// wireResponse is the JSON body of one response frame. State and
// SealedSize are not in the spec's literal field list but are needed for
// the client to reconstruct an accurate Object without a second round
// trip; Kind lets the client recover the fruinaerr.Kind instead of only a
// human-readable message.
type wireResponse struct {
	Status     string            `json:"status"`
	Kind       string            `json:"kind,omitempty"`
	Message    string            `json:"message,omitempty"`
	LeaseID    string            `json:"lease_id,omitempty"`
	ObjectID   string            `json:"object_id,omitempty"`
	Intent     string            `json:"intent,omitempty"`
	State      string            `json:"state,omitempty"`
	TTLSeconds *float64          `json:"ttl_seconds,omitempty"`
	Meta       map[string]string `json:"meta,omitempty"`
	SealedSize int64             `json:"sealed_size,omitempty"`
	Handles    []wireHandle      `json:"handles,omitempty"`
}

// wireIntent renders an Access the way spec §6.3 specifies on the wire:
// lowercase, not the in-process lease.Access constants' uppercase spelling.
func wireIntent(a lease.Access) string {
	return strings.ToLower(string(a))
}

// accessFromWire parses a wire intent string back into a lease.Access,
// accepting either case so a peer talking literal §6.3 case and this
// module's own client are both understood.
func accessFromWire(s string) lease.Access {
	return lease.Access(strings.ToUpper(s))
}

func writeFrame(w io.Writer, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err = w.Write(payload)
	return err
}

func readFrame(r io.Reader, v any) error {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return err
	}
	return json.Unmarshal(buf, v)
}

// sendFDs ships fds as an ancillary-data-only message, immediately after
// the acquire response frame that names them.
func sendFDs(conn *net.UnixConn, fds []int) error {
	rights := unix.UnixRights(fds...)
	_, _, err := conn.WriteMsgUnix(nil, rights, nil)
	return err
}

// recvFDs reads the ancillary-data message a matching sendFDs produced.
func recvFDs(conn *net.UnixConn, count int) ([]int, error) {
	oob := make([]byte, unix.CmsgSpace(count*4))
	_, oobn, _, _, err := conn.ReadMsgUnix(nil, oob)
	if err != nil {
		return nil, err
	}
	msgs, err := unix.ParseSocketControlMessage(oob[:oobn])
	if err != nil {
		return nil, err
	}
	var fds []int
	for _, m := range msgs {
		parsed, err := unix.ParseUnixRights(&m)
		if err != nil {
			return nil, err
		}
		fds = append(fds, parsed...)
	}
	if len(fds) != count {
		return nil, fmt.Errorf("transport: expected %d fds, got %d", count, len(fds))
	}
	return fds, nil
}
