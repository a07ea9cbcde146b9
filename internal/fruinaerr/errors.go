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

// Package fruinaerr defines the error kinds that peers, blobs, and the
// transport must agree on (spec §7). Callers distinguish kinds with
// errors.Is against the sentinel Kind values, or with As against *Error.
package fruinaerr

import "fmt"

// Kind is the caller-visible classification of a failure.
type Kind string

const (
	NotFound  Kind = "NotFound"
	Conflict  Kind = "Conflict"
	NotSealed Kind = "NotSealed"
	BadLease  Kind = "BadLease"
	Expired   Kind = "Expired"
	Sealed    Kind = "Sealed"
	IO        Kind = "IO"
	Protocol  Kind = "Protocol"
)

// Error is the concrete error type returned by every peer, blob, and
// transport operation that can fail. It wraps an optional underlying cause
// so callers can still unwrap down to the originating os/syscall error.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is allows errors.Is(err, fruinaerr.NotFound) to work directly against a
// Kind value, without callers needing to know about *Error.
func (e *Error) Is(target error) bool {
	if k, ok := target.(Kind); ok {
		return e.Kind == k
	}
	return false
}

// Error lets a bare Kind satisfy the error interface, so sentinels like
// fruinaerr.NotFound can be returned or compared against directly.
func (k Kind) Error() string { return string(k) }

// New builds an *Error for the given operation and kind, optionally
// wrapping an underlying cause.
func New(op string, kind Kind, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

// Wrap classifies an arbitrary error from an OS/syscall boundary as IO,
// preserving it as the cause.
func Wrap(op string, cause error) *Error {
	if cause == nil {
		return nil
	}
	return New(op, IO, cause)
}

// Of reports the Kind of err, or "" if err is not a *Error and not a bare
// Kind sentinel.
func Of(err error) Kind {
	switch e := err.(type) {
	case *Error:
		return e.Kind
	case Kind:
		return e
	default:
		return ""
	}
}
