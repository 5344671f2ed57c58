// Copyright 2014 CoreOS, Inc.
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

// Package rpmostreeerr carries the upgrader's error taxonomy: a small set
// of kinds (Config, Policy, Resolution, Integrity, IO, Cancelled) attached
// to a normal Go error chain, rather than a class hierarchy.
package rpmostreeerr

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// Kind classifies why an operation failed, per the recovery policy in the
// spec's error handling design: Config/Policy/Resolution are surfaced
// immediately with no state written; Integrity is always fatal; IO/Store
// failures during cleanup are logged but non-undoing; Cancelled is honored
// at any phase boundary.
type Kind int

const (
	// KindConfig covers malformed origins, contradictory requests, unknown kinds.
	KindConfig Kind = iota
	// KindPolicy covers requests that would change live-applied state or combine
	// unsupported options (e.g. override_commit with a container-image origin).
	KindPolicy
	// KindResolution covers unknown refs, inaccessible remotes, depsolve failure,
	// ambiguity (e.g. multiple kernel directories).
	KindResolution
	// KindIntegrity covers timestamp regressions, HMAC mismatches, duplicate installs.
	KindIntegrity
	// KindIO covers checkout/prune/commit/pull failures against the object store.
	KindIO
	// KindCancelled covers caller-initiated cancellation.
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindPolicy:
		return "policy"
	case KindResolution:
		return "resolution"
	case KindIntegrity:
		return "integrity"
	case KindIO:
		return "io"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Error is a Kind-tagged error with an optional phase prefix chain, e.g.
// "pulling fedora:stable: connection refused".
type Error struct {
	Kind  Kind
	cause error
}

func (e *Error) Error() string { return e.cause.Error() }
func (e *Error) Unwrap() error { return e.cause }

// New creates a Kind-tagged error with a plain message.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, cause: errors.New(msg)}
}

// Newf creates a Kind-tagged error from a format string.
func Newf(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, cause: fmt.Errorf(format, args...)}
}

// Wrap attaches a Kind and a phase prefix to an existing error. A nil err
// returns nil, so call sites can use it unconditionally after a fallible op.
func Wrap(err error, kind Kind, phase string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, cause: pkgerrors.Wrap(err, phase)}
}

// Wrapf is Wrap with a formatted phase prefix.
func Wrapf(err error, kind Kind, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, cause: pkgerrors.Wrapf(err, format, args...)}
}

// KindOf extracts the Kind from an error chain produced by this package,
// defaulting to KindIO (the conservative "fatal, not recoverable" choice)
// when the error wasn't produced here.
func KindOf(err error) Kind {
	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.Kind
	}
	return KindIO
}

// IsCancelled reports whether err (or anything it wraps) is a cancellation.
func IsCancelled(err error) bool {
	return KindOf(err) == KindCancelled
}
