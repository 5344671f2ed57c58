// Copyright 2017 CoreOS, Inc.
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

// Package ostreestore declares the narrow interface the upgrader's
// components (C3, C5, C6, C7) need from the content-addressed object
// store. The store itself is out of scope (spec §1 treats it as an
// external collaborator); this package exists only so those components can
// be written, tested and composed against a black box instead of a
// concrete client library.
package ostreestore

import "context"

// PullOptions parameterizes a mirror pull of a branch.
type PullOptions struct {
	Remote            string
	Ref               string
	AllowOlder        bool
	SyntheticPull     bool
	CurrentBaseCommit string
}

// PrunedStats reports the result of a refs-only prune.
type PrunedStats struct {
	ObjectsTotal  int
	ObjectsPruned int
	BytesFreed    uint64
}

// ContainerPullResult is returned by PullContainerImage.
type ContainerPullResult struct {
	// BaseCommit is the resolved commit usable as an upgrade target.
	BaseCommit string
	// MergeCommit is set when the image is itself layered; it is the
	// commit local layering should be computed against instead of
	// BaseCommit.
	MergeCommit string
}

// Store is the narrow surface the upgrader components need from the
// object store. A production implementation backs it with ostree's repo
// API; tests back it with an in-memory fake.
type Store interface {
	// ResolveRev resolves ref (optionally remote-qualified) to a commit
	// checksum, without mutating any ref.
	ResolveRev(ctx context.Context, ref string) (commit string, err error)

	// CommitTimestamp returns the commit timestamp used for
	// monotonicity checks.
	CommitTimestamp(ctx context.Context, commit string) (unixSeconds int64, err error)

	// Pull mirrors a ref from a remote into the local repo and returns
	// the resulting commit.
	Pull(ctx context.Context, opts PullOptions) (commit string, err error)

	// PullContainerImage invokes the container-image pull path,
	// producing a locally available base (and, if layered, merge)
	// commit for imageRef.
	PullContainerImage(ctx context.Context, imageRef string) (ContainerPullResult, error)

	// ListRefs lists refs under prefix (e.g. "rpmostree/pkg",
	// "rpmostree/base"), mapping ref name to the commit it points at.
	ListRefs(ctx context.Context, prefix string) (map[string]string, error)

	// WriteRefsTransaction atomically replaces the named refs: refs
	// mapped to "" are deleted, others are set to the given commit.
	WriteRefsTransaction(ctx context.Context, refs map[string]string) error

	// Prune removes objects unreachable from any ref.
	Prune(ctx context.Context) (PrunedStats, error)

	// CheckoutPrivate hardlink-checks-out commit into a private,
	// exclusively-owned scratch directory, removing any stale prior
	// checkout first. Returns the directory's path.
	CheckoutPrivate(ctx context.Context, commit string) (path string, err error)

	// CommitTree commits the tree rooted at path as a new commit with
	// the given metadata, parented on parentCommit (empty for none).
	CommitTree(ctx context.Context, path string, parentCommit string, metadata map[string]string) (commit string, err error)
}
