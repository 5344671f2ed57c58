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

// Package baseresolver implements C5: resolving an origin's base reference
// into a concrete base commit, pulling if needed, and enforcing timestamp
// monotonicity.
package baseresolver

import (
	"context"

	"github.com/coreos/pkg/capnslog"

	"github.com/coreos/rpmostree-client-go/pkg/imgref"

	"github.com/coreos/coreos-assembler/pkg/rpmostree/origin"
	"github.com/coreos/coreos-assembler/pkg/rpmostree/ostreestore"
	"github.com/coreos/coreos-assembler/pkg/rpmostree/progress"
	"github.com/coreos/coreos-assembler/pkg/rpmostree/rpmostreeerr"
)

var plog = capnslog.NewPackageLogger("github.com/coreos/coreos-assembler", "rpmostree/baseresolver")

// Options parameterizes Resolve.
type Options struct {
	AllowOlder    bool
	SyntheticPull bool
}

// Result is the outcome of resolving an origin's base reference.
type Result struct {
	// BaseCommit is the resolved base.
	BaseCommit string
	// MergeCommit is set only for a layered container-image base; local
	// layering computes against it instead of BaseCommit.
	MergeCommit string
	// Changed reports whether BaseCommit differs from currentBaseCommit.
	Changed bool
}

// Resolve dispatches on o.ClassifyBase() and produces a new base_revision,
// per spec §4.5.
func Resolve(ctx context.Context, store ostreestore.Store, o *origin.Origin, currentBaseCommit string, opts Options, sink progress.Sink) (Result, error) {
	sink = progress.Default(sink)

	var resolved Result
	var err error

	switch o.ClassifyBase() {
	case origin.BaseOstreeBranch:
		resolved, err = resolveOstreeBranch(ctx, store, o, currentBaseCommit, opts, sink)
	case origin.BaseChecksum:
		resolved = Result{BaseCommit: o.Checksum}
	case origin.BaseContainerImage:
		resolved, err = resolveContainerImage(ctx, store, o)
	default:
		return Result{}, rpmostreeerr.Newf(rpmostreeerr.KindConfig, "unknown base reference kind for origin")
	}
	if err != nil {
		return Result{}, err
	}

	resolved.Changed = resolved.BaseCommit != currentBaseCommit

	// Container-image bases skip the timestamp monotonicity check.
	if resolved.Changed && !opts.AllowOlder && o.ClassifyBase() != origin.BaseContainerImage {
		if err := checkMonotonic(ctx, store, currentBaseCommit, resolved.BaseCommit); err != nil {
			return Result{}, err
		}
	}

	return resolved, nil
}

func resolveOstreeBranch(ctx context.Context, store ostreestore.Store, o *origin.Origin, currentBaseCommit string, opts Options, sink progress.Sink) (Result, error) {
	if o.OverrideCommit != "" {
		// Work around the non-atomicity of commit pins vs. tip
		// movement: reset the local ref to our current base first so
		// any subsequent timestamp check compares against us, not
		// the remote tip.
		if err := store.WriteRefsTransaction(ctx, map[string]string{localRef(o.Remote, o.Ref): currentBaseCommit}); err != nil {
			return Result{}, rpmostreeerr.Wrap(err, rpmostreeerr.KindIO, "resetting local ref before override-commit pin")
		}
		return Result{BaseCommit: o.OverrideCommit}, nil
	}

	if !opts.SyntheticPull {
		sink.Message("Pulling %s:%s", o.Remote, o.Ref)
		commit, err := store.Pull(ctx, ostreestore.PullOptions{
			Remote:            o.Remote,
			Ref:               o.Ref,
			AllowOlder:        opts.AllowOlder,
			SyntheticPull:     opts.SyntheticPull,
			CurrentBaseCommit: currentBaseCommit,
		})
		if err != nil {
			return Result{}, rpmostreeerr.Wrap(err, rpmostreeerr.KindIO, "pulling "+o.Remote+":"+o.Ref)
		}
		return Result{BaseCommit: commit}, nil
	}

	commit, err := store.ResolveRev(ctx, localRef(o.Remote, o.Ref))
	if err != nil {
		return Result{}, rpmostreeerr.Wrap(err, rpmostreeerr.KindResolution, "resolving "+o.Remote+":"+o.Ref)
	}
	return Result{BaseCommit: commit}, nil
}

func resolveContainerImage(ctx context.Context, store ostreestore.Store, o *origin.Origin) (Result, error) {
	if o.OverrideCommit != "" {
		return Result{}, rpmostreeerr.New(rpmostreeerr.KindPolicy,
			"override-commit is not permitted together with a container-image-reference origin")
	}
	if _, err := imgref.Parse(o.ContainerImage); err != nil {
		return Result{}, rpmostreeerr.Wrap(err, rpmostreeerr.KindConfig, "parsing container image reference")
	}
	pulled, err := store.PullContainerImage(ctx, o.ContainerImage)
	if err != nil {
		return Result{}, rpmostreeerr.Wrap(err, rpmostreeerr.KindIO, "pulling container image "+o.ContainerImage)
	}
	return Result{BaseCommit: pulled.BaseCommit, MergeCommit: pulled.MergeCommit}, nil
}

func checkMonotonic(ctx context.Context, store ostreestore.Store, currentBaseCommit, newBaseCommit string) error {
	if currentBaseCommit == "" {
		return nil
	}
	currentTs, err := store.CommitTimestamp(ctx, currentBaseCommit)
	if err != nil {
		return rpmostreeerr.Wrap(err, rpmostreeerr.KindIO, "reading current base commit timestamp")
	}
	newTs, err := store.CommitTimestamp(ctx, newBaseCommit)
	if err != nil {
		return rpmostreeerr.Wrap(err, rpmostreeerr.KindIO, "reading new base commit timestamp")
	}
	if newTs < currentTs {
		return rpmostreeerr.Newf(rpmostreeerr.KindIntegrity,
			"new base commit %s (timestamp %d) predates current base %s (timestamp %d)",
			newBaseCommit, newTs, currentBaseCommit, currentTs)
	}
	return nil
}

func localRef(remote, ref string) string {
	if remote == "" {
		return ref
	}
	return remote + ":" + ref
}
