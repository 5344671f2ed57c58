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

// Package pkgcache implements reference-count-based garbage collection of
// the pkgcache and base-layer refs against the set of active deployments.
package pkgcache

import (
	"context"
	"fmt"

	"github.com/coreos/pkg/capnslog"

	"github.com/coreos/coreos-assembler/pkg/rpmostree/deployment"
	"github.com/coreos/coreos-assembler/pkg/rpmostree/ostreestore"
	"github.com/coreos/coreos-assembler/pkg/rpmostree/pkgref"
	"github.com/coreos/coreos-assembler/pkg/rpmostree/progress"
	"github.com/coreos/coreos-assembler/pkg/rpmostree/rpmostreeerr"
)

var plog = capnslog.NewPackageLogger("github.com/coreos/coreos-assembler", "rpmostree/pkgcache")

const (
	baseRefPrefix = "rpmostree/base"
	pkgRefPrefix  = "rpmostree/pkg"
	tmpBaseRef    = "rpmostree/base/tmp"
)

// PackageListProvider resolves the set of packages installed in a layered
// deployment, used to compute the referenced-pkgcache-branches set.
type PackageListProvider interface {
	PackageListForDeployment(ctx context.Context, d *deployment.Deployment) ([]pkgref.NEVRA, error)
}

// Result reports the outcome of a RegenerateRefs run.
type Result struct {
	BaseRefsWritten int
	PkgRefsDropped  int
	Pruned          ostreestore.PrunedStats
}

// RegenerateRefs runs the five-step regenerate-refs transaction described
// in spec §4.3: rewrite rpmostree/base/* to cover exactly the active
// deployments' base commits, drop rpmostree/pkg/* refs unreferenced by any
// layered deployment, clear the transient base anchor, and prune.
//
// The whole operation is atomic against the object store: WriteRefsTransaction
// is called exactly once with the full set of ref mutations.
func RegenerateRefs(ctx context.Context, store ostreestore.Store, packages PackageListProvider, deployments []*deployment.Deployment, sink progress.Sink) (Result, error) {
	sink = progress.Default(sink)

	currentBaseRefs, err := store.ListRefs(ctx, baseRefPrefix)
	if err != nil {
		return Result{}, rpmostreeerr.Wrap(err, rpmostreeerr.KindIO, "listing base refs")
	}

	distinctBases := map[string]bool{}
	for _, d := range deployments {
		if d.BaseChecksum != "" {
			distinctBases[d.BaseChecksum] = true
		}
	}

	refMutations := map[string]string{}
	for ref := range currentBaseRefs {
		refMutations[ref] = ""
	}
	i := 0
	for base := range distinctBases {
		refMutations[fmt.Sprintf("%s/%d", baseRefPrefix, i)] = base
		i++
	}

	referenced, err := referencedPkgcacheBranches(ctx, packages, deployments)
	if err != nil {
		return Result{}, err
	}

	currentPkgRefs, err := store.ListRefs(ctx, pkgRefPrefix)
	if err != nil {
		return Result{}, rpmostreeerr.Wrap(err, rpmostreeerr.KindIO, "listing pkgcache refs")
	}
	dropped := 0
	for ref := range currentPkgRefs {
		if !referenced[ref] {
			refMutations[ref] = ""
			dropped++
		}
	}

	refMutations[tmpBaseRef] = ""

	if err := store.WriteRefsTransaction(ctx, refMutations); err != nil {
		return Result{}, rpmostreeerr.Wrap(err, rpmostreeerr.KindIO, "writing regenerated refs")
	}

	pruned, err := store.Prune(ctx)
	if err != nil {
		return Result{}, rpmostreeerr.Wrap(err, rpmostreeerr.KindIO, "pruning object store")
	}

	if dropped > 0 || pruned.BytesFreed > 0 {
		sink.Message("Freed pkgcache branches: %d size: %d bytes", dropped, pruned.BytesFreed)
	}

	return Result{
		BaseRefsWritten: len(distinctBases),
		PkgRefsDropped:  dropped,
		Pruned:          pruned,
	}, nil
}

func referencedPkgcacheBranches(ctx context.Context, packages PackageListProvider, deployments []*deployment.Deployment) (map[string]bool, error) {
	referenced := map[string]bool{}
	for _, d := range deployments {
		if !d.IsLayered() {
			continue
		}
		installed, err := packages.PackageListForDeployment(ctx, d)
		if err != nil {
			return nil, rpmostreeerr.Wrap(err, rpmostreeerr.KindIO, "listing installed packages for "+d.OSName)
		}
		for _, n := range installed {
			referenced[pkgref.NEVRAToCacheBranch(n)] = true
		}
		if d.Origin != nil {
			for _, lp := range d.Origin.OverridesReplaceLocal {
				n, err := pkgref.ParseNEVRA(lp.NEVRA)
				if err != nil {
					continue
				}
				referenced[pkgref.NEVRAToCacheBranch(n)] = true
			}
		}
	}
	return referenced, nil
}
