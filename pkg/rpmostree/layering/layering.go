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

// Package layering implements C6: the three-phase prep/import/assemble
// pipeline that decides whether local package layering is needed,
// depsolves it, imports the result into the pkgcache, and commits a
// derived tree atop the resolved base.
package layering

import (
	"context"

	"github.com/coreos/pkg/capnslog"

	"github.com/coreos/coreos-assembler/pkg/rpmostree/origin"
	"github.com/coreos/coreos-assembler/pkg/rpmostree/pkgref"
	"github.com/coreos/coreos-assembler/pkg/rpmostree/rpmostreeerr"
	"github.com/coreos/coreos-assembler/pkg/rpmostree/solver"
)

var plog = capnslog.NewPackageLogger("github.com/coreos/coreos-assembler", "rpmostree/layering")

// Kind tags what kind of local assembly, if any, prep decided is needed.
type Kind int

const (
	// KindNone means no local assembly is required; the deployment will
	// track the base commit directly.
	KindNone Kind = iota
	// KindRpmmdRepos means package requests require depsolving against
	// configured repos.
	KindRpmmdRepos
	// KindLocalOnly means only already-resolved local packages/modules
	// are involved; a minimal prepare validates them without a full
	// depsolve.
	KindLocalOnly
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindRpmmdRepos:
		return "rpmmd-repos"
	case KindLocalOnly:
		return "local-only"
	default:
		return "unknown"
	}
}

// BaseSack is the narrow view prep needs of the checked-out base tree's
// package database: what's installed, keyed by name for membership
// queries.
type BaseSack interface {
	// InstalledPackages returns every NEVRA in the base rpmdb. An empty,
	// nil-error result signals a pre-metadata base.
	InstalledPackages(ctx context.Context) ([]pkgref.NEVRA, error)
}

// Checkout abstracts the base-checkout subroutine (§4.6.4): hardlink the
// base commit into a private scratch directory.
type Checkout interface {
	CheckoutBase(ctx context.Context, baseCommit string) (rootPath string, sack BaseSack, err error)
}

// PrepOptions parameterizes PrepLayering.
type PrepOptions struct {
	PkgcacheOnly bool
}

// PrepResult is the outcome of the prep phase.
type PrepResult struct {
	Kind Kind
	// Changed reports whether local assembly will actually alter the
	// tree relative to the current deployment (layering_changed).
	Changed bool
	// Computed is the working-copy origin after inactive-request/
	// removal demotion. The caller's original origin is left untouched.
	Computed *origin.Origin
	// RootPath is the checked-out base tree root. It is set only when
	// Kind is not KindNone; a KindNone result leaves it empty even if a
	// checkout was made during prep.
	RootPath string
	Solve    solver.Result
}

func containsNEVRAName(pkgs []pkgref.NEVRA, name string) bool {
	for _, p := range pkgs {
		if p.Name == name {
			return true
		}
	}
	return false
}

func findByName(pkgs []pkgref.NEVRA, name string) (pkgref.NEVRA, bool) {
	for _, p := range pkgs {
		if p.Name == name {
			return p, true
		}
	}
	return pkgref.NEVRA{}, false
}

// PrepLayering runs the prep phase described in spec §4.6: demote inactive
// override/package requests into a computed working copy, and decide
// whether depsolving is required at all.
func PrepLayering(ctx context.Context, o *origin.Origin, checkout Checkout, baseCommit string, currentStateChecksum string, currentIsLayered bool, slv solver.Solver, opts PrepOptions) (*PrepResult, error) {
	if !o.MayRequireLocalAssembly() {
		return &PrepResult{Kind: KindNone, Changed: false, Computed: o.Clone()}, nil
	}

	computed := o.Clone()

	rootPath, sack, err := checkout.CheckoutBase(ctx, baseCommit)
	if err != nil {
		return nil, rpmostreeerr.Wrap(err, rpmostreeerr.KindIO, "checking out base tree")
	}
	installed, err := sack.InstalledPackages(ctx)
	if err != nil {
		return nil, rpmostreeerr.Wrap(err, rpmostreeerr.KindIO, "reading base rpmdb")
	}

	// Finalize overrides: drop requests that don't actually apply.
	var keptRemovals []string
	for _, name := range computed.OverridesRemove {
		if !containsNEVRAName(installed, name) {
			plog.Infof("override remove %q is inactive: not installed in base", name)
			continue
		}
		keptRemovals = append(keptRemovals, name)
	}
	computed.OverridesRemove = keptRemovals

	var keptReplacements []origin.LocalPackage
	for _, lp := range computed.OverridesReplaceLocal {
		target, err := pkgref.ParseNEVRA(lp.NEVRA)
		if err != nil {
			return nil, rpmostreeerr.Wrapf(err, rpmostreeerr.KindConfig, "parsing replacement NEVRA %q", lp.NEVRA)
		}
		existing, found := findByName(installed, target.Name)
		if !found {
			plog.Infof("override replace-local %q is inactive: target not installed", lp.NEVRA)
			continue
		}
		if existing.String() == target.String() {
			plog.Infof("override replace-local %q is inactive: already installed", lp.NEVRA)
			continue
		}
		keptReplacements = append(keptReplacements, lp)
	}
	computed.OverridesReplaceLocal = keptReplacements

	// Finalize overlays: demote requests already satisfied by the base.
	var keptPackages []string
	for _, pattern := range computed.Packages {
		if _, found := findByName(installed, pattern); found {
			if containsString(computed.OverridesRemove, pattern) {
				return nil, rpmostreeerr.Newf(rpmostreeerr.KindPolicy,
					"pattern %q only matches a package also queued for removal", pattern)
			}
			plog.Infof("package request %q is inactive: already in base", pattern)
			continue
		}
		keptPackages = append(keptPackages, pattern)
	}
	computed.Packages = keptPackages

	if !computed.MayRequireLocalAssembly() {
		return &PrepResult{Kind: KindNone, Changed: false, Computed: computed}, nil
	}

	kind := KindRpmmdRepos
	if len(computed.Packages) == 0 && len(computed.OverridesRemove) == 0 {
		kind = KindLocalOnly
	}

	req := solver.Request{
		RootPath:     rootPath,
		Packages:     computed.Packages,
		PkgcacheOnly: opts.PkgcacheOnly,
	}
	for _, lp := range computed.LocalPackages {
		n, err := pkgref.ParseNEVRA(lp.NEVRA)
		if err != nil {
			return nil, rpmostreeerr.Wrapf(err, rpmostreeerr.KindConfig, "parsing local package NEVRA %q", lp.NEVRA)
		}
		req.LocalPackages = append(req.LocalPackages, n)
	}

	result, err := slv.Depsolve(ctx, req)
	if err != nil {
		return nil, rpmostreeerr.Wrap(err, rpmostreeerr.KindResolution, "depsolving layering request")
	}

	changed := !currentIsLayered || result.StateChecksum != currentStateChecksum

	return &PrepResult{
		Kind:     kind,
		Changed:  changed,
		Computed: computed,
		RootPath: rootPath,
		Solve:    result,
	}, nil
}

func containsString(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
