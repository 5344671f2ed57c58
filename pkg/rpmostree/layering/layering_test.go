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

package layering

import (
	"context"
	"testing"

	"github.com/coreos/coreos-assembler/pkg/rpmostree/origin"
	"github.com/coreos/coreos-assembler/pkg/rpmostree/pkgref"
	"github.com/coreos/coreos-assembler/pkg/rpmostree/solver"
)

type fakeSack struct {
	installed []pkgref.NEVRA
}

func (f *fakeSack) InstalledPackages(ctx context.Context) ([]pkgref.NEVRA, error) {
	return f.installed, nil
}

type fakeCheckout struct {
	rootPath string
	sack     *fakeSack
}

func (f *fakeCheckout) CheckoutBase(ctx context.Context, baseCommit string) (string, BaseSack, error) {
	return f.rootPath, f.sack, nil
}

type fakeSolver struct {
	result solver.Result
}

func (f *fakeSolver) Depsolve(ctx context.Context, req solver.Request) (solver.Result, error) {
	return f.result, nil
}

func TestPrepLayeringNoneWhenNoRequests(t *testing.T) {
	o := &origin.Origin{Remote: "fedora", Ref: "stable"}
	result, err := PrepLayering(context.Background(), o, &fakeCheckout{}, "base1", "", false, &fakeSolver{}, PrepOptions{})
	if err != nil {
		t.Fatalf("PrepLayering: %v", err)
	}
	if result.Kind != KindNone {
		t.Fatalf("expected KindNone, got %v", result.Kind)
	}
}

func TestPrepLayeringDemotesInactivePackageRequest(t *testing.T) {
	vim := pkgref.NEVRA{Name: "vim", Version: "9.0", Release: "1.fc38", Arch: "x86_64"}
	o := &origin.Origin{Remote: "fedora", Ref: "stable", Packages: []string{"vim"}}
	checkout := &fakeCheckout{rootPath: "/tmp/fake", sack: &fakeSack{installed: []pkgref.NEVRA{vim}}}

	result, err := PrepLayering(context.Background(), o, checkout, "base1", "", false, &fakeSolver{}, PrepOptions{})
	if err != nil {
		t.Fatalf("PrepLayering: %v", err)
	}
	if result.Kind != KindNone {
		t.Fatalf("expected KindNone after demotion, got %v", result.Kind)
	}
	if len(result.Computed.Packages) != 0 {
		t.Fatalf("expected vim demoted from computed origin, got %v", result.Computed.Packages)
	}
	if len(o.Packages) != 1 {
		t.Fatal("expected original origin's Packages to be untouched")
	}
}

func TestPrepLayeringDemotesInactiveRemoval(t *testing.T) {
	o := &origin.Origin{Remote: "fedora", Ref: "stable", OverridesRemove: []string{"not-installed"}}
	checkout := &fakeCheckout{rootPath: "/tmp/fake", sack: &fakeSack{}}

	result, err := PrepLayering(context.Background(), o, checkout, "base1", "", false, &fakeSolver{}, PrepOptions{})
	if err != nil {
		t.Fatalf("PrepLayering: %v", err)
	}
	if result.Kind != KindNone {
		t.Fatalf("expected KindNone, got %v", result.Kind)
	}
}

func TestPrepLayeringDepsolvesRemainingRequests(t *testing.T) {
	git := pkgref.NEVRA{Name: "git", Version: "2.40", Release: "1.fc38", Arch: "x86_64"}
	o := &origin.Origin{Remote: "fedora", Ref: "stable", Packages: []string{"git"}}
	checkout := &fakeCheckout{rootPath: "/tmp/fake", sack: &fakeSack{}}
	slv := &fakeSolver{result: solver.Result{ToInstall: []pkgref.NEVRA{git}, StateChecksum: "sum1"}}

	result, err := PrepLayering(context.Background(), o, checkout, "base1", "", false, slv, PrepOptions{})
	if err != nil {
		t.Fatalf("PrepLayering: %v", err)
	}
	if result.Kind != KindRpmmdRepos {
		t.Fatalf("expected KindRpmmdRepos, got %v", result.Kind)
	}
	if !result.Changed {
		t.Fatal("expected Changed=true for a non-layered current deployment")
	}
	if result.Solve.StateChecksum != "sum1" {
		t.Fatalf("unexpected state checksum: %v", result.Solve)
	}
}

func TestPrepLayeringUnchangedWhenStateChecksumMatches(t *testing.T) {
	git := pkgref.NEVRA{Name: "git", Version: "2.40", Release: "1.fc38", Arch: "x86_64"}
	o := &origin.Origin{Remote: "fedora", Ref: "stable", Packages: []string{"git"}}
	checkout := &fakeCheckout{rootPath: "/tmp/fake", sack: &fakeSack{}}
	slv := &fakeSolver{result: solver.Result{ToInstall: []pkgref.NEVRA{git}, StateChecksum: "sum1"}}

	result, err := PrepLayering(context.Background(), o, checkout, "base1", "sum1", true, slv, PrepOptions{})
	if err != nil {
		t.Fatalf("PrepLayering: %v", err)
	}
	if result.Changed {
		t.Fatal("expected Changed=false when state checksum matches and current is layered")
	}
}

func TestPrepLayeringConflictingRemovalAndRequestIsPolicyError(t *testing.T) {
	foo := pkgref.NEVRA{Name: "foo", Version: "1.0", Release: "1.fc38", Arch: "x86_64"}
	o := &origin.Origin{
		Remote:          "fedora",
		Ref:             "stable",
		Packages:        []string{"foo"},
		OverridesRemove: []string{"foo"},
	}
	checkout := &fakeCheckout{rootPath: "/tmp/fake", sack: &fakeSack{installed: []pkgref.NEVRA{foo}}}

	_, err := PrepLayering(context.Background(), o, checkout, "base1", "", false, &fakeSolver{}, PrepOptions{})
	if err == nil {
		t.Fatal("expected policy error for conflicting removal+request")
	}
}
