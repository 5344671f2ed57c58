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

// Package solver declares the narrow interface the layering engine (C6)
// needs from the dependency-solver backend. The solver itself is out of
// scope (spec §1 treats it as an external collaborator).
package solver

import (
	"context"

	"github.com/coreos/coreos-assembler/pkg/rpmostree/pkgref"
)

// Request describes one depsolve invocation.
type Request struct {
	// RootFD-equivalent: path to the checked-out tree the solver should
	// root its repo/rpmdb queries at.
	RootPath string
	// Packages are patterns to layer; resolved against configured repos.
	Packages []string
	// LocalPackages are pre-resolved local package files the solver
	// must take as already-decided members of the transaction.
	LocalPackages []pkgref.NEVRA
	// PkgcacheOnly forbids network fetch of rpms during import; solving
	// is restricted to what's already present in the pkgcache.
	PkgcacheOnly bool
}

// Result is the solver's output: the final set of packages to import,
// and a state checksum summarizing the decision for idempotence checks.
type Result struct {
	ToInstall     []pkgref.NEVRA
	StateChecksum string
}

// Solver is the narrow surface the layering engine needs from the
// dependency-solver backend.
type Solver interface {
	// Depsolve computes the transaction for req. Returns a Resolution
	// error (per spec §7) on unresolvable requests.
	Depsolve(ctx context.Context, req Request) (Result, error)
}
