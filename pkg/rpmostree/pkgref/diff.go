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

package pkgref

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// Diff is the result of comparing two package lists: every package from
// list a and list b appears in exactly one of UniqueA/UniqueB/ModifiedA
// (paired index-for-index with ModifiedB)/Common.
type Diff struct {
	UniqueA   []NEVRA
	UniqueB   []NEVRA
	ModifiedA []NEVRA
	ModifiedB []NEVRA
	Common    []NEVRA
}

// nextHasDifferentName reports whether the entry after i in pkgs (assumed
// sorted by Name) has a different name, i.e. whether pkgs[i] is the last
// (or only) entry for its name.
func nextHasDifferentName(pkgs []NEVRA, i int) bool {
	if i+1 >= len(pkgs) {
		return true
	}
	return pkgs[i].Name != pkgs[i+1].Name
}

// DiffPackageLists is a linear "comm(1)"-like merge over two package lists
// sorted by Name. When M instances of a name appear on one side and N!=M on
// the other it emits |M-N| unique entries plus min(M,N) modified pairs. An
// arch change is reported as a modification only when exactly one instance
// of that name exists on each side; otherwise (multilib) each arch is an
// independent unique entry, matching standard package-manager UX.
func DiffPackageLists(a, b []NEVRA) Diff {
	var d Diff
	ai, bi := 0, 0
	an, bn := len(a), len(b)

	for ai < an && bi < bn {
		pa, pb := a[ai], b[bi]
		switch {
		case pa.Name < pb.Name:
			d.UniqueA = append(d.UniqueA, pa)
			ai++
		case pa.Name > pb.Name:
			d.UniqueB = append(d.UniqueB, pb)
			bi++
		case pa.Arch == pb.Arch:
			if compareEVR(pa.EVR(), pb.EVR()) == 0 {
				d.Common = append(d.Common, pa)
			} else {
				d.ModifiedA = append(d.ModifiedA, pa)
				d.ModifiedB = append(d.ModifiedB, pb)
			}
			ai++
			bi++
		default:
			singleA := nextHasDifferentName(a, ai)
			singleB := nextHasDifferentName(b, bi)
			switch {
			case singleA && singleB:
				d.ModifiedA = append(d.ModifiedA, pa)
				d.ModifiedB = append(d.ModifiedB, pb)
				ai++
				bi++
			case pa.Arch < pb.Arch:
				d.UniqueA = append(d.UniqueA, pa)
				ai++
			default:
				d.UniqueB = append(d.UniqueB, pb)
				bi++
			}
		}
	}
	for ; ai < an; ai++ {
		d.UniqueA = append(d.UniqueA, a[ai])
	}
	for ; bi < bn; bi++ {
		d.UniqueB = append(d.UniqueB, b[bi])
	}
	return d
}

// SortedByName returns a copy of pkgs stably sorted by Name (ties broken
// by Arch, then by EVR via RPM version comparison), the ordering DiffPackageLists
// and PackageListChecksum expect as input.
func SortedByName(pkgs []NEVRA) []NEVRA {
	out := make([]NEVRA, len(pkgs))
	copy(out, pkgs)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		if out[i].Arch != out[j].Arch {
			return out[i].Arch < out[j].Arch
		}
		return compareEVR(out[i].EVR(), out[j].EVR()) < 0
	})
	return out
}

// PackageListChecksum is a SHA-256 digest over the concatenation of
// canonical "epoch:name-version-release.arch"-equivalent NEVRA strings of a
// stably-sorted list, used as an rpmdb version identifier (the "state
// checksum" in the spec's terminology).
func PackageListChecksum(pkgs []NEVRA) string {
	sorted := SortedByName(pkgs)
	h := sha256.New()
	for _, p := range sorted {
		h.Write([]byte(p.String()))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// joinNEVRAStrings renders a package set as a human-readable,
// comma-separated list of NEVRA strings.
func joinNEVRAStrings(pkgs []NEVRA) string {
	parts := make([]string, len(pkgs))
	for i, p := range pkgs {
		parts[i] = p.String()
	}
	return strings.Join(parts, ", ")
}
