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

// Package pkgref implements the canonical NEVRA package reference model:
// rendering, cache-branch encoding (and its exact inverse), package-list
// diffing, and the rpmdb version checksum.
package pkgref

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// NEVRA is a fully-qualified package reference: name, epoch, version,
// release, arch. Epoch 0 and an unset epoch render identically (the
// libdnf convention rpm-ostree follows), so Epoch is a plain uint64 with
// 0 meaning "no epoch".
type NEVRA struct {
	Name    string
	Epoch   uint64
	Version string
	Release string
	Arch    string
}

// EVR renders "epoch:version-release", omitting the epoch prefix when it
// is zero.
func (n NEVRA) EVR() string {
	if n.Epoch == 0 {
		return fmt.Sprintf("%s-%s", n.Version, n.Release)
	}
	return fmt.Sprintf("%d:%s-%s", n.Epoch, n.Version, n.Release)
}

// String renders the canonical "name-epoch:version-release.arch" NEVRA form.
func (n NEVRA) String() string {
	return fmt.Sprintf("%s-%s.%s", n.Name, n.EVR(), n.Arch)
}

// ParseNEVRA decomposes a "name-[epoch:]version-release.arch" string.
// Mirrors rpmostree_decompose_nevra (a thin wrapper historically around
// libdnf's hy_split_nevra): arch is the component after the last '.', then
// release after the next-to-last '-', then version after the last
// remaining '-', with an optional "epoch:" prefix on what's left.
func ParseNEVRA(nevra string) (NEVRA, error) {
	archIdx := strings.LastIndexByte(nevra, '.')
	if archIdx < 0 || archIdx == len(nevra)-1 {
		return NEVRA{}, errors.Errorf("failed to decompose NEVRA string %q: missing arch", nevra)
	}
	arch := nevra[archIdx+1:]
	rest := nevra[:archIdx]

	relIdx := strings.LastIndexByte(rest, '-')
	if relIdx < 0 {
		return NEVRA{}, errors.Errorf("failed to decompose NEVRA string %q: missing release", nevra)
	}
	release := rest[relIdx+1:]
	rest = rest[:relIdx]

	verIdx := strings.LastIndexByte(rest, '-')
	if verIdx < 0 {
		return NEVRA{}, errors.Errorf("failed to decompose NEVRA string %q: missing version", nevra)
	}
	verEpoch := rest[verIdx+1:]
	name := rest[:verIdx]
	if name == "" {
		return NEVRA{}, errors.Errorf("failed to decompose NEVRA string %q: missing name", nevra)
	}

	var epoch uint64
	version := verEpoch
	if colon := strings.IndexByte(verEpoch, ':'); colon >= 0 {
		var err error
		epoch, err = strconv.ParseUint(verEpoch[:colon], 10, 64)
		if err != nil {
			return NEVRA{}, errors.Wrapf(err, "failed to decompose NEVRA string %q: bad epoch", nevra)
		}
		version = verEpoch[colon+1:]
	}

	return NEVRA{Name: name, Epoch: epoch, Version: version, Release: release, Arch: arch}, nil
}

// IsValidNEVRA reports whether subject decomposes cleanly.
func IsValidNEVRA(subject string) bool {
	_, err := ParseNEVRA(subject)
	return err == nil
}
