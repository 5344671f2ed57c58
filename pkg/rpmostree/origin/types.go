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

// Package origin models the declarative, per-deployment origin descriptor:
// the single source of truth for what a deployment should be. Parsing,
// serialization and the mutation operations below all preserve one
// invariant: the original document is never mutated in place except
// through these operations, so user intent (e.g. a dormant package
// request) survives round-trips untouched.
package origin

import (
	"sort"

	"github.com/coreos/pkg/capnslog"
)

var plog = capnslog.NewPackageLogger("github.com/coreos/coreos-assembler", "rpmostree/origin")

// BaseKind tags the sum type a base reference is: exactly one of an ostree
// branch, an immutable checksum pin, or a container image reference.
type BaseKind int

const (
	// BaseOstreeBranch is a "remote:ref" mirror reference.
	BaseOstreeBranch BaseKind = iota
	// BaseChecksum is an immutable commit pin with no remote/ref.
	BaseChecksum
	// BaseContainerImage is a remote container image reference.
	BaseContainerImage
)

func (k BaseKind) String() string {
	switch k {
	case BaseOstreeBranch:
		return "ostree-branch"
	case BaseChecksum:
		return "checksum"
	case BaseContainerImage:
		return "container-image"
	default:
		return "unknown"
	}
}

// LocalPackage is a locally-supplied pinned package reference, written as
// "sha256:nevra".
type LocalPackage struct {
	SHA256 string
	NEVRA  string
}

func (p LocalPackage) String() string { return p.SHA256 + ":" + p.NEVRA }

// LiveState records in-progress live-overlay bookkeeping. It is transient:
// RemoveTransientState always clears it, and it is never itself persisted
// as part of the canonical serialization other fields participate in.
type LiveState struct {
	InProgress string
	Live       string
}

// Origin is the canonical in-memory model of an origin descriptor.
type Origin struct {
	// Base reference: exactly one of these three is populated, as reported
	// by ClassifyBase.
	Remote         string // set iff BaseOstreeBranch
	Ref            string // set iff BaseOstreeBranch
	Checksum       string // set iff BaseChecksum
	ContainerImage string // set iff BaseContainerImage

	OverrideCommit string

	Packages                  []string
	LocalPackages             []LocalPackage
	LocalFileOverridePackages []LocalPackage
	OverridesRemove           []string
	OverridesReplaceLocal     []LocalPackage

	InitramfsRegenerate bool
	InitramfsArgs       []string
	InitramfsEtcFiles   []string

	Cliwrap bool

	UnconfiguredState string

	CustomOriginURL         string
	CustomOriginDescription string

	Live LiveState
}

// Clone returns a deep copy, used by the upgrader to derive a "computed
// origin" working copy that mutations during prep never write back into
// the original.
func (o *Origin) Clone() *Origin {
	if o == nil {
		return nil
	}
	c := *o
	c.Packages = append([]string(nil), o.Packages...)
	c.LocalPackages = append([]LocalPackage(nil), o.LocalPackages...)
	c.LocalFileOverridePackages = append([]LocalPackage(nil), o.LocalFileOverridePackages...)
	c.OverridesRemove = append([]string(nil), o.OverridesRemove...)
	c.OverridesReplaceLocal = append([]LocalPackage(nil), o.OverridesReplaceLocal...)
	c.InitramfsArgs = append([]string(nil), o.InitramfsArgs...)
	c.InitramfsEtcFiles = append([]string(nil), o.InitramfsEtcFiles...)
	return &c
}

// ClassifyBase deterministically dispatches on which base reference field
// is populated.
func (o *Origin) ClassifyBase() BaseKind {
	switch {
	case o.ContainerImage != "":
		return BaseContainerImage
	case o.Remote != "" || o.Ref != "":
		return BaseOstreeBranch
	default:
		return BaseChecksum
	}
}

// MayRequireLocalAssembly reports whether anything about this origin
// requires local package layering/override assembly, as opposed to a pure
// rebase onto the resolved base commit.
func (o *Origin) MayRequireLocalAssembly() bool {
	return len(o.Packages) > 0 ||
		len(o.LocalPackages) > 0 ||
		len(o.LocalFileOverridePackages) > 0 ||
		len(o.OverridesRemove) > 0 ||
		len(o.OverridesReplaceLocal) > 0 ||
		o.InitramfsRegenerate ||
		len(o.InitramfsEtcFiles) > 0
}

// RemoveTransientState clears live-overlay bookkeeping. Must be invoked
// exactly once before assembly.
func (o *Origin) RemoveTransientState() {
	o.Live = LiveState{}
}

func sortedCopy(items []string) []string {
	out := append([]string(nil), items...)
	sort.Strings(out)
	return out
}

func sortedLocalPackages(items []LocalPackage) []LocalPackage {
	out := append([]LocalPackage(nil), items...)
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
