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

// Package deployment models the ordered list of bootable filesystem trees
// and the invariants the upgrader and its CLI front-end depend on: exactly
// one booted entry, pending/rollback derivation relative to it, and
// pinned/live-apply-aware list rewriting.
package deployment

import (
	"github.com/coreos/pkg/capnslog"

	"github.com/coreos/coreos-assembler/pkg/rpmostree/origin"
)

var plog = capnslog.NewPackageLogger("github.com/coreos/coreos-assembler", "rpmostree/deployment")

// Deployment is the immutable record identifying one OS root checkout.
type Deployment struct {
	OSName         string
	BaseChecksum   string
	Serial         int32
	Checksum       string
	Origin         *origin.Origin
	Booted         bool
	Staged         bool
	Pinned         bool
	LiveInProgress string
	LiveReplaced   string

	// StateChecksum is the layering solve's state checksum recorded in
	// the commit's rpmostree.state-sha512 metadata, empty for
	// non-layered deployments.
	StateChecksum string
}

// IsLayered reports whether the checked-out commit differs from the base
// commit, i.e. whether any local assembly was performed atop the base.
func (d *Deployment) IsLayered() bool {
	return d.Checksum != d.BaseChecksum
}

// IsLive reports whether this deployment has an in-progress or completed
// live-overlay applied on top of what's booted.
func (d *Deployment) IsLive() bool {
	return d.LiveInProgress != "" || d.LiveReplaced != ""
}

// Key identifies a deployment uniquely within a sysroot: no two entries in
// a valid list may share (OSName, Checksum, Serial).
type Key struct {
	OSName   string
	Checksum string
	Serial   int32
}

func (d *Deployment) Key() Key {
	return Key{OSName: d.OSName, Checksum: d.Checksum, Serial: d.Serial}
}
