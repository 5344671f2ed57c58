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

package origin

import (
	"github.com/coreos/coreos-assembler/pkg/rpmostree/rpmostreeerr"
)

func containsString(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func removeString(list []string, v string) ([]string, bool) {
	out := make([]string, 0, len(list))
	removed := false
	for _, x := range list {
		if x == v && !removed {
			removed = true
			continue
		}
		out = append(out, x)
	}
	return out, removed
}

// AddPackages adds pkgs to the requested-package set. Each entry already
// present is a no-op unless allowExisting is false, in which case it is a
// Config error. Reports whether anything changed.
func (o *Origin) AddPackages(pkgs []string, allowExisting bool) (changed bool, err error) {
	for _, p := range pkgs {
		if containsString(o.Packages, p) {
			if !allowExisting {
				return changed, rpmostreeerr.Newf(rpmostreeerr.KindConfig, "package %q is already requested", p)
			}
			continue
		}
		o.Packages = append(o.Packages, p)
		changed = true
	}
	return changed, nil
}

// RemovePackages drops pkgs from the requested-package set. A pattern not
// present is a no-op unless allowNoent is false.
func (o *Origin) RemovePackages(pkgs []string, allowNoent bool) (changed bool, err error) {
	for _, p := range pkgs {
		next, removed := removeString(o.Packages, p)
		if !removed {
			if !allowNoent {
				return changed, rpmostreeerr.Newf(rpmostreeerr.KindConfig, "package %q is not currently requested", p)
			}
			continue
		}
		o.Packages = next
		changed = true
	}
	return changed, nil
}

// RemoveAllPackages clears the requested-package set, reporting whether it
// was non-empty.
func (o *Origin) RemoveAllPackages() (changed bool) {
	changed = len(o.Packages) > 0
	o.Packages = nil
	return changed
}

// AddLocalPackages adds locally-supplied pinned packages, optionally marked
// as allowed to override base files.
func (o *Origin) AddLocalPackages(pkgs []LocalPackage, fileOverride bool, allowExisting bool) (changed bool, err error) {
	target := &o.LocalPackages
	if fileOverride {
		target = &o.LocalFileOverridePackages
	}
	for _, p := range pkgs {
		exists := false
		for _, x := range *target {
			if x == p {
				exists = true
				break
			}
		}
		if exists {
			if !allowExisting {
				return changed, rpmostreeerr.Newf(rpmostreeerr.KindConfig, "local package %q is already requested", p)
			}
			continue
		}
		*target = append(*target, p)
		changed = true
	}
	return changed, nil
}

// AddOverrideRemove marks base package names for removal.
func (o *Origin) AddOverrideRemove(names []string) (changed bool) {
	for _, n := range names {
		if !containsString(o.OverridesRemove, n) {
			o.OverridesRemove = append(o.OverridesRemove, n)
			changed = true
		}
	}
	return changed
}

// RemoveOverrideRemove clears a removal override request. A request not
// present is a no-op unless allowNoent is false.
func (o *Origin) RemoveOverrideRemove(name string, allowNoent bool) (changed bool, err error) {
	next, removed := removeString(o.OverridesRemove, name)
	if !removed {
		if !allowNoent {
			return false, rpmostreeerr.Newf(rpmostreeerr.KindConfig, "no removal override for %q", name)
		}
		return false, nil
	}
	o.OverridesRemove = next
	return true, nil
}

// AddOverrideReplaceLocal marks local packages as base replacements.
func (o *Origin) AddOverrideReplaceLocal(pkgs []LocalPackage) (changed bool) {
	for _, p := range pkgs {
		exists := false
		for _, x := range o.OverridesReplaceLocal {
			if x == p {
				exists = true
				break
			}
		}
		if !exists {
			o.OverridesReplaceLocal = append(o.OverridesReplaceLocal, p)
			changed = true
		}
	}
	return changed
}

// RemoveAllOverrides clears every override (removal and local-replace),
// reporting whether anything changed.
func (o *Origin) RemoveAllOverrides() (changed bool) {
	changed = len(o.OverridesRemove) > 0 || len(o.OverridesReplaceLocal) > 0
	o.OverridesRemove = nil
	o.OverridesReplaceLocal = nil
	return changed
}

// SetOverrideCommit pins the base reference's tip to checksum. An empty
// string clears the pin.
func (o *Origin) SetOverrideCommit(checksum string) (changed bool, err error) {
	if checksum != "" && o.ClassifyBase() == BaseContainerImage {
		return false, rpmostreeerr.New(rpmostreeerr.KindPolicy,
			"override-commit is not permitted together with a container-image-reference origin")
	}
	changed = o.OverrideCommit != checksum
	o.OverrideCommit = checksum
	return changed, nil
}

// Rebase reassigns the base reference and clears any override commit (a
// pin against the old base never makes sense against a new one).
func (o *Origin) Rebase(remote, ref string) {
	o.Remote = remote
	o.Ref = ref
	o.Checksum = ""
	o.ContainerImage = ""
	o.OverrideCommit = ""
}

// RebaseToChecksum reassigns the base reference to an immutable commit pin.
func (o *Origin) RebaseToChecksum(checksum string) {
	o.Remote = ""
	o.Ref = ""
	o.Checksum = checksum
	o.ContainerImage = ""
	o.OverrideCommit = ""
}

// RebaseToContainerImage reassigns the base reference to a container image.
func (o *Origin) RebaseToContainerImage(imageRef string) {
	o.Remote = ""
	o.Ref = ""
	o.Checksum = ""
	o.ContainerImage = imageRef
	o.OverrideCommit = ""
}

// TrackInitramfsEtcFile adds path (expected to be absolute, under /etc) to
// the set embedded in an overlay initramfs.
func (o *Origin) TrackInitramfsEtcFile(path string) (changed bool) {
	if containsString(o.InitramfsEtcFiles, path) {
		return false
	}
	o.InitramfsEtcFiles = append(o.InitramfsEtcFiles, path)
	return true
}

// UntrackInitramfsEtcFile removes path from the tracked set.
func (o *Origin) UntrackInitramfsEtcFile(path string) (changed bool) {
	next, removed := removeString(o.InitramfsEtcFiles, path)
	o.InitramfsEtcFiles = next
	return removed
}

// SetRegenerateInitramfs toggles initramfs regeneration and replaces its
// argument list. Forbidden together with a non-empty InitramfsEtcFiles set
// (regeneration and the /etc overlay are mutually exclusive delivery
// mechanisms).
func (o *Origin) SetRegenerateInitramfs(regenerate bool, args []string) (changed bool, err error) {
	if regenerate && len(o.InitramfsEtcFiles) > 0 {
		return false, rpmostreeerr.New(rpmostreeerr.KindPolicy,
			"cannot regenerate the initramfs while /etc overlay files are tracked")
	}
	changed = o.InitramfsRegenerate != regenerate
	o.InitramfsRegenerate = regenerate
	o.InitramfsArgs = append([]string(nil), args...)
	return changed, nil
}

// SetCustomOrigin records free-form provenance for a non-standard base.
func (o *Origin) SetCustomOrigin(url, description string) {
	o.CustomOriginURL = url
	o.CustomOriginDescription = description
}
