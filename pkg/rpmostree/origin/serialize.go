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
	"bytes"
	"strings"

	"gopkg.in/ini.v1"
)

func joinSorted(items []string) string {
	return strings.Join(sortedCopy(items), ";")
}

func joinSortedLocal(items []LocalPackage) string {
	sorted := sortedLocalPackages(items)
	parts := make([]string, len(sorted))
	for i, p := range sorted {
		parts[i] = p.String()
	}
	return strings.Join(parts, ";")
}

// Serialize renders the canonical keyfile-equivalent document. Two origins
// that are logically equal (Equal returns true) always serialize
// byte-identically: every list-valued field is sorted before joining, and
// sections/keys are always emitted in the same fixed order regardless of
// what was present in the source document.
func (o *Origin) Serialize() string {
	cfg := ini.Empty()

	originSec, _ := cfg.NewSection(sectionOrigin)
	switch o.ClassifyBase() {
	case BaseContainerImage:
		originSec.NewKey(keyContainerImageReference, o.ContainerImage)
	case BaseChecksum:
		originSec.NewKey(keyRefspec, o.Checksum)
	case BaseOstreeBranch:
		if o.Remote != "" {
			originSec.NewKey(keyRefspec, o.Remote+":"+o.Ref)
		} else {
			originSec.NewKey(keyRefspec, o.Ref)
		}
	}
	if o.OverrideCommit != "" {
		originSec.NewKey(keyOverrideCommit, o.OverrideCommit)
	}
	if o.UnconfiguredState != "" {
		originSec.NewKey(keyUnconfiguredState, o.UnconfiguredState)
	}
	if o.CustomOriginURL != "" {
		originSec.NewKey(keyCustomURL, o.CustomOriginURL)
	}
	if o.CustomOriginDescription != "" {
		originSec.NewKey(keyCustomDescription, o.CustomOriginDescription)
	}

	if len(o.Packages) > 0 || len(o.LocalPackages) > 0 || len(o.LocalFileOverridePackages) > 0 {
		pkgSec, _ := cfg.NewSection(sectionPackages)
		if len(o.Packages) > 0 {
			pkgSec.NewKey(keyRequested, joinSorted(o.Packages))
		}
		if len(o.LocalPackages) > 0 {
			pkgSec.NewKey(keyRequestedLocal, joinSortedLocal(o.LocalPackages))
		}
		if len(o.LocalFileOverridePackages) > 0 {
			pkgSec.NewKey(keyRequestedLocalFileOverride, joinSortedLocal(o.LocalFileOverridePackages))
		}
	}

	if len(o.OverridesRemove) > 0 || len(o.OverridesReplaceLocal) > 0 {
		overridesSec, _ := cfg.NewSection(sectionOverrides)
		if len(o.OverridesRemove) > 0 {
			overridesSec.NewKey(keyRemoveOverride, joinSorted(o.OverridesRemove))
		}
		if len(o.OverridesReplaceLocal) > 0 {
			overridesSec.NewKey(keyReplaceOverride, joinSortedLocal(o.OverridesReplaceLocal))
		}
	}

	if o.InitramfsRegenerate || len(o.InitramfsArgs) > 0 || len(o.InitramfsEtcFiles) > 0 || o.Cliwrap {
		rSec, _ := cfg.NewSection(sectionRpmOstree)
		if o.InitramfsRegenerate {
			rSec.NewKey(keyRegenerateInitramfs, "true")
		}
		if len(o.InitramfsArgs) > 0 {
			// initramfs args are order-sensitive (they're dracut CLI
			// arguments), unlike the other list fields, so they are NOT
			// sorted here.
			rSec.NewKey(keyInitramfsArgs, strings.Join(o.InitramfsArgs, ";"))
		}
		if len(o.InitramfsEtcFiles) > 0 {
			rSec.NewKey(keyInitramfsEtc, joinSorted(o.InitramfsEtcFiles))
		}
		if o.Cliwrap {
			rSec.NewKey(keyCliwrap, "true")
		}
	}

	var buf bytes.Buffer
	_, _ = cfg.WriteTo(&buf)
	return buf.String()
}

// Equal reports whether o and other are logically the same origin: two
// distinct origins are equal iff their canonical serializations match.
func (o *Origin) Equal(other *Origin) bool {
	if o == nil || other == nil {
		return o == other
	}
	return o.Serialize() == other.Serialize()
}
