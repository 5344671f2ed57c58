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
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/ini.v1"

	"github.com/coreos/coreos-assembler/pkg/rpmostree/rpmostreeerr"
)

// Section/key names of the on-disk keyfile-equivalent document, grouped
// into four sections: origin, packages, overrides, rpmostree. No modules
// section is read or written.
const (
	sectionOrigin    = "origin"
	sectionPackages  = "packages"
	sectionOverrides = "overrides"
	sectionRpmOstree = "rpmostree"

	keyRefspec                 = "refspec"
	keyBaseRefspec             = "baserefspec"
	keyOverrideCommit          = "override-commit"
	keyContainerImageReference = "container-image-reference"
	keyUnconfiguredState       = "unconfigured-state"
	keyCustomURL               = "custom-url"
	keyCustomDescription       = "custom-description"

	keyRequested                  = "requested"
	keyRequestedLocal             = "requested-local"
	keyRequestedLocalFileOverride = "requested-local-fileoverride"

	keyRemoveOverride  = "remove"
	keyReplaceOverride = "replace-local"

	keyRegenerateInitramfs = "regenerate-initramfs"
	keyInitramfsArgs       = "initramfs-args"
	keyInitramfsEtc        = "initramfs-etc"
	keyCliwrap             = "cliwrap"
)

func splitNonEmpty(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseLocalPackage(s string) (LocalPackage, error) {
	idx := strings.IndexByte(s, ':')
	if idx < 0 {
		return LocalPackage{}, errors.Errorf("malformed local package reference %q: expected sha256:nevra", s)
	}
	return LocalPackage{SHA256: s[:idx], NEVRA: s[idx+1:]}, nil
}

func parseLocalPackages(raw string) ([]LocalPackage, error) {
	items := splitNonEmpty(raw)
	out := make([]LocalPackage, 0, len(items))
	for _, it := range items {
		lp, err := parseLocalPackage(it)
		if err != nil {
			return nil, err
		}
		out = append(out, lp)
	}
	return out, nil
}

// Parse reads a keyfile-equivalent origin document. It fails on an unknown
// base-reference kind, malformed lists, or contradictory fields (both a
// remote ref and a container image reference set at once).
func Parse(document string) (*Origin, error) {
	cfg, err := ini.LoadSources(ini.LoadOptions{AllowNonUniqueSections: false, IgnoreInlineComment: true}, []byte(document))
	if err != nil {
		return nil, rpmostreeerr.Wrap(err, rpmostreeerr.KindConfig, "parsing origin document")
	}

	o := &Origin{}

	originSec := cfg.Section(sectionOrigin)
	// A layered deployment records its tracked upstream under
	// "baserefspec" instead of "refspec"; fall back to it so a layered
	// origin still classifies its base correctly.
	refspec := originSec.Key(keyRefspec).String()
	if refspec == "" {
		refspec = originSec.Key(keyBaseRefspec).String()
	}
	containerRef := originSec.Key(keyContainerImageReference).String()

	switch {
	case refspec != "" && containerRef != "":
		return nil, rpmostreeerr.New(rpmostreeerr.KindConfig,
			"origin has both a refspec and a container-image-reference")
	case containerRef != "":
		o.ContainerImage = containerRef
	case refspec != "":
		if idx := strings.IndexByte(refspec, ':'); idx >= 0 && !looksLikeChecksum(refspec) {
			o.Remote, o.Ref = refspec[:idx], refspec[idx+1:]
		} else if looksLikeChecksum(refspec) {
			o.Checksum = refspec
		} else {
			// bare ref with no remote prefix, e.g. "myref"
			o.Ref = refspec
		}
	default:
		return nil, rpmostreeerr.New(rpmostreeerr.KindConfig,
			"origin has no refspec and no container-image-reference")
	}

	o.OverrideCommit = originSec.Key(keyOverrideCommit).String()
	if o.OverrideCommit != "" && o.ClassifyBase() == BaseContainerImage {
		return nil, rpmostreeerr.New(rpmostreeerr.KindPolicy,
			"override-commit is not permitted together with a container-image-reference origin")
	}

	o.UnconfiguredState = originSec.Key(keyUnconfiguredState).String()
	o.CustomOriginURL = originSec.Key(keyCustomURL).String()
	o.CustomOriginDescription = originSec.Key(keyCustomDescription).String()

	pkgSec := cfg.Section(sectionPackages)
	o.Packages = splitNonEmpty(pkgSec.Key(keyRequested).String())
	if o.LocalPackages, err = parseLocalPackages(pkgSec.Key(keyRequestedLocal).String()); err != nil {
		return nil, rpmostreeerr.Wrap(err, rpmostreeerr.KindConfig, "parsing requested-local")
	}
	if o.LocalFileOverridePackages, err = parseLocalPackages(pkgSec.Key(keyRequestedLocalFileOverride).String()); err != nil {
		return nil, rpmostreeerr.Wrap(err, rpmostreeerr.KindConfig, "parsing requested-local-fileoverride")
	}

	overridesSec := cfg.Section(sectionOverrides)
	o.OverridesRemove = splitNonEmpty(overridesSec.Key(keyRemoveOverride).String())
	if o.OverridesReplaceLocal, err = parseLocalPackages(overridesSec.Key(keyReplaceOverride).String()); err != nil {
		return nil, rpmostreeerr.Wrap(err, rpmostreeerr.KindConfig, "parsing overrides replace-local")
	}

	rpmostreeSec := cfg.Section(sectionRpmOstree)
	o.InitramfsRegenerate = rpmostreeSec.Key(keyRegenerateInitramfs).MustBool(false)
	o.InitramfsArgs = splitNonEmpty(rpmostreeSec.Key(keyInitramfsArgs).String())
	o.InitramfsEtcFiles = splitNonEmpty(rpmostreeSec.Key(keyInitramfsEtc).String())
	o.Cliwrap = rpmostreeSec.Key(keyCliwrap).MustBool(false)

	if o.InitramfsRegenerate && len(o.InitramfsEtcFiles) > 0 {
		return nil, rpmostreeerr.New(rpmostreeerr.KindPolicy,
			"initramfs regeneration and /etc overlay tracking are mutually exclusive")
	}

	return o, nil
}

// looksLikeChecksum is a best-effort heuristic: ostree commit checksums are
// 64 lowercase hex characters with no ':' separator.
func looksLikeChecksum(s string) bool {
	if len(s) != 64 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return false
		}
	}
	return true
}
