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
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const pkgCacheBranchPrefix = "rpmostree/pkg/"

// appendQuoted quotes every byte outside [A-Za-z0-9.-] as "_HH" (uppercase
// hex), and doubles a literal '_' to "__". This maps an arbitrary NEVRA
// component into something that's legal as an ostree ref path segment.
func appendQuoted(sb *strings.Builder, value string) {
	for i := 0; i < len(value); i++ {
		c := value[i]
		switch {
		case c == '.' || c == '-':
			sb.WriteByte(c)
		case (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9'):
			sb.WriteByte(c)
		case c == '_':
			sb.WriteString("__")
		default:
			fmt.Fprintf(sb, "_%02X", c)
		}
	}
}

// branchForTypeNameEVRArch builds "rpmostree/<type>/<name>/<evr>.<arch>" from already
// decomposed, already-quoted-ready components. evr has any leading "0:"
// epoch prefix stripped first, following libdnf's convention of treating
// an explicit epoch of zero as no epoch at all.
func branchForTypeNameEVRArch(typ, name, evr, arch string) string {
	evr = strings.TrimPrefix(evr, "0:")
	var sb strings.Builder
	sb.WriteString("rpmostree/")
	sb.WriteString(typ)
	sb.WriteByte('/')
	appendQuoted(&sb, name)
	sb.WriteByte('/')
	appendQuoted(&sb, evr)
	sb.WriteByte('.')
	appendQuoted(&sb, arch)
	return sb.String()
}

// NEVRAToCacheBranch renders the ostree cache branch for a NEVRA, e.g.
// "foo-1.0-1.x86_64" -> "rpmostree/pkg/foo/1.0-1.x86__64".
func NEVRAToCacheBranch(n NEVRA) string {
	return branchForTypeNameEVRArch("pkg", n.Name, n.EVR(), n.Arch)
}

// NEVRAStringToCacheBranch is a convenience wrapper that first parses nevra.
func NEVRAStringToCacheBranch(nevra string) (string, error) {
	n, err := ParseNEVRA(nevra)
	if err != nil {
		return "", err
	}
	return NEVRAToCacheBranch(n), nil
}

// CacheBranchToNEVRA is the exact inverse of NEVRAToCacheBranch: it
// unquotes the branch and rejoins name/evr/arch with '-' instead of '/'.
func CacheBranchToNEVRA(cachebranch string) (string, error) {
	if !strings.HasPrefix(cachebranch, pkgCacheBranchPrefix) {
		return "", errors.Errorf("cache branch %q missing prefix %q", cachebranch, pkgCacheBranchPrefix)
	}
	body := cachebranch[len(pkgCacheBranchPrefix):]

	var sb strings.Builder
	for i := 0; i < len(body); i++ {
		c := body[i]
		if c != '_' {
			if c == '/' {
				sb.WriteByte('-')
			} else {
				sb.WriteByte(c)
			}
			continue
		}

		i++
		if i >= len(body) {
			break
		}
		c = body[i]
		if c == '_' {
			sb.WriteByte('_')
			continue
		}
		if i+1 >= len(body) {
			break
		}
		hexPair := body[i : i+2]
		v, err := strconv.ParseUint(hexPair, 16, 8)
		if err != nil {
			return "", errors.Wrapf(err, "cache branch %q has invalid quoting %q", cachebranch, hexPair)
		}
		sb.WriteByte(byte(v))
		i++
	}
	return sb.String(), nil
}
