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

import "testing"

// Fixtures lifted from rpm-ostree's own cache_branch_to_nevra test: pkgs
// imported from doing install foo git vim-enhanced, massaged through
// `ostree refs` / sort / paste / column --table.
func TestCacheBranchToNEVRA(t *testing.T) {
	cases := []struct {
		branch, nevra string
	}{
		{"rpmostree/pkg/foo/1.0-1.x86__64", "foo-1.0-1.x86_64"},
		{"rpmostree/pkg/git/1.8.3.1-6.el7__2.1.x86__64", "git-1.8.3.1-6.el7_2.1.x86_64"},
		{"rpmostree/pkg/gpm-libs/1.20.7-5.el7.x86__64", "gpm-libs-1.20.7-5.el7.x86_64"},
		{"rpmostree/pkg/libgnome-keyring/3.8.0-3.el7.x86__64", "libgnome-keyring-3.8.0-3.el7.x86_64"},
		{"rpmostree/pkg/perl/4_3A5.16.3-291.el7.x86__64", "perl-4:5.16.3-291.el7.x86_64"},
		{"rpmostree/pkg/perl-Carp/1.26-244.el7.noarch", "perl-Carp-1.26-244.el7.noarch"},
		{"rpmostree/pkg/perl-Error/1_3A0.17020-2.el7.noarch", "perl-Error-1:0.17020-2.el7.noarch"},
		{"rpmostree/pkg/vim-common/2_3A7.4.160-1.el7__3.1.x86__64", "vim-common-2:7.4.160-1.el7_3.1.x86_64"},
		{"rpmostree/pkg/vim-enhanced/2_3A7.4.160-1.el7__3.1.x86__64", "vim-enhanced-2:7.4.160-1.el7_3.1.x86_64"},
	}
	for _, c := range cases {
		got, err := CacheBranchToNEVRA(c.branch)
		if err != nil {
			t.Errorf("CacheBranchToNEVRA(%q) error: %v", c.branch, err)
			continue
		}
		if got != c.nevra {
			t.Errorf("CacheBranchToNEVRA(%q) = %q, want %q", c.branch, got, c.nevra)
		}
	}
}

func TestNEVRAToCacheBranchRoundTrip(t *testing.T) {
	cases := []string{
		"foo-1.0-1.x86_64",
		"git-1.8.3.1-6.el7_2.1.x86_64",
		"perl-4:5.16.3-291.el7.x86_64",
		"vim-common-2:7.4.160-1.el7_3.1.x86_64",
		"perl-Error-1:0.17020-2.el7.noarch",
	}
	for _, nevra := range cases {
		branch, err := NEVRAStringToCacheBranch(nevra)
		if err != nil {
			t.Fatalf("NEVRAStringToCacheBranch(%q): %v", nevra, err)
		}
		got, err := CacheBranchToNEVRA(branch)
		if err != nil {
			t.Fatalf("CacheBranchToNEVRA(%q): %v", branch, err)
		}
		if got != nevra {
			t.Errorf("round trip %q -> %q -> %q", nevra, branch, got)
		}
	}
}

func TestZeroEpochOmitted(t *testing.T) {
	n := NEVRA{Name: "foo", Epoch: 0, Version: "1.0", Release: "1", Arch: "x86_64"}
	if n.EVR() != "1.0-1" {
		t.Errorf("EVR() = %q, want %q", n.EVR(), "1.0-1")
	}
	if n.String() != "foo-1.0-1.x86_64" {
		t.Errorf("String() = %q", n.String())
	}
}
