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

package upgrader

import (
	"gopkg.in/yaml.v3"

	"github.com/coreos/coreos-assembler/pkg/rpmostree/baseresolver"
	"github.com/coreos/coreos-assembler/pkg/rpmostree/layering"
	"github.com/coreos/coreos-assembler/pkg/rpmostree/progress"
)

// dryRunSummary is the yaml document printed for a DryRun transaction: what
// would change, without touching the sysroot.
type dryRunSummary struct {
	BaseChanged     bool     `yaml:"base-changed"`
	NewBaseCommit   string   `yaml:"new-base-commit,omitempty"`
	LayeringChanged bool     `yaml:"layering-changed"`
	LayeringKind    string   `yaml:"layering-kind,omitempty"`
	PackagesToLayer []string `yaml:"packages-to-layer,omitempty"`
}

func printDryRunSummary(u *Upgrader, resolved baseresolver.Result, prep *layering.PrepResult, sink progress.Sink) {
	summary := dryRunSummary{
		BaseChanged:     resolved.Changed,
		LayeringChanged: prep.Changed,
	}
	if resolved.Changed {
		summary.NewBaseCommit = resolved.BaseCommit
	}
	if prep.Kind != layering.KindNone {
		summary.LayeringKind = prep.Kind.String()
		for _, n := range prep.Solve.ToInstall {
			summary.PackagesToLayer = append(summary.PackagesToLayer, n.String())
		}
	}

	out, err := yaml.Marshal(summary)
	if err != nil {
		plog.Errorf("encoding dry-run summary: %v", err)
		return
	}
	sink.Message("%s", string(out))
}
