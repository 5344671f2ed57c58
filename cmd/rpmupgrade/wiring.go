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

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/coreos/coreos-assembler/pkg/rpmostree/deployment"
	"github.com/coreos/coreos-assembler/pkg/rpmostree/kernelfinalize"
	"github.com/coreos/coreos-assembler/pkg/rpmostree/layering"
	"github.com/coreos/coreos-assembler/pkg/rpmostree/ostreecli"
	"github.com/coreos/coreos-assembler/pkg/rpmostree/pkgref"
	"github.com/coreos/coreos-assembler/pkg/rpmostree/rpmostreeerr"
	"github.com/coreos/coreos-assembler/pkg/rpmostree/upgrader"
)

// pkgcacheProvider answers "what's installed" with nothing: this CLI only
// drives pure rebases (no depsolve backend wired in), so no deployment it
// produces is ever layered and no pkgcache branch is ever referenced.
type pkgcacheProvider struct{}

func (pkgcacheProvider) PackageListForDeployment(ctx context.Context, d *deployment.Deployment) ([]pkgref.NEVRA, error) {
	return nil, nil
}

func buildFlags() upgrader.Flags {
	return upgrader.Flags{
		IgnoreUnconfigured: deployFlags.ignoreUnconfigured,
		AllowOlder:         deployFlags.allowOlder,
		DryRun:             deployFlags.dryRun,
		SyntheticPull:      deployFlags.syntheticPull,
		LockFinalization:   deployFlags.lockFinalization,
	}
}

func defaultAssembleOptions() layering.AssembleOptions {
	return layering.AssembleOptions{DestinationPolicy: kernelfinalize.Auto}
}

func newUpgrader() (*upgrader.Upgrader, error) {
	sysroot, err := newSysroot()
	if err != nil {
		return nil, err
	}
	store := &ostreecli.Store{RepoPath: repoPath}

	current, err := sysroot.CurrentDeployments(context.Background(), osname)
	if err != nil {
		return nil, err
	}
	merge := deployment.Booted(current)
	if merge == nil {
		return nil, rpmostreeerr.New(rpmostreeerr.KindConfig, "no booted deployment found for os "+osname)
	}

	return &upgrader.Upgrader{
		OSName:          osname,
		Sysroot:         sysroot,
		Store:           store,
		Packages:        pkgcacheProvider{},
		HistoryDir:      historyDir,
		Booted:          true,
		MergeDeployment: merge,
		OriginalOrigin:  merge.Origin,
	}, nil
}

func printStatus(list []*deployment.Deployment) error {
	status := deployment.ToClientStatus(list)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(status); err != nil {
		return fmt.Errorf("encoding status: %w", err)
	}
	return nil
}
