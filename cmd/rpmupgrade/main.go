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

// rpmupgrade is a thin manual/scripted front end for the sysroot upgrader,
// standing in for the out-of-scope CLI/D-Bus daemon (spec §1). It wires
// upgrader.Upgrader against a real ostree repo via pkg/rpmostree/ostreecli;
// local assembly (package layering) requires a depsolve backend, which
// remains out of scope, so "deploy" only drives pure rebases.
package main

import (
	"fmt"
	"os"

	"github.com/coreos/pkg/capnslog"
	"github.com/spf13/cobra"

	"github.com/coreos/coreos-assembler/pkg/rpmostree/history"
	"github.com/coreos/coreos-assembler/pkg/rpmostree/origin"
)

var plog = capnslog.NewPackageLogger("github.com/coreos/coreos-assembler", "rpmupgrade")

var (
	root = &cobra.Command{
		Use:   "rpmupgrade [command]",
		Short: "Manual front end for the sysroot upgrader",
	}

	repoPath   string
	osname     string
	historyDir string

	cmdDeploy = &cobra.Command{
		Use:   "deploy",
		Short: "Resolve and rebase onto the current origin's base reference",
		RunE:  runDeploy,
	}

	cmdStatus = &cobra.Command{
		Use:   "status",
		Short: "Print the current deployment list as client-go JSON",
		RunE:  runStatus,
	}

	cmdOriginShow = &cobra.Command{
		Use:   "origin-show [path]",
		Short: "Parse and re-serialize an origin file, for inspection",
		Args:  cobra.ExactArgs(1),
		RunE:  runOriginShow,
	}

	cmdHistoryList = &cobra.Command{
		Use:   "history-list",
		Short: "List deployment history entries",
		RunE:  runHistoryList,
	}

	deployFlags struct {
		allowOlder         bool
		dryRun             bool
		syntheticPull      bool
		lockFinalization   bool
		ignoreUnconfigured bool
	}
)

func init() {
	root.PersistentFlags().StringVar(&repoPath, "repo", "/ostree/repo", "path to the ostree repo")
	root.PersistentFlags().StringVar(&osname, "os", "default", "osname to operate on")
	root.PersistentFlags().StringVar(&historyDir, "history-dir", "/var/lib/rpmupgrade/history", "deployment history directory")

	cmdDeploy.Flags().BoolVar(&deployFlags.allowOlder, "allow-older", false, "skip the base timestamp monotonicity check")
	cmdDeploy.Flags().BoolVar(&deployFlags.dryRun, "dry-run", false, "print the pending transaction without writing it")
	cmdDeploy.Flags().BoolVar(&deployFlags.syntheticPull, "synthetic-pull", false, "resolve the base ref from local repo data only")
	cmdDeploy.Flags().BoolVar(&deployFlags.lockFinalization, "lock-finalization", false, "create the lock-finalization marker before staging")
	cmdDeploy.Flags().BoolVar(&deployFlags.ignoreUnconfigured, "ignore-unconfigured", false, "proceed even if the origin is marked unconfigured")

	root.AddCommand(cmdDeploy, cmdStatus, cmdOriginShow, cmdHistoryList)
}

func main() {
	if err := root.Execute(); err != nil {
		plog.Errorf("%v", err)
		os.Exit(1)
	}
}

func runOriginShow(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	o, err := origin.Parse(string(data))
	if err != nil {
		return err
	}
	fmt.Print(o.Serialize())
	return nil
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	entries, err := history.List(historyDir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Printf("%s\t%s\t%s\n", e.Timestamp.Format("2006-01-02T15:04:05Z07:00"), e.Deployment.OSName, e.Deployment.Checksum)
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	sysroot, err := newSysroot()
	if err != nil {
		return err
	}
	list, err := sysroot.CurrentDeployments(cmd.Context(), osname)
	if err != nil {
		return err
	}
	return printStatus(list)
}

func runDeploy(cmd *cobra.Command, args []string) error {
	u, err := newUpgrader()
	if err != nil {
		return err
	}
	result, err := u.Deploy(cmd.Context(), buildFlags(), defaultAssembleOptions())
	if err != nil {
		return err
	}
	if result.NoChange {
		fmt.Println("No changes.")
		return nil
	}
	fmt.Printf("Deployed %s\n", result.TargetRevision)
	return nil
}
