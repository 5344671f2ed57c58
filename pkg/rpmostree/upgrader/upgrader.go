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

// Package upgrader implements C8, the sysroot upgrader orchestrator: the
// state machine that owns a run's lifecycle from loading the current
// deployments through resolving a base, (maybe) layering, writing the new
// deployment, and cleaning up.
package upgrader

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/journal"
	"github.com/coreos/pkg/capnslog"

	"github.com/coreos/coreos-assembler/pkg/rpmostree/baseresolver"
	"github.com/coreos/coreos-assembler/pkg/rpmostree/deployment"
	"github.com/coreos/coreos-assembler/pkg/rpmostree/history"
	"github.com/coreos/coreos-assembler/pkg/rpmostree/layering"
	"github.com/coreos/coreos-assembler/pkg/rpmostree/origin"
	"github.com/coreos/coreos-assembler/pkg/rpmostree/ostreestore"
	"github.com/coreos/coreos-assembler/pkg/rpmostree/pkgcache"
	"github.com/coreos/coreos-assembler/pkg/rpmostree/pkgref"
	"github.com/coreos/coreos-assembler/pkg/rpmostree/progress"
	"github.com/coreos/coreos-assembler/pkg/rpmostree/rpmostreeerr"
	"github.com/coreos/coreos-assembler/pkg/rpmostree/solver"
)

var plog = capnslog.NewPackageLogger("github.com/coreos/coreos-assembler", "rpmostree/upgrader")

// newDeploymentMessageID is the journal MESSAGE_ID marking creation of a
// new deployment (spec §6).
const newDeploymentMessageID = "9bddbda177cd44d891b1b561a8a0ce9e"

// Sysroot is the narrow surface the upgrader needs from the sysroot:
// enumerate the current deployment list, stage or write a new one, create
// the lock-finalization marker, and run the post-assembly sanity check.
type Sysroot interface {
	CurrentDeployments(ctx context.Context, osname string) ([]*deployment.Deployment, error)
	// Stage writes list as runtime state, fully applied on next boot,
	// without disturbing the currently-running deployment.
	Stage(ctx context.Context, list []*deployment.Deployment) error
	// WriteDeployments writes list immediately (this sysroot is not
	// currently booted).
	WriteDeployments(ctx context.Context, list []*deployment.Deployment) error
	CreateLockFinalizationMarker(ctx context.Context) error
	// RunSanityCheck runs an arbitrary "true"-equivalent command inside
	// rootPath to detect egregious corruption before it's only caught
	// on next boot.
	RunSanityCheck(ctx context.Context, rootPath string) error
	// DeploymentDirCtime returns the ctime used to name the history
	// file for a freshly written deployment.
	DeploymentDirCtime(ctx context.Context, d *deployment.Deployment) (time.Time, error)
}

// Upgrader owns one run's lifecycle against a single sysroot/osname.
type Upgrader struct {
	OSName      string
	CommandLine string
	Agent       string
	AgentUnit   string

	// Booted is true iff this process is running from the sysroot being
	// upgraded; it decides whether the new deployment is staged or
	// written immediately.
	Booted bool

	Sysroot   Sysroot
	Store     ostreestore.Store
	Packages  pkgcache.PackageListProvider
	Checkout  layering.Checkout
	Assembler layering.Assembler
	Importer  layering.PackageImporter
	// AlreadyCached reports whether n's rpm is already present in the
	// pkgcache, letting ImportPackages skip a redundant fetch.
	AlreadyCached func(n pkgref.NEVRA) bool
	Solver        solver.Solver

	HistoryDir string
	Sink       progress.Sink

	// MergeDeployment is the deployment whose origin drives this run
	// (usually booted, but e.g. a rollback deploy uses a different
	// one).
	MergeDeployment *deployment.Deployment
	// OriginalOrigin is MergeDeployment's origin, preserved unmutated.
	OriginalOrigin *origin.Origin

	// state accumulated across the phases; exported for callers that
	// want to inspect a dry run's findings.
	ComputedOrigin *origin.Origin
	BaseRevision   string
	FinalRevision  string
}

// DeployResult reports the outcome of a Deploy call.
type DeployResult struct {
	// NoChange is true when the computed deployment would be identical
	// to the currently booted one (CLI maps this to exit code 77).
	NoChange bool
	// TargetRevision is the commit the new deployment was written
	// against (FinalRevision if layering produced one, else
	// BaseRevision).
	TargetRevision string
	PkgcacheResult pkgcache.Result
}

// Deploy runs one full upgrade cycle per spec §4.8.
func (u *Upgrader) Deploy(ctx context.Context, flags Flags, assembleOpts layering.AssembleOptions) (*DeployResult, error) {
	sink := progress.Default(u.Sink)

	if u.OriginalOrigin.UnconfiguredState != "" && !flags.IgnoreUnconfigured {
		return nil, rpmostreeerr.Newf(rpmostreeerr.KindPolicy,
			"origin is unconfigured: %s (use IgnoreUnconfigured to proceed)", u.OriginalOrigin.UnconfiguredState)
	}

	current, err := u.Sysroot.CurrentDeployments(ctx, u.OSName)
	if err != nil {
		return nil, rpmostreeerr.Wrap(err, rpmostreeerr.KindIO, "loading current deployments")
	}
	booted := deployment.Booted(current)

	baseResolveOpts := baseresolver.Options{AllowOlder: flags.AllowOlder, SyntheticPull: flags.SyntheticPull}
	resolved, err := baseresolver.Resolve(ctx, u.Store, u.OriginalOrigin, u.MergeDeployment.BaseChecksum, baseResolveOpts, sink)
	if err != nil {
		return nil, err
	}
	u.BaseRevision = resolved.BaseCommit
	if resolved.MergeCommit != "" {
		u.BaseRevision = resolved.MergeCommit
	}

	prep, err := layering.PrepLayering(ctx, u.OriginalOrigin, u.Checkout, u.BaseRevision,
		u.MergeDeployment.StateChecksum, u.MergeDeployment.IsLayered(), u.Solver,
		layering.PrepOptions{PkgcacheOnly: flags.PkgcacheOnly})
	if err != nil {
		return nil, err
	}
	u.ComputedOrigin = prep.Computed

	if flags.DryRun {
		printDryRunSummary(u, resolved, prep, sink)
		return &DeployResult{NoChange: !prep.Changed && !resolved.Changed, TargetRevision: u.targetRevision()}, nil
	}

	if prep.Kind != layering.KindNone {
		if _, err := layering.ImportPackages(ctx, prep, u.Importer, u.AlreadyCached, sink); err != nil {
			return nil, err
		}
	}

	noChange := !prep.Changed && !resolved.Changed
	if noChange {
		return &DeployResult{NoChange: true, TargetRevision: u.targetRevision()}, nil
	}

	var stateChecksum string
	if prep.Kind != layering.KindNone {
		assembled, err := layering.PerformAssembly(ctx, prep, u.BaseRevision, u.Assembler, u.Store, assembleOpts)
		if err != nil {
			return nil, err
		}
		u.FinalRevision = assembled.FinalRevision
		stateChecksum = prep.Solve.StateChecksum
	}

	target := u.targetRevision()
	newDeployment := &deployment.Deployment{
		OSName:        u.OSName,
		BaseChecksum:  u.BaseRevision,
		Checksum:      target,
		Origin:        u.ComputedOrigin,
		Serial:        nextSerial(current, u.OSName),
		StateChecksum: stateChecksum,
	}

	nextList := deployment.InsertDeployment(current, booted, u.MergeDeployment, newDeployment, deployment.InsertOptions{
		BootedIsLiveApplied: booted != nil && booted.IsLive(),
	})

	if u.Booted {
		if flags.LockFinalization {
			if err := u.Sysroot.CreateLockFinalizationMarker(ctx); err != nil {
				return nil, rpmostreeerr.Wrap(err, rpmostreeerr.KindIO, "creating lock-finalization marker")
			}
		}
		newDeployment.Staged = true
		if err := u.Sysroot.Stage(ctx, nextList); err != nil {
			return nil, rpmostreeerr.Wrap(err, rpmostreeerr.KindIO, "staging deployment")
		}
	} else {
		if err := u.Sysroot.WriteDeployments(ctx, nextList); err != nil {
			return nil, rpmostreeerr.Wrap(err, rpmostreeerr.KindIO, "writing deployment")
		}
	}

	if u.FinalRevision != "" {
		if err := u.Store.WriteRefsTransaction(ctx, map[string]string{"rpmostree/base/tmp": u.BaseRevision}); err != nil {
			return nil, rpmostreeerr.Wrap(err, rpmostreeerr.KindIO, "pinning transient base ref")
		}
	}

	ctime, err := u.Sysroot.DeploymentDirCtime(ctx, newDeployment)
	if err != nil {
		return nil, rpmostreeerr.Wrap(err, rpmostreeerr.KindIO, "reading deployment directory ctime")
	}
	if err := history.Append(u.HistoryDir, newDeployment, ctime); err != nil {
		return nil, err
	}
	u.emitJournal(newDeployment, ctime)

	if !newDeployment.IsLayered() {
		if u.Checkout != nil {
			rootPath, _, err := u.Checkout.CheckoutBase(ctx, target)
			if err == nil && rootPath != "" {
				if err := u.Sysroot.RunSanityCheck(ctx, rootPath); err != nil {
					return nil, rpmostreeerr.Wrap(err, rpmostreeerr.KindIntegrity, "post-deploy sanity check")
				}
			}
		}
	}

	pkgcacheResult, err := pkgcache.RegenerateRefs(ctx, u.Store, u.Packages, nextList, sink)
	if err != nil {
		// Regeneration failures during final cleanup are logged, not
		// fatal: the deployment was already written successfully.
		plog.Errorf("regenerating pkgcache refs after deploy: %v", err)
	}

	return &DeployResult{NoChange: false, TargetRevision: target, PkgcacheResult: pkgcacheResult}, nil
}

func (u *Upgrader) targetRevision() string {
	if u.FinalRevision != "" {
		return u.FinalRevision
	}
	return u.BaseRevision
}

func nextSerial(current []*deployment.Deployment, osname string) int32 {
	var max int32 = -1
	for _, d := range current {
		if d.OSName == osname && d.Serial > max {
			max = d.Serial
		}
	}
	return max + 1
}

func (u *Upgrader) emitJournal(d *deployment.Deployment, ctime time.Time) {
	vars := map[string]string{
		"MESSAGE_ID":           newDeploymentMessageID,
		"DEPLOYMENT_TIMESTAMP": ctime.UTC().Format(time.RFC3339),
		"DEPLOYMENT_CHECKSUM":  d.Checksum,
		"DEPLOYMENT_REFSPEC":   refspecFor(d.Origin),
	}
	if u.CommandLine != "" {
		vars["COMMAND_LINE"] = u.CommandLine
	}
	if u.Agent != "" {
		vars["AGENT"] = u.Agent
	}
	if u.AgentUnit != "" {
		vars["AGENT_SD_UNIT"] = u.AgentUnit
	}
	if err := journal.Send("Created new deployment "+d.Checksum, journal.PriInfo, vars); err != nil {
		plog.Warningf("failed to write deployment creation journal message: %v", err)
	}
}

func refspecFor(o *origin.Origin) string {
	if o == nil {
		return ""
	}
	switch o.ClassifyBase() {
	case origin.BaseContainerImage:
		return o.ContainerImage
	case origin.BaseChecksum:
		return o.Checksum
	default:
		if o.Remote != "" {
			return o.Remote + ":" + o.Ref
		}
		return o.Ref
	}
}
