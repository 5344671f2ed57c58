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
	"context"
	"testing"
	"time"

	"github.com/coreos/coreos-assembler/pkg/rpmostree/deployment"
	"github.com/coreos/coreos-assembler/pkg/rpmostree/layering"
	"github.com/coreos/coreos-assembler/pkg/rpmostree/origin"
	"github.com/coreos/coreos-assembler/pkg/rpmostree/ostreestore"
	"github.com/coreos/coreos-assembler/pkg/rpmostree/pkgref"
	"github.com/coreos/coreos-assembler/pkg/rpmostree/solver"
)

type fakeSysroot struct {
	list    []*deployment.Deployment
	staged  []*deployment.Deployment
	written []*deployment.Deployment
	locked  bool
	ctime   time.Time
}

func (f *fakeSysroot) CurrentDeployments(ctx context.Context, osname string) ([]*deployment.Deployment, error) {
	return f.list, nil
}
func (f *fakeSysroot) Stage(ctx context.Context, list []*deployment.Deployment) error {
	f.staged = list
	return nil
}
func (f *fakeSysroot) WriteDeployments(ctx context.Context, list []*deployment.Deployment) error {
	f.written = list
	return nil
}
func (f *fakeSysroot) CreateLockFinalizationMarker(ctx context.Context) error {
	f.locked = true
	return nil
}
func (f *fakeSysroot) RunSanityCheck(ctx context.Context, rootPath string) error { return nil }
func (f *fakeSysroot) DeploymentDirCtime(ctx context.Context, d *deployment.Deployment) (time.Time, error) {
	return f.ctime, nil
}

type fakeStore struct {
	resolved map[string]string
	refs     map[string]string
}

func (f *fakeStore) ResolveRev(ctx context.Context, ref string) (string, error) {
	return f.resolved[ref], nil
}
func (f *fakeStore) CommitTimestamp(ctx context.Context, commit string) (int64, error) { return 0, nil }
func (f *fakeStore) Pull(ctx context.Context, opts ostreestore.PullOptions) (string, error) {
	return f.resolved[opts.Remote+":"+opts.Ref], nil
}
func (f *fakeStore) PullContainerImage(ctx context.Context, imageRef string) (ostreestore.ContainerPullResult, error) {
	return ostreestore.ContainerPullResult{}, nil
}
func (f *fakeStore) ListRefs(ctx context.Context, prefix string) (map[string]string, error) {
	return nil, nil
}
func (f *fakeStore) WriteRefsTransaction(ctx context.Context, refs map[string]string) error {
	if f.refs == nil {
		f.refs = map[string]string{}
	}
	for k, v := range refs {
		f.refs[k] = v
	}
	return nil
}
func (f *fakeStore) Prune(ctx context.Context) (ostreestore.PrunedStats, error) {
	return ostreestore.PrunedStats{}, nil
}
func (f *fakeStore) CheckoutPrivate(ctx context.Context, commit string) (string, error) {
	return "", nil
}
func (f *fakeStore) CommitTree(ctx context.Context, path, parentCommit string, metadata map[string]string) (string, error) {
	return "layered-" + parentCommit, nil
}

type fakePackages struct{}

func (fakePackages) PackageListForDeployment(ctx context.Context, d *deployment.Deployment) ([]pkgref.NEVRA, error) {
	return nil, nil
}

func baseOrigin() *origin.Origin {
	return &origin.Origin{Remote: "fedora", Ref: "stable"}
}

func newTestUpgrader(current []*deployment.Deployment, merge *deployment.Deployment, o *origin.Origin, store *fakeStore) (*Upgrader, *fakeSysroot) {
	sysroot := &fakeSysroot{list: current, ctime: time.Unix(5000, 0)}
	u := &Upgrader{
		OSName:          "fedora",
		Booted:          true,
		Sysroot:         sysroot,
		Store:           store,
		Packages:        fakePackages{},
		MergeDeployment: merge,
		OriginalOrigin:  o,
		HistoryDir:      "", // filled per-test via t.TempDir()
	}
	return u, sysroot
}

func TestDeployPureRebaseWritesNewDeployment(t *testing.T) {
	store := &fakeStore{resolved: map[string]string{"fedora:stable": "commit2"}}
	merge := &deployment.Deployment{OSName: "fedora", BaseChecksum: "commit1", Checksum: "commit1", Booted: true}
	current := []*deployment.Deployment{merge}

	u, sysroot := newTestUpgrader(current, merge, baseOrigin(), store)
	u.HistoryDir = t.TempDir()

	result, err := u.Deploy(context.Background(), Flags{}, layering.AssembleOptions{})
	if err != nil {
		t.Fatalf("Deploy: %v", err)
	}
	if result.NoChange {
		t.Fatal("expected a change for a rebase onto a new base commit")
	}
	if result.TargetRevision != "commit2" {
		t.Fatalf("unexpected target revision: %q", result.TargetRevision)
	}
	if len(sysroot.staged) != 2 {
		t.Fatalf("expected 2 deployments staged (new + retained booted), got %d", len(sysroot.staged))
	}
}

func TestDeployNoOpWhenBaseUnchangedAndNotLayered(t *testing.T) {
	store := &fakeStore{resolved: map[string]string{"fedora:stable": "commit1"}}
	merge := &deployment.Deployment{OSName: "fedora", BaseChecksum: "commit1", Checksum: "commit1", Booted: true}
	current := []*deployment.Deployment{merge}

	u, sysroot := newTestUpgrader(current, merge, baseOrigin(), store)
	u.HistoryDir = t.TempDir()

	result, err := u.Deploy(context.Background(), Flags{}, layering.AssembleOptions{})
	if err != nil {
		t.Fatalf("Deploy: %v", err)
	}
	if !result.NoChange {
		t.Fatal("expected NoChange for an unchanged base with no layering")
	}
	if sysroot.staged != nil || sysroot.written != nil {
		t.Fatal("expected no write on a no-op deploy")
	}
}

func TestDeployDryRunDoesNotWrite(t *testing.T) {
	store := &fakeStore{resolved: map[string]string{"fedora:stable": "commit2"}}
	merge := &deployment.Deployment{OSName: "fedora", BaseChecksum: "commit1", Checksum: "commit1", Booted: true}
	current := []*deployment.Deployment{merge}

	u, sysroot := newTestUpgrader(current, merge, baseOrigin(), store)
	u.HistoryDir = t.TempDir()

	result, err := u.Deploy(context.Background(), Flags{DryRun: true}, layering.AssembleOptions{})
	if err != nil {
		t.Fatalf("Deploy: %v", err)
	}
	if result.NoChange {
		t.Fatal("expected the dry run to report a pending change")
	}
	if sysroot.staged != nil || sysroot.written != nil {
		t.Fatal("dry run must never write a deployment")
	}
}

func TestDeployRejectsUnconfiguredOriginByDefault(t *testing.T) {
	store := &fakeStore{resolved: map[string]string{"fedora:stable": "commit1"}}
	merge := &deployment.Deployment{OSName: "fedora", BaseChecksum: "commit1", Checksum: "commit1", Booted: true}
	o := baseOrigin()
	o.UnconfiguredState = "this system requires manual attention"

	u, _ := newTestUpgrader([]*deployment.Deployment{merge}, merge, o, store)
	u.HistoryDir = t.TempDir()

	if _, err := u.Deploy(context.Background(), Flags{}, layering.AssembleOptions{}); err == nil {
		t.Fatal("expected an error for an unconfigured origin without IgnoreUnconfigured")
	}
}

func TestDeployIgnoreUnconfiguredProceeds(t *testing.T) {
	store := &fakeStore{resolved: map[string]string{"fedora:stable": "commit1"}}
	merge := &deployment.Deployment{OSName: "fedora", BaseChecksum: "commit1", Checksum: "commit1", Booted: true}
	o := baseOrigin()
	o.UnconfiguredState = "this system requires manual attention"

	u, _ := newTestUpgrader([]*deployment.Deployment{merge}, merge, o, store)
	u.HistoryDir = t.TempDir()

	if _, err := u.Deploy(context.Background(), Flags{IgnoreUnconfigured: true}, layering.AssembleOptions{}); err != nil {
		t.Fatalf("Deploy: %v", err)
	}
}

type fakeCheckout struct {
	rootPath string
}

func (f *fakeCheckout) CheckoutBase(ctx context.Context, baseCommit string) (string, layering.BaseSack, error) {
	return f.rootPath, &fakeSack{}, nil
}

type fakeSack struct{ installed []pkgref.NEVRA }

func (f *fakeSack) InstalledPackages(ctx context.Context) ([]pkgref.NEVRA, error) {
	return f.installed, nil
}

type fakeAssembler struct {
	changes layering.AssembleChanges
}

func (f *fakeAssembler) Assemble(ctx context.Context, prep *layering.PrepResult) (layering.AssembleChanges, error) {
	return f.changes, nil
}

type fakeImporter struct{ imported []pkgref.NEVRA }

func (f *fakeImporter) ImportPackage(ctx context.Context, n pkgref.NEVRA) error {
	f.imported = append(f.imported, n)
	return nil
}

type fakeSolver struct{ result solver.Result }

func (f *fakeSolver) Depsolve(ctx context.Context, req solver.Request) (solver.Result, error) {
	return f.result, nil
}

func TestDeployLayersSinglePackage(t *testing.T) {
	store := &fakeStore{resolved: map[string]string{"fedora:stable": "commit1"}}
	merge := &deployment.Deployment{OSName: "fedora", BaseChecksum: "commit1", Checksum: "commit1", Booted: true}
	o := baseOrigin()
	o.Packages = []string{"vim"}
	vim := pkgref.NEVRA{Name: "vim", Version: "9.0", Release: "1.fc38", Arch: "x86_64"}

	u, sysroot := newTestUpgrader([]*deployment.Deployment{merge}, merge, o, store)
	u.HistoryDir = t.TempDir()
	u.Checkout = &fakeCheckout{rootPath: "/tmp/fake"}
	u.Solver = &fakeSolver{result: solver.Result{ToInstall: []pkgref.NEVRA{vim}, StateChecksum: "sum1"}}
	importer := &fakeImporter{}
	u.Importer = importer
	u.Assembler = &fakeAssembler{}

	result, err := u.Deploy(context.Background(), Flags{}, layering.AssembleOptions{})
	if err != nil {
		t.Fatalf("Deploy: %v", err)
	}
	if result.NoChange {
		t.Fatal("expected a change for a new package request")
	}
	if len(importer.imported) != 1 || importer.imported[0].Name != "vim" {
		t.Fatalf("expected vim imported, got %v", importer.imported)
	}
	if result.TargetRevision != "layered-commit1" {
		t.Fatalf("unexpected target revision: %q", result.TargetRevision)
	}
	if len(sysroot.staged) != 2 {
		t.Fatalf("expected new deployment staged alongside booted, got %d", len(sysroot.staged))
	}
}

func TestDeployWritesImmediatelyWhenNotBooted(t *testing.T) {
	store := &fakeStore{resolved: map[string]string{"fedora:stable": "commit2"}}
	merge := &deployment.Deployment{OSName: "fedora", BaseChecksum: "commit1", Checksum: "commit1"}
	current := []*deployment.Deployment{merge}

	u, sysroot := newTestUpgrader(current, merge, baseOrigin(), store)
	u.HistoryDir = t.TempDir()
	u.Booted = false

	if _, err := u.Deploy(context.Background(), Flags{}, layering.AssembleOptions{}); err != nil {
		t.Fatalf("Deploy: %v", err)
	}
	if sysroot.written == nil {
		t.Fatal("expected WriteDeployments to be used when not booted into this sysroot")
	}
	if sysroot.staged != nil {
		t.Fatal("did not expect Stage to be used when not booted into this sysroot")
	}
}

func TestDeployLockFinalizationCreatesMarker(t *testing.T) {
	store := &fakeStore{resolved: map[string]string{"fedora:stable": "commit2"}}
	merge := &deployment.Deployment{OSName: "fedora", BaseChecksum: "commit1", Checksum: "commit1", Booted: true}
	current := []*deployment.Deployment{merge}

	u, sysroot := newTestUpgrader(current, merge, baseOrigin(), store)
	u.HistoryDir = t.TempDir()

	if _, err := u.Deploy(context.Background(), Flags{LockFinalization: true}, layering.AssembleOptions{}); err != nil {
		t.Fatalf("Deploy: %v", err)
	}
	if !sysroot.locked {
		t.Fatal("expected the lock-finalization marker to be created")
	}
}
