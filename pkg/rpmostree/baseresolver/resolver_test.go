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

package baseresolver

import (
	"context"
	"testing"

	"github.com/coreos/coreos-assembler/pkg/rpmostree/origin"
	"github.com/coreos/coreos-assembler/pkg/rpmostree/ostreestore"
	"github.com/coreos/coreos-assembler/pkg/rpmostree/rpmostreeerr"
)

type fakeStore struct {
	refs         map[string]string
	commitTime   map[string]int64
	pullResult   string
	containerRes ostreestore.ContainerPullResult
}

func (f *fakeStore) ResolveRev(ctx context.Context, ref string) (string, error) {
	return f.refs[ref], nil
}
func (f *fakeStore) CommitTimestamp(ctx context.Context, commit string) (int64, error) {
	return f.commitTime[commit], nil
}
func (f *fakeStore) Pull(ctx context.Context, opts ostreestore.PullOptions) (string, error) {
	return f.pullResult, nil
}
func (f *fakeStore) PullContainerImage(ctx context.Context, imageRef string) (ostreestore.ContainerPullResult, error) {
	return f.containerRes, nil
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
func (f *fakeStore) CommitTree(ctx context.Context, path, parent string, meta map[string]string) (string, error) {
	return "", nil
}

func TestResolveChecksumPin(t *testing.T) {
	o := &origin.Origin{Checksum: "abc123"}
	store := &fakeStore{}
	result, err := Resolve(context.Background(), store, o, "old", Options{}, nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if result.BaseCommit != "abc123" {
		t.Fatalf("expected abc123, got %s", result.BaseCommit)
	}
	if !result.Changed {
		t.Fatal("expected Changed=true")
	}
}

func TestResolveOstreeBranchPulls(t *testing.T) {
	o := &origin.Origin{Remote: "fedora", Ref: "stable"}
	store := &fakeStore{pullResult: "newcommit", commitTime: map[string]int64{"oldcommit": 1, "newcommit": 2}}
	result, err := Resolve(context.Background(), store, o, "oldcommit", Options{}, nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if result.BaseCommit != "newcommit" {
		t.Fatalf("expected newcommit, got %s", result.BaseCommit)
	}
}

func TestResolveMonotonicityViolation(t *testing.T) {
	o := &origin.Origin{Remote: "fedora", Ref: "stable"}
	store := &fakeStore{pullResult: "older", commitTime: map[string]int64{"current": 100, "older": 1}}
	_, err := Resolve(context.Background(), store, o, "current", Options{}, nil)
	if err == nil {
		t.Fatal("expected integrity error for non-monotonic base commit")
	}
	if rpmostreeerr.KindOf(err) != rpmostreeerr.KindIntegrity {
		t.Fatalf("expected KindIntegrity, got %v", rpmostreeerr.KindOf(err))
	}
}

func TestResolveAllowOlderSkipsCheck(t *testing.T) {
	o := &origin.Origin{Remote: "fedora", Ref: "stable"}
	store := &fakeStore{pullResult: "older", commitTime: map[string]int64{"current": 100, "older": 1}}
	_, err := Resolve(context.Background(), store, o, "current", Options{AllowOlder: true}, nil)
	if err != nil {
		t.Fatalf("expected AllowOlder to skip the monotonicity check, got %v", err)
	}
}

func TestResolveContainerImageRejectsOverrideCommit(t *testing.T) {
	o := &origin.Origin{ContainerImage: "ostree-unverified-registry:quay.io/x/y:stable", OverrideCommit: "deadbeef"}
	store := &fakeStore{}
	_, err := Resolve(context.Background(), store, o, "", Options{}, nil)
	if err == nil {
		t.Fatal("expected policy error")
	}
	if rpmostreeerr.KindOf(err) != rpmostreeerr.KindPolicy {
		t.Fatalf("expected KindPolicy, got %v", rpmostreeerr.KindOf(err))
	}
}

func TestResolveContainerImageLayered(t *testing.T) {
	o := &origin.Origin{ContainerImage: "ostree-unverified-registry:quay.io/x/y:stable"}
	store := &fakeStore{containerRes: ostreestore.ContainerPullResult{BaseCommit: "base1", MergeCommit: "merge1"}}
	result, err := Resolve(context.Background(), store, o, "", Options{}, nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if result.BaseCommit != "base1" || result.MergeCommit != "merge1" {
		t.Fatalf("unexpected result: %+v", result)
	}
}
