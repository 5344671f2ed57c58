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

package history

import (
	"testing"
	"time"

	"github.com/coreos/coreos-assembler/pkg/rpmostree/deployment"
	"github.com/coreos/coreos-assembler/pkg/rpmostree/origin"
)

func TestAppendAndList(t *testing.T) {
	dir := t.TempDir()
	d := &deployment.Deployment{
		OSName: "fedora", Checksum: "c1", BaseChecksum: "b1", Serial: 0,
		Origin: &origin.Origin{Remote: "fedora", Ref: "stable", Packages: []string{"vim"}},
	}

	t1 := time.Unix(1000, 0)
	if err := Append(dir, d, t1); err != nil {
		t.Fatalf("Append: %v", err)
	}

	entries, err := List(dir)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Deployment.Checksum != "c1" {
		t.Fatalf("unexpected checksum: %q", entries[0].Deployment.Checksum)
	}
	if len(entries[0].Deployment.Packages) != 1 || entries[0].Deployment.Packages[0] != "vim" {
		t.Fatalf("unexpected packages: %v", entries[0].Deployment.Packages)
	}
}

func TestAppendCollisionDisambiguates(t *testing.T) {
	dir := t.TempDir()
	d1 := &deployment.Deployment{OSName: "fedora", Checksum: "c1", BaseChecksum: "b1"}
	d2 := &deployment.Deployment{OSName: "fedora", Checksum: "c2", BaseChecksum: "b2"}

	t1 := time.Unix(2000, 0)
	if err := Append(dir, d1, t1); err != nil {
		t.Fatalf("Append d1: %v", err)
	}
	if err := Append(dir, d2, t1); err != nil {
		t.Fatalf("Append d2: %v", err)
	}

	entries, err := List(dir)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries after ctime collision, got %d", len(entries))
	}
}

func TestPruneKeepsNewest(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 5; i++ {
		d := &deployment.Deployment{OSName: "fedora", Checksum: string(rune('a' + i))}
		if err := Append(dir, d, time.Unix(int64(1000+i), 0)); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	removed, err := Prune(dir, 2)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 3 {
		t.Fatalf("expected 3 removed, got %d", removed)
	}

	entries, err := List(dir)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 remaining entries, got %d", len(entries))
	}
}
