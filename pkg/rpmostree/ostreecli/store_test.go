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

package ostreecli

import (
	"testing"

	"github.com/coreos/coreos-assembler/pkg/rpmostree/ostreestore"
)

func TestParsePruneOutput(t *testing.T) {
	out := "Total objects: 1234\nNo unreachable objects\nDeleted 12 objects, 4096 bytes freed\n"
	got := parsePruneOutput(out)
	want := ostreestore.PrunedStats{ObjectsTotal: 1234, ObjectsPruned: 12, BytesFreed: 4096}
	if got != want {
		t.Fatalf("parsePruneOutput: got %+v, want %+v", got, want)
	}
}

func TestParsePruneOutputNoDeletions(t *testing.T) {
	out := "Total objects: 42\nNo unreachable objects\n"
	got := parsePruneOutput(out)
	if got.ObjectsTotal != 42 || got.ObjectsPruned != 0 || got.BytesFreed != 0 {
		t.Fatalf("parsePruneOutput: got %+v", got)
	}
}
