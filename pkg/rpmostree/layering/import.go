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

package layering

import (
	"context"

	"github.com/coreos/coreos-assembler/pkg/rpmostree/pkgref"
	"github.com/coreos/coreos-assembler/pkg/rpmostree/progress"
	"github.com/coreos/coreos-assembler/pkg/rpmostree/rpmostreeerr"
)

// PackageImporter downloads and imports one package into the pkgcache as a
// cache-branch commit. Implementations must be idempotent: importing a
// NEVRA whose cache branch already exists at the matching content is a
// no-op.
type PackageImporter interface {
	ImportPackage(ctx context.Context, n pkgref.NEVRA) error
}

// ImportResult reports how many packages were actually fetched (as
// opposed to already cached).
type ImportResult struct {
	Imported int
	Cached   int
}

// ImportPackages runs the import phase: must be called exactly once after
// Prep when prep.Kind != KindNone. It downloads any not-yet-cached rpm
// files named in prep.Solve.ToInstall and imports each as a cache-branch
// commit.
func ImportPackages(ctx context.Context, prep *PrepResult, importer PackageImporter, alreadyCached func(pkgref.NEVRA) bool, sink progress.Sink) (ImportResult, error) {
	sink = progress.Default(sink)
	if prep.Kind == KindNone {
		return ImportResult{}, rpmostreeerr.New(rpmostreeerr.KindConfig, "import called with no pending layering")
	}

	result := ImportResult{}
	sink.BeginTask("Importing packages", len(prep.Solve.ToInstall))
	defer sink.EndTask()

	for _, n := range prep.Solve.ToInstall {
		if alreadyCached != nil && alreadyCached(n) {
			result.Cached++
			sink.ProgressUpdate(1)
			continue
		}
		sink.SetSubMessage(n.String())
		if err := importer.ImportPackage(ctx, n); err != nil {
			return result, rpmostreeerr.Wrapf(err, rpmostreeerr.KindIO, "importing %s", n.String())
		}
		result.Imported++
		sink.ProgressUpdate(1)
	}

	return result, nil
}
