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

	"github.com/coreos/coreos-assembler/pkg/rpmostree/kernelfinalize"
	"github.com/coreos/coreos-assembler/pkg/rpmostree/ostreestore"
	"github.com/coreos/coreos-assembler/pkg/rpmostree/rpmostreeerr"
)

// Assembler performs the in-tree work of phase 3: removing overrides,
// applying replacements, laying overlays, running rpm scripts in a
// sandbox, and (if requested) regenerating the /etc overlay. It returns
// whether the kernel and/or initramfs-relevant inputs changed, and, if the
// initramfs must be rebuilt, the path to the freshly generated file.
type Assembler interface {
	Assemble(ctx context.Context, prep *PrepResult) (AssembleChanges, error)
}

// AssembleChanges reports what the in-tree assembly step determined about
// boot-relevant content.
type AssembleChanges struct {
	KernelChanged       bool
	InitramfsNeedsRegen bool
	NewInitramfsPath    string // set iff InitramfsNeedsRegen
	DracutArgs          []string
}

// AssembleOptions parameterizes PerformAssembly.
type AssembleOptions struct {
	DestinationPolicy kernelfinalize.DestinationPolicy
}

// AssembleResult is the outcome of PerformAssembly.
type AssembleResult struct {
	// FinalRevision is the commit produced, to be used as the
	// deployment's target in place of the base revision.
	FinalRevision string
	BootChecksum  string
}

// PerformAssembly runs phase 3 per spec §4.6: assemble the derived tree,
// finalize the kernel/initramfs via C7 if needed, then commit the result
// with metadata recording the base commit, state checksum and canonical
// initramfs args.
func PerformAssembly(ctx context.Context, prep *PrepResult, baseCommit string, assembler Assembler, store ostreestore.Store, opts AssembleOptions) (*AssembleResult, error) {
	if prep.Kind == KindNone {
		return nil, rpmostreeerr.New(rpmostreeerr.KindConfig, "assembly called with no pending layering")
	}

	changes, err := assembler.Assemble(ctx, prep)
	if err != nil {
		return nil, rpmostreeerr.Wrap(err, rpmostreeerr.KindIO, "assembling derived tree")
	}

	var bootChecksum string
	if changes.InitramfsNeedsRegen {
		loc, err := kernelfinalize.Locate(prep.RootPath)
		if err != nil {
			return nil, err
		}
		bootChecksum, err = kernelfinalize.Finalize(kernelfinalize.FinalizeInput{
			Rootfs:            prep.RootPath,
			Kver:              loc.Kver,
			KernelPath:        loc.KernelPath,
			NewInitramfsPath:  changes.NewInitramfsPath,
			DestinationPolicy: opts.DestinationPolicy,
		})
		if err != nil {
			return nil, err
		}
	} else if changes.KernelChanged {
		loc, err := kernelfinalize.Locate(prep.RootPath)
		if err != nil {
			return nil, err
		}
		bootChecksum, err = kernelfinalize.Finalize(kernelfinalize.FinalizeInput{
			Rootfs:            prep.RootPath,
			Kver:              loc.Kver,
			KernelPath:        loc.KernelPath,
			DestinationPolicy: opts.DestinationPolicy,
		})
		if err != nil {
			return nil, err
		}
	}

	metadata := map[string]string{
		"rpmostree.base-commit":    baseCommit,
		"rpmostree.state-sha512":   prep.Solve.StateChecksum,
		"rpmostree.initramfs-args": joinArgs(changes.DracutArgs),
	}

	commit, err := store.CommitTree(ctx, prep.RootPath, baseCommit, metadata)
	if err != nil {
		return nil, rpmostreeerr.Wrap(err, rpmostreeerr.KindIO, "committing derived tree")
	}

	return &AssembleResult{FinalRevision: commit, BootChecksum: bootChecksum}, nil
}

func joinArgs(args []string) string {
	out := ""
	for i, a := range args {
		if i > 0 {
			out += " "
		}
		out += a
	}
	return out
}
