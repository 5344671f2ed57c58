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

// Package ostreecli implements ostreestore.Store by shelling out to the
// real "ostree" CLI binary against a repo on disk, the same way
// cmd/coreos-assembler.go drives its subcommands via os/exec rather than
// linking a C library. It is the one concrete Store the repo ships;
// everything in pkg/rpmostree is written and tested against the interface,
// not this implementation.
package ostreecli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/coreos/pkg/capnslog"

	"github.com/coreos/coreos-assembler/pkg/rpmostree/ostreestore"
	"github.com/coreos/coreos-assembler/pkg/rpmostree/rpmostreeerr"
)

var plog = capnslog.NewPackageLogger("github.com/coreos/coreos-assembler", "rpmostree/ostreecli")

// Store shells out to "ostree --repo=RepoPath ...".
type Store struct {
	RepoPath string
}

var _ ostreestore.Store = (*Store)(nil)

func (s *Store) run(ctx context.Context, args ...string) (string, error) {
	full := append([]string{"--repo=" + s.RepoPath}, args...)
	cmd := exec.CommandContext(ctx, "ostree", full...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	plog.Debugf("running: ostree %s", strings.Join(full, " "))
	if err := cmd.Run(); err != nil {
		return "", rpmostreeerr.Wrapf(err, rpmostreeerr.KindIO, "ostree %s: %s", strings.Join(args, " "), stderr.String())
	}
	return strings.TrimSpace(stdout.String()), nil
}

func (s *Store) ResolveRev(ctx context.Context, ref string) (string, error) {
	return s.run(ctx, "rev-parse", ref)
}

func (s *Store) CommitTimestamp(ctx context.Context, commit string) (int64, error) {
	out, err := s.run(ctx, "show", "--print-metadata-key=ostree.commit.timestamp", commit)
	if err != nil {
		return 0, err
	}
	out = strings.Trim(out, "'\"")
	ts, parseErr := strconv.ParseInt(out, 10, 64)
	if parseErr != nil {
		return 0, rpmostreeerr.Wrapf(parseErr, rpmostreeerr.KindIO, "parsing commit timestamp for %s", commit)
	}
	return ts, nil
}

func (s *Store) Pull(ctx context.Context, opts ostreestore.PullOptions) (string, error) {
	ref := opts.Ref
	if _, err := s.run(ctx, "pull", opts.Remote, ref); err != nil {
		return "", err
	}
	return s.ResolveRev(ctx, opts.Remote+":"+ref)
}

// PullContainerImage is not implemented by the ostree CLI backend: pulling
// an OCI/container-image base is the job of the container-image-aware
// depsolve/pull backend (spec §1's out-of-scope "depsolve backend
// internals"), not the plain ostree repo.
func (s *Store) PullContainerImage(ctx context.Context, imageRef string) (ostreestore.ContainerPullResult, error) {
	return ostreestore.ContainerPullResult{}, rpmostreeerr.New(rpmostreeerr.KindConfig,
		"container-image base references require a container-aware pull backend, not wired into this CLI")
}

func (s *Store) ListRefs(ctx context.Context, prefix string) (map[string]string, error) {
	out, err := s.run(ctx, "refs", prefix)
	if err != nil {
		return nil, err
	}
	refs := map[string]string{}
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		commit, err := s.ResolveRev(ctx, line)
		if err != nil {
			return nil, err
		}
		refs[line] = commit
	}
	return refs, nil
}

func (s *Store) WriteRefsTransaction(ctx context.Context, refs map[string]string) error {
	args := []string{"refs"}
	for name, commit := range refs {
		if commit == "" {
			args = append(args, "--delete", name)
			continue
		}
		args = append(args, "--create="+name, commit)
	}
	_, err := s.run(ctx, args...)
	return err
}

func (s *Store) Prune(ctx context.Context) (ostreestore.PrunedStats, error) {
	out, err := s.run(ctx, "prune", "--refs-only")
	if err != nil {
		return ostreestore.PrunedStats{}, err
	}
	return parsePruneOutput(out), nil
}

func parsePruneOutput(out string) ostreestore.PrunedStats {
	var stats ostreestore.PrunedStats
	for _, line := range strings.Split(out, "\n") {
		var total, pruned int
		var freed uint64
		if n, _ := fmt.Sscanf(line, "Total objects: %d", &total); n == 1 {
			stats.ObjectsTotal = total
		}
		if n, _ := fmt.Sscanf(line, "Deleted %d objects, %d bytes freed", &pruned, &freed); n == 2 {
			stats.ObjectsPruned = pruned
			stats.BytesFreed = freed
		}
	}
	return stats
}

func (s *Store) CheckoutPrivate(ctx context.Context, commit string) (string, error) {
	dest := s.RepoPath + "/tmp/rpmupgrade-checkout-" + commit
	// Remove any stale checkout from an earlier run, then check out by
	// copying (--force-copy); the files are not hardlinked into the repo.
	if err := os.RemoveAll(dest); err != nil {
		return "", rpmostreeerr.Wrap(err, rpmostreeerr.KindIO, "removing stale checkout")
	}
	if _, err := s.run(ctx, "checkout", "--force-copy", commit, dest); err != nil {
		return "", err
	}
	return dest, nil
}

func (s *Store) CommitTree(ctx context.Context, path, parentCommit string, metadata map[string]string) (string, error) {
	args := []string{"commit", "--tree=dir=" + path}
	if parentCommit != "" {
		args = append(args, "--parent="+parentCommit)
	}
	for k, v := range metadata {
		args = append(args, fmt.Sprintf("--add-metadata-string=%s=%s", k, v))
	}
	return s.run(ctx, args...)
}
