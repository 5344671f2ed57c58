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
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/coreos/coreos-assembler/pkg/rpmostree/deployment"
	"github.com/coreos/coreos-assembler/pkg/rpmostree/rpmostreeerr"
)

// jsonSysroot implements upgrader.Sysroot against a single deployments.json
// sidecar file under the repo path. Real ostree sysroots encode the
// deployment list in bootloader config entries and /ostree/deploy
// directory names (spec §1's "object store internals", out of scope);
// this file is a stand-in wire format a thin CLI can drive without
// reimplementing that bootloader layer.
type jsonSysroot struct {
	path string
}

func newSysroot() (*jsonSysroot, error) {
	return &jsonSysroot{path: filepath.Join(repoPath, "deployments.json")}, nil
}

func (s *jsonSysroot) CurrentDeployments(ctx context.Context, osname string) ([]*deployment.Deployment, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, rpmostreeerr.Wrap(err, rpmostreeerr.KindIO, "reading deployment list")
	}
	var list []*deployment.Deployment
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, rpmostreeerr.Wrap(err, rpmostreeerr.KindIO, "parsing deployment list")
	}
	return list, nil
}

func (s *jsonSysroot) write(list []*deployment.Deployment) error {
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return rpmostreeerr.Wrap(err, rpmostreeerr.KindIO, "encoding deployment list")
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return rpmostreeerr.Wrap(err, rpmostreeerr.KindIO, "writing deployment list")
	}
	return os.Rename(tmp, s.path)
}

// Stage and WriteDeployments are identical for this stand-in sysroot: it
// has no separate "runtime applied on next boot" vs. "written now" state,
// since there's no real bootloader to stage a change into.
func (s *jsonSysroot) Stage(ctx context.Context, list []*deployment.Deployment) error {
	return s.write(list)
}

func (s *jsonSysroot) WriteDeployments(ctx context.Context, list []*deployment.Deployment) error {
	return s.write(list)
}

func (s *jsonSysroot) CreateLockFinalizationMarker(ctx context.Context) error {
	marker := filepath.Join(filepath.Dir(s.path), ".lock-finalization")
	return os.WriteFile(marker, []byte(time.Now().UTC().Format(time.RFC3339)+"\n"), 0o644)
}

func (s *jsonSysroot) RunSanityCheck(ctx context.Context, rootPath string) error {
	cmd := exec.CommandContext(ctx, "chroot", rootPath, "true")
	if err := cmd.Run(); err != nil {
		return rpmostreeerr.Wrap(err, rpmostreeerr.KindIntegrity, "sanity-check command failed")
	}
	return nil
}

func (s *jsonSysroot) DeploymentDirCtime(ctx context.Context, d *deployment.Deployment) (time.Time, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		return time.Now().UTC(), nil
	}
	return info.ModTime().UTC(), nil
}
