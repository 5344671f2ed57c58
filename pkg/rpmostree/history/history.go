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

// Package history implements the append-only per-deployment history
// directory: one file per deployment, named after the deployment
// directory's ctime, holding the full deployment metadata so later
// introspection doesn't require reading the bootloader config.
package history

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/coreos/coreos-assembler/pkg/rpmostree/deployment"
	"github.com/coreos/coreos-assembler/pkg/rpmostree/rpmostreeerr"
)

// Entry is one history file's parsed content.
type Entry struct {
	Timestamp  time.Time      `json:"timestamp"`
	Deployment jsonDeployment `json:"deployment"`
}

// jsonDeployment mirrors the subset of rpmostree-client-go's Deployment
// JSON projection that's meaningful for history introspection.
type jsonDeployment struct {
	OSName       string   `json:"osname"`
	Checksum     string   `json:"checksum"`
	BaseChecksum string   `json:"base-checksum"`
	Serial       int32    `json:"serial"`
	Origin       string   `json:"origin"`
	Packages     []string `json:"requested-packages"`
}

func toJSONDeployment(d *deployment.Deployment) jsonDeployment {
	jd := jsonDeployment{
		OSName:       d.OSName,
		Checksum:     d.Checksum,
		BaseChecksum: d.BaseChecksum,
		Serial:       d.Serial,
	}
	if d.Origin != nil {
		jd.Packages = append([]string(nil), d.Origin.Packages...)
		if d.Origin.Remote != "" {
			jd.Origin = d.Origin.Remote + ":" + d.Origin.Ref
		} else {
			jd.Origin = d.Origin.Ref
		}
	}
	return jd
}

// fileName derives the history filename from a deployment directory's
// ctime. When two deployments share a ctime second (possible under fast
// successive runs), a short uuid suffix disambiguates.
func fileName(ctime time.Time, disambiguate bool) string {
	name := strconv.FormatInt(ctime.Unix(), 10)
	if disambiguate {
		name += "-" + uuid.NewString()[:8]
	}
	return name
}

// Append writes a new history entry for d under dir, named by ctime.
// If a file already exists at that name (a ctime collision), it retries
// once with a disambiguating suffix rather than overwriting history.
func Append(dir string, d *deployment.Deployment, ctime time.Time) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return rpmostreeerr.Wrap(err, rpmostreeerr.KindIO, "creating history directory")
	}

	entry := Entry{Timestamp: ctime, Deployment: toJSONDeployment(d)}
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return rpmostreeerr.Wrap(err, rpmostreeerr.KindIO, "encoding history entry")
	}

	name := fileName(ctime, false)
	path := filepath.Join(dir, name)
	if _, err := os.Stat(path); err == nil {
		name = fileName(ctime, true)
		path = filepath.Join(dir, name)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return rpmostreeerr.Wrap(err, rpmostreeerr.KindIO, "writing history entry")
	}
	return nil
}

// List reads every history entry under dir, oldest first.
func List(dir string) ([]Entry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, rpmostreeerr.Wrap(err, rpmostreeerr.KindIO, "listing history directory")
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	out := make([]Entry, 0, len(names))
	for _, n := range names {
		data, err := os.ReadFile(filepath.Join(dir, n))
		if err != nil {
			return nil, rpmostreeerr.Wrap(err, rpmostreeerr.KindIO, "reading history entry "+n)
		}
		var e Entry
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, rpmostreeerr.Wrap(err, rpmostreeerr.KindIO, "parsing history entry "+n)
		}
		out = append(out, e)
	}
	return out, nil
}

// Prune removes the oldest history entries so at most keep remain.
func Prune(dir string, keep int) (removed int, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, rpmostreeerr.Wrap(err, rpmostreeerr.KindIO, "listing history directory")
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	if len(names) <= keep {
		return 0, nil
	}
	toRemove := names[:len(names)-keep]
	for _, n := range toRemove {
		if err := os.Remove(filepath.Join(dir, n)); err != nil {
			return removed, rpmostreeerr.Wrap(err, rpmostreeerr.KindIO, "pruning history entry "+n)
		}
		removed++
	}
	return removed, nil
}
