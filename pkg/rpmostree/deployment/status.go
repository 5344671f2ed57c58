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

package deployment

import (
	clientgo "github.com/coreos/rpmostree-client-go/pkg/client"
)

// ToClientStatus projects a deployment list into the same wire shape
// rpmostree-client-go's Status/Deployment model, so consumers of either the
// D-Bus daemon or this engine can share one JSON contract.
func ToClientStatus(deployments []*Deployment) *clientgo.Status {
	out := &clientgo.Status{
		Deployments: make([]clientgo.Deployment, 0, len(deployments)),
	}
	for _, d := range deployments {
		out.Deployments = append(out.Deployments, toClientDeployment(d))
	}
	return out
}

func toClientDeployment(d *Deployment) clientgo.Deployment {
	cd := clientgo.Deployment{
		OSName:       d.OSName,
		Serial:       d.Serial,
		BaseChecksum: &d.BaseChecksum,
		Checksum:     d.Checksum,
		Booted:       d.Booted,
		Pinned:       d.Pinned,
		Staged:       d.Staged,
		LiveReplaced: d.LiveReplaced,
	}
	if d.Origin != nil {
		cd.RequestedPackages = append([]string(nil), d.Origin.Packages...)
		cd.RequestedBaseRemovals = append([]string(nil), d.Origin.OverridesRemove...)
		cd.ContainerImageReference = d.Origin.ContainerImage
		cd.RegenerateInitramfs = d.Origin.InitramfsRegenerate
		if d.Origin.Remote != "" {
			cd.Origin = d.Origin.Remote + ":" + d.Origin.Ref
		} else {
			cd.Origin = d.Origin.Ref
		}
		if d.Origin.CustomOriginURL != "" {
			cd.CustomOrigin = []string{d.Origin.CustomOriginURL, d.Origin.CustomOriginDescription}
		}
		for _, lp := range d.Origin.LocalPackages {
			cd.RequestedLocalPackages = append(cd.RequestedLocalPackages, lp.NEVRA)
		}
		for _, lp := range d.Origin.LocalFileOverridePackages {
			cd.RequestedLocalFileOverridePackages = append(cd.RequestedLocalFileOverridePackages, lp.NEVRA)
		}
	}
	return cd
}
