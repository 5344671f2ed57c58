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

// Booted returns the single booted entry, or nil if none is booted (a
// valid running sysroot always has exactly one; a list under construction
// may not yet).
func Booted(list []*Deployment) *Deployment {
	for _, d := range list {
		if d.Booted {
			return d
		}
	}
	return nil
}

// Staged returns the staged entry for osname, or nil.
func Staged(list []*Deployment, osname string) *Deployment {
	for _, d := range list {
		if d.Staged && d.OSName == osname {
			return d
		}
	}
	return nil
}

// PendingAndRollback walks list once, splitting on the booted entry: the
// first non-booted entry for osname before booted is pending, the first
// after is rollback. Mirrors rpmostree_syscore_query_deployments.
func PendingAndRollback(list []*Deployment, osname string) (pending, rollback *Deployment) {
	booted := Booted(list)
	foundBooted := false
	for _, d := range list {
		if booted != nil && d.Key() == booted.Key() {
			foundBooted = true
			continue
		}
		if d.OSName != osname {
			continue
		}
		if !foundBooted && pending == nil {
			pending = d
		}
		if foundBooted && rollback == nil {
			rollback = d
		}
	}
	return pending, rollback
}
