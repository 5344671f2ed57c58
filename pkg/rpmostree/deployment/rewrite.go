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

// InsertOptions parameterizes InsertDeployment.
type InsertOptions struct {
	// RollbackOnly, if set, inserts the new deployment immediately after
	// booted instead of prepending it, and is conservative about what
	// pending-region entries it retains (used for the "rollback deploy"
	// workflow where existing pending state must not be disturbed).
	RollbackOnly bool
	// BootedIsLiveApplied indicates the booted deployment has a live
	// overlay applied; when true every entry from booted forward is kept
	// verbatim, since their relative positions now carry live-state
	// meaning a live engine reads back.
	BootedIsLiveApplied bool
}

// InsertDeployment computes the new ordered deployment list produced by
// inserting newDeployment relative to current, booted and merge. It walks
// current once; see spec §4.4 for the full retention rule.
func InsertDeployment(current []*Deployment, booted, merge, newDeployment *Deployment, opts InsertOptions) []*Deployment {
	result := make([]*Deployment, 0, len(current)+1)

	if !opts.RollbackOnly {
		result = append(result, newDeployment)
	}

	beforeBooted := true
	for _, d := range current {
		isBooted := booted != nil && d.Key() == booted.Key()
		isMerge := merge != nil && d.Key() == merge.Key()

		retain := d.OSName != newDeployment.OSName ||
			isBooted || isMerge ||
			(opts.BootedIsLiveApplied && !beforeBooted) ||
			(opts.RollbackOnly && beforeBooted)

		if isBooted {
			beforeBooted = false
		}

		if opts.RollbackOnly && isBooted {
			result = append(result, d)
			result = append(result, newDeployment)
			continue
		}

		if retain {
			result = append(result, d)
		}
	}

	return result
}

// Filter drops pending and/or rollback entries for osname, per
// cleanupPending/cleanupRollback. Pinned entries, booted, and entries for
// other osnames always pass through. Returns (nil, false) when the result
// would equal the input, signaling callers that no write is needed.
func Filter(current []*Deployment, osname string, cleanupPending, cleanupRollback bool) ([]*Deployment, bool) {
	booted := Booted(current)
	result := make([]*Deployment, 0, len(current))
	foundBooted := false
	changed := false

	for _, d := range current {
		isBooted := booted != nil && d.Key() == booted.Key()
		if isBooted {
			foundBooted = true
			result = append(result, d)
			continue
		}

		if d.OSName != osname {
			result = append(result, d)
			continue
		}

		if d.Pinned {
			result = append(result, d)
			continue
		}

		if !foundBooted && cleanupPending {
			changed = true
			continue
		}
		if foundBooted && cleanupRollback {
			changed = true
			continue
		}

		result = append(result, d)
	}

	if !changed {
		return nil, false
	}
	return result, true
}
