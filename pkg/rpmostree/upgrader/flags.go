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

package upgrader

// Flags are the policy switches the CLI front-end passes into Deploy, per
// spec §6.
type Flags struct {
	// IgnoreUnconfigured proceeds even if the origin has an
	// unconfigured_state string set.
	IgnoreUnconfigured bool
	// AllowOlder skips the timestamp-monotonicity check on base pull.
	AllowOlder bool
	// DryRun prints the transaction summary and returns without
	// writing anything.
	DryRun bool
	// PkgcacheOnly forbids network fetch of rpms during import.
	PkgcacheOnly bool
	// SyntheticPull skips contacting the ostree remote and uses local
	// repo data only.
	SyntheticPull bool
	// LockFinalization creates the lock-finalization marker before
	// staging.
	LockFinalization bool
}
