// Copyright 2014 CoreOS, Inc.
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

// Package progress defines the passive progress sink the upgrader reports
// through. It replaces the original's callback-based, thread-local-global
// progress API with an explicit parameter every caller passes down.
package progress

// Sink receives progress notifications from a running upgrade. All methods
// must be safe to call from a single goroutine only; the upgrader never
// calls a Sink concurrently with itself.
type Sink interface {
	// Message emits a one-off informational line, not tied to a task.
	Message(format string, args ...interface{})
	// BeginTask starts a named unit of work that will later be closed with
	// EndTask. total<=0 means the task has no known completion count.
	BeginTask(name string, total int)
	// ProgressUpdate advances the current task by delta (may be 0 to just
	// refresh the displayed state).
	ProgressUpdate(delta int)
	// SetSubMessage annotates the current task with detail about the
	// specific inner item being processed (e.g. a package name).
	SetSubMessage(msg string)
	// EndTask closes the most recently begun task.
	EndTask()
}

// Silent is a Sink that discards everything; it is the default when a
// caller doesn't supply one.
type Silent struct{}

var _ Sink = Silent{}

func (Silent) Message(string, ...interface{}) {}
func (Silent) BeginTask(string, int)          {}
func (Silent) ProgressUpdate(int)             {}
func (Silent) SetSubMessage(string)           {}
func (Silent) EndTask()                       {}

// Default returns sink if non-nil, else Silent{}. Callers that accept an
// optional Sink parameter should route it through this at the top of the
// function so the rest of the body can assume a non-nil sink.
func Default(sink Sink) Sink {
	if sink == nil {
		return Silent{}
	}
	return sink
}
