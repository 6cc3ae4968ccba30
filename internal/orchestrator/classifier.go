// Copyright 2025 Tom Barlow
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

package orchestrator

import "github.com/tombee/ensemble/internal/config"

// IsLocalPipeServer reports whether name is a local stdio server whose
// process lifecycle belongs to this orchestrator. Only local pipe servers
// are candidates for bulk shutdown; remote servers are never touched.
//
// A server qualifies when its config declares stdio (or nothing) and no
// URL, and any of the following holds: this instance holds a live process
// handle for it, this instance launched it, or the config is launchable so
// a future launch would make it local.
func (o *Orchestrator) IsLocalPipeServer(name string) bool {
	cfg, ok := o.store.Get(name)
	if !ok {
		return false
	}
	if cfg.URL != "" {
		return false
	}
	if cfg.Type != "" && cfg.Type != config.TransportStdio {
		return false
	}

	o.mu.Lock()
	handle, hasHandle := o.handles[name]
	_, launchedHere := o.launched[name]
	o.mu.Unlock()

	if hasHandle && handle.Alive() {
		return true
	}
	if launchedHere {
		return true
	}
	return cfg.IsLaunchable()
}
