// Package rundir implements run-directory preparation (§6): the
// <run_folder>/<agent_name>/ tree this agent's components use to host
// per-workload state files and control-interface IPC endpoints.
//
// Grounded on original_source/agent/src/main.rs's
// io_utils::prepare_agent_run_directory call site, made just before the
// Runtime Facade map is constructed and wired with .unwrap_or_exit(...):
// creation failure here is fatal to the whole process, never a per-workload
// error (§6, §7).
package rundir

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cuemby/nodeagent/pkg/types"
)

// Dir is a prepared run directory: the agent-scoped root
// pkg/controlinterface.Dir and pkg/manager both address workloads under.
type Dir struct {
	root string
}

// Prepare creates <runFolder>/<agentName>/, the directory §6 says hosts
// per-workload state files and control-interface IPC endpoints
// (pkg/controlinterface.Dir joins agentName and an instance name under the
// plain runFolder itself, so this call's only job is to ensure that root
// exists and is writable before anything tries to use it). Any failure
// here is meant to be treated as fatal by the caller (§7's "config/startup
// fatal" category) — Prepare itself only reports the error; exiting the
// process is cmd/agent's job.
func Prepare(runFolder string, agentName types.AgentName) (*Dir, error) {
	if runFolder == "" {
		return nil, fmt.Errorf("run folder must not be empty")
	}
	if agentName == "" {
		return nil, fmt.Errorf("agent name must not be empty")
	}

	root := filepath.Join(runFolder, agentName.String())
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create run directory %s: %w", root, err)
	}

	return &Dir{root: root}, nil
}

// Path returns the agent-scoped run directory root.
func (d *Dir) Path() string {
	return d.root
}
