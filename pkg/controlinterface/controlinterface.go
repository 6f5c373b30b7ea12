// Package controlinterface implements the per-workload control interface:
// a pair of named pipes under a run-directory path that let a workload's
// own process exchange messages with this agent, and through it, the
// server.
//
// Grounded on original_source/agent/src/control_interface/
// control_interface_info.rs: an Info value pairs a pipe location, the
// workload instance it belongs to, and an Authorizer that governs what the
// workload may request over the pipe. HasSameConfiguration decides whether
// a Workload Object update may keep the existing pipe pair in place
// (same path, equivalent authorizer) or must tear it down and recreate it.
package controlinterface

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/cuemby/nodeagent/pkg/types"
)

const (
	inputPipeName  = "input"
	outputPipeName = "output"
)

// Message is one frame exchanged over a workload's control interface pipe.
type Message struct {
	InstanceName types.WorkloadInstanceName
	Payload      []byte
}

// ToServerSender is the send half of a channel for messages read off a
// workload's output pipe. Info stores one; nothing in this package reads
// the pipes or sends on it.
type ToServerSender chan<- Message

// Dir returns the pipe directory for instanceName under runFolder/agentName,
// per the layout <run_folder>/<agent_name>/<instance>/.
func Dir(runFolder string, agentName types.AgentName, instanceName types.WorkloadInstanceName) string {
	return filepath.Join(runFolder, agentName.String(), instanceName.String())
}

// Create makes the pipe directory and its input/output FIFOs. It is
// idempotent: an already-existing directory or FIFO is not an error.
func Create(dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create control interface directory %s: %w", dir, err)
	}
	for _, name := range []string{inputPipeName, outputPipeName} {
		path := filepath.Join(dir, name)
		if err := syscall.Mkfifo(path, 0o600); err != nil && !os.IsExist(err) {
			return fmt.Errorf("create control interface pipe %s: %w", path, err)
		}
	}
	return nil
}

// Remove deletes the pipe directory and its contents.
func Remove(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove control interface directory %s: %w", dir, err)
	}
	return nil
}

// ControlInterface is the live, addressable endpoint a Workload Object
// holds for one running workload.
type ControlInterface struct {
	path       string
	authorizer types.Authorizer
}

// New wraps an already-created pipe directory with the authorizer that
// governs it.
func New(path string, authorizer types.Authorizer) *ControlInterface {
	return &ControlInterface{path: path, authorizer: authorizer}
}

// APILocation returns the pipe directory path.
func (c *ControlInterface) APILocation() string { return c.path }

// GetAuthorizer returns the authorizer governing this interface.
func (c *ControlInterface) GetAuthorizer() types.Authorizer { return c.authorizer }

// Info is what a Workload Object keeps between updates: everything needed
// to compare a new desired configuration against the control interface
// that is already running.
type Info struct {
	path         string
	instanceName types.WorkloadInstanceName
	toServer     ToServerSender
	authorizer   types.Authorizer
}

// NewInfo builds an Info for a freshly created (or adopted) control
// interface.
func NewInfo(path string, toServer ToServerSender, instanceName types.WorkloadInstanceName, authorizer types.Authorizer) *Info {
	return &Info{
		path:         path,
		instanceName: instanceName,
		toServer:     toServer,
		authorizer:   authorizer,
	}
}

// ControlInterfacePath returns the pipe directory path.
func (i *Info) ControlInterfacePath() string { return i.path }

// ToServerSender returns the channel given to NewInfo, which may be nil.
func (i *Info) ToServerSender() ToServerSender { return i.toServer }

// InstanceName returns the workload instance this control interface
// belongs to.
func (i *Info) InstanceName() types.WorkloadInstanceName { return i.instanceName }

// Authorizer returns the authorizer governing this control interface.
func (i *Info) Authorizer() types.Authorizer { return i.authorizer }

// HasSameConfiguration reports whether other is the same control
// interface in every way a Workload Object update cares about: same pipe
// path, and an authorizer that would grant the same operations. Both must
// hold for an update to reuse the pipe in place instead of tearing it
// down.
func (i *Info) HasSameConfiguration(other *ControlInterface) bool {
	if other == nil {
		return false
	}
	if i.path != other.APILocation() {
		return false
	}
	return i.authorizer.Equal(other.authorizer)
}
