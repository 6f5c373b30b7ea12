// Package transport implements the agent's server-facing wire transport
// (§6): a bidirectional-streaming gRPC connection carrying the ToServer and
// FromServer message families, encoded with a small JSON codec instead of
// protoc-generated stubs (no .proto toolchain runs as part of building this
// agent).
package transport

import "github.com/cuemby/nodeagent/pkg/types"

// ToServer is one message this agent sends upstream. Exactly one of its
// fields is non-nil; Kind names which.
type ToServer struct {
	Kind Kind `json:"kind"`

	Hello               *Hello               `json:"hello,omitempty"`
	UpdateWorkloadState *UpdateWorkloadState `json:"update_workload_state,omitempty"`
	Goodbye             *Goodbye             `json:"goodbye,omitempty"`
}

// FromServer is one message received from the server. Exactly one of its
// fields is non-nil; Kind names which.
type FromServer struct {
	Kind Kind `json:"kind"`

	ServerHello         *ServerHello         `json:"server_hello,omitempty"`
	UpdateWorkload      *UpdateWorkload      `json:"update_workload,omitempty"`
	UpdateWorkloadState *UpdateWorkloadState `json:"update_workload_state,omitempty"`
	Goodbye             *Goodbye             `json:"goodbye,omitempty"`
}

// Kind tags which variant of ToServer/FromServer is populated.
type Kind string

const (
	KindHello               Kind = "hello"
	KindServerHello         Kind = "server_hello"
	KindUpdateWorkload      Kind = "update_workload"
	KindUpdateWorkloadState Kind = "update_workload_state"
	KindGoodbye             Kind = "goodbye"
)

// Hello is the agent's initial announcement to the server (ToServer).
type Hello struct {
	AgentName types.AgentName `json:"agent_name"`
}

// ServerHello is the server's acknowledgment of Hello (FromServer).
type ServerHello struct {
	AgentName types.AgentName `json:"agent_name"`
}

// UpdateWorkload carries a desired-state delta: workloads to add (or
// update, if their workload name is already live) and workloads to delete
// (FromServer). The first UpdateWorkload an agent receives after Hello is
// the complete initial desired state Bootstrap cross-references against.
type UpdateWorkload struct {
	Added   []types.WorkloadSpec     `json:"added,omitempty"`
	Deleted []types.DeletedWorkload  `json:"deleted,omitempty"`
}

// UpdateWorkloadState carries execution state reports. Sent upstream by
// this agent (ToServer) whenever a state-checker event is recorded into
// Parameter Storage; can also arrive from the server (FromServer) carrying
// other agents' states this agent's dependencies reference.
type UpdateWorkloadState struct {
	States []types.WorkloadStateEvent `json:"states"`
}

// Goodbye is a graceful-termination notice, sent in either direction.
type Goodbye struct {
	Reason string `json:"reason,omitempty"`
}

// NewHello builds the ToServer Hello message for agentName.
func NewHello(agentName types.AgentName) ToServer {
	return ToServer{Kind: KindHello, Hello: &Hello{AgentName: agentName}}
}

// NewUpdateWorkloadState builds the ToServer state-report message.
func NewUpdateWorkloadState(states []types.WorkloadStateEvent) ToServer {
	return ToServer{Kind: KindUpdateWorkloadState, UpdateWorkloadState: &UpdateWorkloadState{States: states}}
}

// NewGoodbye builds the ToServer shutdown notice.
func NewGoodbye(reason string) ToServer {
	return ToServer{Kind: KindGoodbye, Goodbye: &Goodbye{Reason: reason}}
}
