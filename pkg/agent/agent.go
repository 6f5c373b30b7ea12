// Package agent implements the Agent Manager (C7): the single-task select
// loop over the server transport, the workload-state channel, and an
// optional liveness tick (§4.7). It owns nothing but the loop itself —
// Parameter Storage, the Workload Queue, and the live set all belong to the
// Runtime Manager (pkg/manager), which this package only calls into.
package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/nodeagent/pkg/log"
	"github.com/cuemby/nodeagent/pkg/metrics"
	"github.com/cuemby/nodeagent/pkg/transport"
	"github.com/cuemby/nodeagent/pkg/types"
)

// channelBuffer bounds the ToServer/FromServer channels between this
// package and the transport, per §5's suggested capacity.
const channelBuffer = 20

// Manager is the subset of *manager.Manager the Agent Manager drives. A
// narrow interface keeps this package testable without a real Runtime
// Facade or containerd socket.
type Manager interface {
	Bootstrap(initialDesired []types.WorkloadSpec) error
	ApplyDesiredState(added []types.WorkloadSpec, deleted []types.DeletedWorkload)
	HandleStateEvent(event types.WorkloadStateEvent)
	StateEvents() <-chan types.WorkloadStateEvent
}

// Config carries everything the Agent Manager needs for one run.
type Config struct {
	AgentName types.AgentName
	Manager   Manager
	Client    transport.Client

	// TickInterval drives periodic liveness reporting. Zero disables it
	// (§4.7 names the tick as optional).
	TickInterval time.Duration
	// ShutdownTimeout bounds how long Run waits for the transport to
	// finish draining after a Goodbye or context cancellation (§5).
	ShutdownTimeout time.Duration
}

// Agent runs the select loop for one agent process's lifetime.
type Agent struct {
	cfg    Config
	logger zerolog.Logger
}

// New constructs an Agent. It does not start the loop; call Run.
func New(cfg Config) *Agent {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	return &Agent{
		cfg:    cfg,
		logger: log.WithAgentName(cfg.AgentName.String()),
	}
}

// Run opens the transport, exchanges Hello/ServerHello, bootstraps startup
// reuse from the first desired-state message, then drives the select loop
// until Goodbye, a transport failure, or ctx cancellation. It returns nil on
// a graceful Goodbye, on ctx cancellation once Hello has been sent, and when
// the transport closes its inbound channel and reports no error.
func (a *Agent) Run(ctx context.Context) error {
	out := make(chan transport.ToServer, channelBuffer)
	in := make(chan transport.FromServer, channelBuffer)

	transportErr := make(chan error, 1)
	go func() { transportErr <- a.cfg.Client.Run(ctx, out, in) }()

	if !a.send(ctx, out, transport.NewHello(a.cfg.AgentName)) {
		return ctx.Err()
	}
	metrics.HeartbeatsSentTotal.Inc()
	metrics.ServerConnectionState.Set(1)
	defer metrics.ServerConnectionState.Set(0)

	var tick <-chan time.Time
	if a.cfg.TickInterval > 0 {
		ticker := time.NewTicker(a.cfg.TickInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	bootstrapped := false
	stateEvents := a.cfg.Manager.StateEvents()

	for {
		select {
		case msg, ok := <-in:
			if !ok {
				return a.awaitTransport(transportErr)
			}
			if msg.Kind == transport.KindGoodbye {
				a.logger.Info().Msg("server said goodbye, shutting down")
				return a.shutdown(out, transportErr)
			}
			if !a.handleFromServer(msg, &bootstrapped) {
				return fmt.Errorf("agent %s: failed to apply startup reuse", a.cfg.AgentName)
			}

		case event := <-stateEvents:
			a.cfg.Manager.HandleStateEvent(event)
			if a.send(ctx, out, transport.NewUpdateWorkloadState([]types.WorkloadStateEvent{event})) {
				metrics.StateEventsSentTotal.Inc()
			}

		case <-tick:
			if a.send(ctx, out, transport.NewHello(a.cfg.AgentName)) {
				metrics.HeartbeatsSentTotal.Inc()
			}

		case err := <-transportErr:
			return fmt.Errorf("transport failed: %w", err)

		case <-ctx.Done():
			return a.shutdown(out, transportErr)
		}
	}
}

// handleFromServer applies one FromServer message. The first UpdateWorkload
// received bootstraps startup reuse (§4.6) before being applied like any
// other desired-state delta.
func (a *Agent) handleFromServer(msg transport.FromServer, bootstrapped *bool) bool {
	switch msg.Kind {
	case transport.KindServerHello:
		a.logger.Info().Msg("received server hello")

	case transport.KindUpdateWorkload:
		added, deleted := a.filterToThisAgent(msg.UpdateWorkload.Added, msg.UpdateWorkload.Deleted)
		if !*bootstrapped {
			if err := a.cfg.Manager.Bootstrap(added); err != nil {
				a.logger.Error().Err(err).Msg("startup reuse failed")
				return false
			}
			*bootstrapped = true
		}
		a.cfg.Manager.ApplyDesiredState(added, deleted)

	case transport.KindUpdateWorkloadState:
		for _, ev := range msg.UpdateWorkloadState.States {
			a.cfg.Manager.HandleStateEvent(ev)
		}
	}
	return true
}

// filterToThisAgent drops any entry addressed to a different agent name
// (§4.7: "filter to this agent's name"), defensively — the server is
// expected to have already scoped these lists.
func (a *Agent) filterToThisAgent(added []types.WorkloadSpec, deleted []types.DeletedWorkload) ([]types.WorkloadSpec, []types.DeletedWorkload) {
	filteredAdded := added[:0:0]
	for _, spec := range added {
		if spec.InstanceName.AgentName == a.cfg.AgentName {
			filteredAdded = append(filteredAdded, spec)
		}
	}
	filteredDeleted := deleted[:0:0]
	for _, dw := range deleted {
		if dw.InstanceName.AgentName == a.cfg.AgentName {
			filteredDeleted = append(filteredDeleted, dw)
		}
	}
	return filteredAdded, filteredDeleted
}

// send delivers msg to out, respecting ctx cancellation. It returns false
// if ctx was done before the send completed.
func (a *Agent) send(ctx context.Context, out chan<- transport.ToServer, msg transport.ToServer) bool {
	select {
	case out <- msg:
		return true
	case <-ctx.Done():
		return false
	}
}

// shutdown implements §5's graceful-shutdown cancellation semantics:
// closing out signals the transport to stop accepting new events and
// finish in-flight work, bounded by ShutdownTimeout.
func (a *Agent) shutdown(out chan<- transport.ToServer, transportErr <-chan error) error {
	close(out)
	select {
	case <-transportErr:
	case <-time.After(a.cfg.ShutdownTimeout):
		a.logger.Warn().Msg("shutdown timed out waiting for transport to drain")
	}
	return nil
}

func (a *Agent) awaitTransport(transportErr <-chan error) error {
	select {
	case err := <-transportErr:
		if err != nil {
			return fmt.Errorf("transport closed: %w", err)
		}
		return nil
	case <-time.After(a.cfg.ShutdownTimeout):
		return fmt.Errorf("transport inbound channel closed without reporting an error")
	}
}
