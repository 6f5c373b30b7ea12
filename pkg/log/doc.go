/*
Package log provides structured logging for the node agent using zerolog.

The log package wraps zerolog to provide JSON-structured logging with
component-specific loggers, configurable log levels, and helper functions for
common logging patterns. All logs include timestamps and support filtering by
severity level.

# Core Components

Global Logger:
  - Package-level zerolog.Logger instance
  - Initialized once via log.Init()
  - Accessible from every agent package
  - Thread-safe concurrent writes

Log Levels:
  - Debug: Detailed debugging information
  - Info: General informational messages
  - Warn: Warning messages (potential issues)
  - Error: Error messages (operation failed)
  - Fatal: Critical errors (process exits)

Configuration:
  - Level: Filter messages below threshold
  - JSONOutput: JSON vs human-readable console
  - Output: io.Writer for log destination (stdout, file)

Context Loggers:
  - WithComponent: Add a component name (e.g. "manager", "queue", "runtime:containerd")
  - WithAgentName: Add this node's agent name
  - WithWorkload: Add a workload name
  - WithInstance: Add a full workload instance name (workload.hash.agent)

# Usage

Initializing the Logger:

	import "github.com/cuemby/nodeagent/pkg/log"

	// JSON output (production)
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

	// Console output (development)
	log.Init(log.Config{
		Level:      log.DebugLevel,
		JSONOutput: false,
		Output:     os.Stdout,
	})

Simple Logging:

	log.Info("agent manager started")
	log.Debug("checking workload state")
	log.Warn("heartbeat to server delayed")
	log.Error("runtime facade call failed")
	log.Fatal("run directory could not be prepared") // exits process

Component Loggers:

	runtimeLog := log.WithComponent("runtime:containerd")
	runtimeLog.Info().Msg("runtime facade ready")

	workloadLog := log.WithWorkload("web").With().
		Str("agent_name", "agent-1").Logger()
	workloadLog.Info().Msg("workload created")
	workloadLog.Error().Err(err).Msg("workload failed to start")

Context Logger Helpers:

	agentLog := log.WithAgentName("agent-1")
	agentLog.Info().Msg("connected to server")

	instanceLog := log.WithInstance("web.a1b2c3.agent-1")
	instanceLog.Info().Msg("workload state changed")

# Integration Points

This package is used by pkg/agent (Agent Manager, WithAgentName),
pkg/manager (Runtime Manager, WithComponent), pkg/workload (Workload
Object, WithInstance), and each pkg/runtime backend (WithComponent). Each
of these obtains its scoped logger once, at construction time, and never
reaches for the package-level Logger directly. pkg/queue (Workload Queue)
does not log.

# Design Patterns

Global Logger Pattern: a single package-level Logger instance, initialized
once at process start, simplifies logging from deeply nested calls without
threading a logger through every constructor argument.

Context Logger Pattern: create a child logger carrying fixed fields (agent
name, workload name, component) once, then log through it repeatedly. Avoids
repeating the same Str() calls at every call site.

Structured Logging Pattern: typed fields (.Str, .Int, .Err) instead of string
concatenation, so logs remain machine-parseable.

# Best Practices

Do:
  - Use Info level in production
  - Create a component logger once per component, at construction
  - Log errors with .Err() so the error is a structured field, not just text

Don't:
  - Log workload environment variables or secrets
  - Use Debug level in production
  - Concatenate strings into the message where a typed field would do
*/
package log
