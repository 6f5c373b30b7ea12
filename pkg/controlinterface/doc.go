/*
Package controlinterface implements the per-workload control interface
named in §6 of the external-interfaces design: a pair of FIFOs a
workload's own process can use to exchange messages with this agent.

# Layout

Each workload instance gets its own pipe directory:

	<run_folder>/<agent_name>/<instance>/
	├── input
	└── output

The agent creates and removes these pipes but does not itself read from
or write to them; nothing in the agent forwards what a workload writes to
output on to the server. Info carries the ToServerSender channel given to
NewInfo, and the Workload Object passes nil.

# Update reuse

A Workload Object updating an already-running workload must decide
whether the existing pipe pair can stay as-is or has to be torn down and
recreated. HasSameConfiguration answers this: the pipe path and the
governing Authorizer must both match. Authorizer equality is structural
(Equal), not identity — two differently-constructed Authorizers that
would grant the same operations compare equal.
*/
package controlinterface
