/*
Package workload implements the Workload Object (§4.5): the state machine
that owns one workload instance end to end — create, restart-on-failure,
update (delete-then-create), and delete — by driving a Runtime Facade
backend (pkg/runtime) and reacting to the state-checker events it emits.

# Command ordering

An Object has one command channel and one goroutine: Observe, Update, and
Delete calls queue onto it and are processed strictly in the order they
were dispatched, matching §4.5's "no parallelism within one object, full
concurrency across objects." The Runtime Manager is the only caller.

# Restart policy

handleObserve is where §4.5's restart table lives: a terminal, non-Removed
state reported while the object was RUNNING triggers a recreate under
RestartAlways, or under RestartOnFailure only if the terminal state is
Failed. RestartNever (and any state reported while not RUNNING) leaves the
object in its reported terminal state.

# Control interface lifecycle

For a spec that carries an Authorizer, every create (and re-create on
restart) prepares a pair of pipes via pkg/controlinterface, scoped by
instance name; every delete tears them down. An update keeps the existing
pipes in place when the new spec's Authorizer compares equal and its pipe
directory is unchanged (controlinterface.Info.HasSameConfiguration);
otherwise it removes them and creates a fresh pair for the new instance.
*/
package workload
