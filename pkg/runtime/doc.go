/*
Package runtime provides the Runtime Facade backends that start, stop,
list and watch this agent's workloads: containerd, driven through its
client API, and Podman and Podman-Kube, both driven by shelling out to the
podman CLI.

# containerd backend

ContainerdRuntime connects to the socket passed to NewContainerdRuntime
(DefaultContainerdSocketPath, /run/containerd/containerd.sock, when empty).
Every call it makes runs in the containerd namespace "nodeagent".

CreateWorkload:
  1. Pull and unpack RuntimeConfig.Image
  2. Build the OCI spec from the image config, RuntimeConfig.Env and, when
     set, RuntimeConfig.Command
  3. Apply CPU and memory limits (see Resource Limits Implementation)
  4. Bind-mount each RuntimeConfig.Mounts entry from the directory the
     volume driver prepares for its Source (read-only when ReadOnly is set)
  5. Create the container, named <workload name>-<uuid>, with a new
     snapshot and a label carrying the instance name
  6. Create and start its task
  7. Publish host-mode ports through network.HostPortPublisher (a failure
     here is logged, not returned)
  8. Start a state checker that polls the task every 3 seconds

DeleteWorkload:
  1. Stop the state checker and emit Stopping
  2. Unpublish host ports, if the container IP can still be resolved
  3. Send SIGTERM, wait up to 10 seconds, then send SIGKILL if the task
     has not exited
  4. Delete the task, then the container with its snapshot
  5. Emit Removed

A container that no longer exists is reported as Removed without error; a
failed container delete returns an error and emits no Removed.

GetReusableWorkloads lists the namespace's containers and returns those
whose instance-name label names this agent. AttachStateChecker starts a
state checker for such a container without creating anything.

State mapping:
  - running or paused task → Running
  - stopped task → Succeeded on exit status 0, Failed("exit=N") otherwise
  - container gone → Failed("container not found")
  - container without a task → Pending("no task")
  - any other task status → Pending(<status>)

# Podman and Podman-Kube backends

PodmanRuntime runs each workload with podman run and polls it with podman
inspect. PodmanKubeRuntime writes RuntimeConfig.KubeManifest to a file
under its manifest directory (DefaultPodmanKubeManifestDir unless another
is given), starts the pod with podman kube play, removes it with podman
kube down, and polls podman pod inspect.

# Usage

	ports := network.NewHostPortPublisher()
	vols, err := volume.NewLocalDriver("")
	if err != nil {
		return err
	}

	ctrd, err := runtime.NewContainerdRuntime("", ports, vols)
	if err != nil {
		return err
	}
	defer ctrd.Close()

	events := make(chan types.WorkloadStateEvent, 20)
	handle, err := ctrd.CreateWorkload(ctx, spec, events)
	if err != nil {
		return err
	}

	// ... later
	if err := ctrd.DeleteWorkload(ctx, handle, events); err != nil {
		return err
	}

Getting Container IP Address (containerd backend):

	ip, err := ctrd.GetContainerIP(ctx, handle.RuntimeID)

# Integration Points

This package integrates with:

  - pkg/types: WorkloadSpec, RuntimeConfig and execution state definitions
  - pkg/network: host port publishing (containerd backend)
  - pkg/volume: host directories for volume bind mounts
  - pkg/workload and pkg/manager: the callers of the facade methods
  - containerd and the podman CLI

# Resource Limits Implementation

CPU Limits:
  - CPULimit=1.0 → 1024 CPU shares (relative weight)
  - CPULimit=1.0 → CFS quota=100000µs per 100000µs period (100% of 1 core)
  - CPULimit=0.5 → 512 shares + 50000µs quota (50% of 1 core)
  - CPULimit=0 → no CPU limit is set

Memory Limits:
  - MemoryLimit bytes → the OCI spec's memory limit
  - MemoryLimit=0 → no memory limit is set

# Event Delivery

State checkers and DeleteWorkload send events without blocking: when the
events channel is full the event is dropped, and the next poll reports the
current state again.

# Error Handling

  - Wrapped errors with context: fmt.Errorf("operation failed: %w", err)
  - Errors from task kill, wait and delete inside DeleteWorkload are ignored
  - The backends record no metrics themselves; the Workload Object records
    RuntimeOperationDuration and RuntimeOperationFailuresTotal (pkg/metrics)
    around each create and delete call

# Performance Characteristics

Image Pull:
  - First pull: 10-60s (depends on image size and network)
  - Subsequent pulls: < 1s (cached layers)
  - Parallel pulls: Supported (containerd handles deduplication)

Container Create:
  - Typical: 100-500ms (snapshot creation + spec generation)
  - Large images: 1-2s (more layers to prepare)
  - Parallel creates: Supported (independent snapshots)

Container Start:
  - Typical: 50-200ms (process spawn + namespace setup)
  - Heavy init: 1-5s (application-dependent)
  - Concurrent starts: Limited by system resources (forks, PIDs)

Container Stop:
  - Graceful: 1-10s (depends on application signal handling)
  - Force kill: < 500ms (SIGKILL immediate)
  - Grace period before SIGKILL: fixed at 10 seconds

Memory Usage:
  - Client overhead: ~5MB per ContainerdRuntime instance
  - Per container: ~1-2MB metadata (containerd tracking)
  - Container memory: Defined by RuntimeConfig.MemoryLimit

# Troubleshooting

Common Issues:

Cannot Connect to Containerd:
  - Symptom: "connect to containerd" error from NewContainerdRuntime
  - Check: Socket path exists and has correct permissions
  - Check: Containerd daemon is running (systemctl status containerd)
  - Solution: Verify socket path or restart containerd

Container Fails to Start:
  - Symptom: CreateWorkload returns "create task" or "start task" error
  - Check: Image reference is pullable
  - Check: OCI spec is valid (resource limits, mounts)
  - Check: Container logs (via containerd-shim logs)
  - Solution: Review the workload's RuntimeConfig for invalid configuration

Resource Limit Enforcement:
  - Symptom: Container uses more resources than specified
  - Check: Cgroups v2 vs v1 (different APIs)
  - Check: CPU shares vs quota (shares are relative, quota is absolute)
  - Check: Memory limit includes page cache
  - Solution: Use absolute limits (CPU quota) for predictable behavior

Container IP Not Found:
  - Symptom: GetContainerIP returns "no IP address found for container"
  - Check: Container has network namespace (not host mode)
  - Check: Container eth0 interface exists
  - Check: nsenter and ip are available on the host
  - Solution: Ensure container networking is initialized

# Security

Namespace Isolation:
  - All containers this agent creates through containerd live in the
    "nodeagent" namespace
  - Listing and cleanup are scoped to that namespace

Socket Permissions:
  - Containerd socket typically requires root or containerd group
  - The agent must run with appropriate permissions
  - Socket access controls who can create/manage containers

Image Verification:
  - No built-in signature verification (future enhancement)
  - Recommendation: Use private registries with access controls
  - Consider: containerd image encryption for sensitive workloads

Resource Limits as Security:
  - CPU limits prevent denial-of-service (CPU exhaustion)
  - Memory limits prevent OOM on node
  - Enforced by kernel cgroups (not bypassable from container)

# See Also

  - pkg/workload for the state machine that drives these backends
  - pkg/types for WorkloadSpec and RuntimeConfig definitions
  - containerd documentation: https://containerd.io/
  - OCI runtime spec: https://github.com/opencontainers/runtime-spec
*/
package runtime
