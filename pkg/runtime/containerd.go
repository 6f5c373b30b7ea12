package runtime

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/cio"
	"github.com/containerd/containerd/namespaces"
	"github.com/containerd/containerd/oci"
	specs "github.com/opencontainers/runtime-spec/specs-go"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuemby/nodeagent/pkg/log"
	"github.com/cuemby/nodeagent/pkg/network"
	"github.com/cuemby/nodeagent/pkg/types"
	"github.com/cuemby/nodeagent/pkg/volume"
)

const (
	// containerdNamespace is the containerd namespace this agent's
	// containers live under.
	containerdNamespace = "nodeagent"

	// DefaultContainerdSocketPath is the default containerd socket path.
	DefaultContainerdSocketPath = "/run/containerd/containerd.sock"

	// instanceLabel is the containerd container label carrying this
	// workload's instance name, so GetReusableWorkloads can recover it.
	instanceLabel = "nodeagent.instance-name"
)

// ContainerdRuntime is a Runtime Facade backend that drives containers via
// containerd's client API directly (no shell-out).
type ContainerdRuntime struct {
	client *containerd.Client
	ports  *network.HostPortPublisher
	vols   *volume.LocalDriver
	logger zerolog.Logger

	mu      sync.Mutex
	cancels map[types.WorkloadInstanceName]context.CancelFunc
}

// NewContainerdRuntime connects to the containerd socket at socketPath (or
// DefaultContainerdSocketPath if empty).
func NewContainerdRuntime(socketPath string, ports *network.HostPortPublisher, vols *volume.LocalDriver) (*ContainerdRuntime, error) {
	if socketPath == "" {
		socketPath = DefaultContainerdSocketPath
	}

	client, err := containerd.New(socketPath)
	if err != nil {
		return nil, fmt.Errorf("connect to containerd: %w", err)
	}

	return &ContainerdRuntime{
		client:  client,
		ports:   ports,
		vols:    vols,
		logger:  log.WithComponent("runtime:containerd"),
		cancels: make(map[types.WorkloadInstanceName]context.CancelFunc),
	}, nil
}

// Name implements RuntimeFacade.
func (r *ContainerdRuntime) Name() string { return "containerd" }

// Close releases the containerd client connection.
func (r *ContainerdRuntime) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// CreateWorkload implements RuntimeFacade.
func (r *ContainerdRuntime) CreateWorkload(ctx context.Context, spec types.WorkloadSpec, events chan<- types.WorkloadStateEvent) (WorkloadHandle, error) {
	ctx = namespaces.WithNamespace(ctx, containerdNamespace)
	containerID := spec.InstanceName.WorkloadName + "-" + uuid.NewString()

	image, err := r.client.Pull(ctx, spec.RuntimeConfig.Image, containerd.WithPullUnpack)
	if err != nil {
		return WorkloadHandle{}, fmt.Errorf("pull image %s: %w", spec.RuntimeConfig.Image, err)
	}

	opts := []oci.SpecOpts{
		oci.WithImageConfig(image),
		oci.WithEnv(spec.RuntimeConfig.Env),
	}
	if len(spec.RuntimeConfig.Command) > 0 {
		opts = append(opts, oci.WithProcessArgs(spec.RuntimeConfig.Command...))
	}
	if spec.RuntimeConfig.CPULimit > 0 {
		shares := uint64(spec.RuntimeConfig.CPULimit * 1024)
		quota := int64(spec.RuntimeConfig.CPULimit * 100000)
		opts = append(opts, oci.WithCPUShares(shares), oci.WithCPUCFS(quota, 100000))
	}
	if spec.RuntimeConfig.MemoryLimit > 0 {
		opts = append(opts, oci.WithMemoryLimit(uint64(spec.RuntimeConfig.MemoryLimit)))
	}

	var mounts []specs.Mount
	for _, m := range spec.RuntimeConfig.Mounts {
		hostPath, err := r.vols.Prepare(m.Source)
		if err != nil {
			return WorkloadHandle{}, fmt.Errorf("prepare volume %s: %w", m.Source, err)
		}
		opt := []string{"rbind"}
		if m.ReadOnly {
			opt = append(opt, "ro")
		}
		mounts = append(mounts, specs.Mount{
			Source:      hostPath,
			Destination: m.Target,
			Type:        "bind",
			Options:     opt,
		})
	}
	if len(mounts) > 0 {
		opts = append(opts, oci.WithMounts(mounts))
	}

	ctrdContainer, err := r.client.NewContainer(
		ctx,
		containerID,
		containerd.WithImage(image),
		containerd.WithNewSnapshot(containerID+"-snapshot", image),
		containerd.WithNewSpec(opts...),
		containerd.WithContainerLabels(map[string]string{
			instanceLabel: spec.InstanceName.String(),
		}),
	)
	if err != nil {
		return WorkloadHandle{}, fmt.Errorf("create container: %w", err)
	}

	task, err := ctrdContainer.NewTask(ctx, cio.NullIO)
	if err != nil {
		return WorkloadHandle{}, fmt.Errorf("create task: %w", err)
	}
	if err := task.Start(ctx); err != nil {
		return WorkloadHandle{}, fmt.Errorf("start task: %w", err)
	}

	if hasHostPorts(spec.RuntimeConfig.Ports) {
		if containerIP, ipErr := r.GetContainerIP(ctx, containerID); ipErr != nil {
			r.logger.Warn().Err(ipErr).Str("instance", spec.InstanceName.String()).Msg("failed to resolve container IP for port publishing")
		} else if err := r.ports.PublishPorts(spec.InstanceName.String(), containerIP, spec.RuntimeConfig.Ports); err != nil {
			r.logger.Warn().Err(err).Str("instance", spec.InstanceName.String()).Msg("failed to publish host ports")
		}
	}

	handle := WorkloadHandle{InstanceName: spec.InstanceName, RuntimeID: containerID}
	r.startStateChecker(spec.InstanceName, containerID, events)

	return handle, nil
}

// DeleteWorkload implements RuntimeFacade.
func (r *ContainerdRuntime) DeleteWorkload(ctx context.Context, handle WorkloadHandle, events chan<- types.WorkloadStateEvent) error {
	ctx = namespaces.WithNamespace(ctx, containerdNamespace)
	r.stopStateChecker(handle.InstanceName)

	emit(events, handle.InstanceName, types.Stopping(""))

	if containerIP, ipErr := r.GetContainerIP(ctx, handle.RuntimeID); ipErr == nil {
		r.ports.UnpublishPorts(handle.InstanceName.String(), containerIP)
	}

	container, err := r.client.LoadContainer(ctx, handle.RuntimeID)
	if err != nil {
		emit(events, handle.InstanceName, types.Removed())
		return nil
	}

	if task, err := container.Task(ctx, nil); err == nil {
		stopCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := task.Kill(stopCtx, syscall.SIGTERM); err == nil {
			statusC, waitErr := task.Wait(stopCtx)
			if waitErr == nil {
				select {
				case <-statusC:
				case <-stopCtx.Done():
					_ = task.Kill(ctx, syscall.SIGKILL)
				}
			}
		}
		cancel()
		_, _ = task.Delete(ctx)
	}

	if err := container.Delete(ctx, containerd.WithSnapshotCleanup); err != nil {
		return fmt.Errorf("delete container %s: %w", handle.RuntimeID, err)
	}

	emit(events, handle.InstanceName, types.Removed())
	return nil
}

// GetReusableWorkloads implements RuntimeFacade.
func (r *ContainerdRuntime) GetReusableWorkloads(ctx context.Context, agentName types.AgentName) ([]ReusableWorkload, error) {
	ctx = namespaces.WithNamespace(ctx, containerdNamespace)

	containers, err := r.client.Containers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}

	var reusable []ReusableWorkload
	for _, c := range containers {
		labels, err := c.Labels(ctx)
		if err != nil {
			continue
		}
		raw, ok := labels[instanceLabel]
		if !ok {
			continue
		}
		instanceName, ok := parseInstanceName(raw)
		if !ok || instanceName.AgentName != agentName {
			continue
		}
		reusable = append(reusable, ReusableWorkload{InstanceName: instanceName, RuntimeID: c.ID()})
	}
	return reusable, nil
}

// AttachStateChecker implements RuntimeFacade.
func (r *ContainerdRuntime) AttachStateChecker(ctx context.Context, handle WorkloadHandle, events chan<- types.WorkloadStateEvent) error {
	ctx = namespaces.WithNamespace(ctx, containerdNamespace)
	if _, err := r.client.LoadContainer(ctx, handle.RuntimeID); err != nil {
		return fmt.Errorf("load reusable container %s: %w", handle.RuntimeID, err)
	}
	r.startStateChecker(handle.InstanceName, handle.RuntimeID, events)
	return nil
}

func hasHostPorts(ports []types.PortMapping) bool {
	for _, p := range ports {
		if p.PublishMode == types.PublishModeHost {
			return true
		}
	}
	return false
}

func parseInstanceName(s string) (types.WorkloadInstanceName, bool) {
	parts := strings.SplitN(s, ".", 3)
	if len(parts) != 3 {
		return types.WorkloadInstanceName{}, false
	}
	return types.WorkloadInstanceName{
		WorkloadName: parts[0],
		ConfigHash:   parts[1],
		AgentName:    types.AgentName(parts[2]),
	}, true
}

func (r *ContainerdRuntime) startStateChecker(instanceName types.WorkloadInstanceName, containerID string, events chan<- types.WorkloadStateEvent) {
	ctx, cancel := context.WithCancel(context.Background())

	r.mu.Lock()
	r.cancels[instanceName] = cancel
	r.mu.Unlock()

	go func() {
		ticker := time.NewTicker(statePollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				st, terminal := r.pollState(ctx, containerID)
				emit(events, instanceName, st)
				if terminal {
					return
				}
			}
		}
	}()
}

func (r *ContainerdRuntime) stopStateChecker(instanceName types.WorkloadInstanceName) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cancel, ok := r.cancels[instanceName]; ok {
		cancel()
		delete(r.cancels, instanceName)
	}
}

// pollState returns the workload's current execution state and whether it
// is terminal (the poller should stop).
func (r *ContainerdRuntime) pollState(ctx context.Context, containerID string) (types.ExecutionState, bool) {
	ctx = namespaces.WithNamespace(ctx, containerdNamespace)

	container, err := r.client.LoadContainer(ctx, containerID)
	if err != nil {
		return types.Failed("container not found"), true
	}

	task, err := container.Task(ctx, nil)
	if err != nil {
		return types.Pending("no task"), false
	}

	status, err := task.Status(ctx)
	if err != nil {
		return types.Unknown(), false
	}

	switch status.Status {
	case containerd.Running, containerd.Paused:
		return types.Running(""), false
	case containerd.Stopped:
		if status.ExitStatus == 0 {
			return types.Succeeded(), true
		}
		return types.Failed(fmt.Sprintf("exit=%d", status.ExitStatus)), true
	default:
		return types.Pending(string(status.Status)), false
	}
}

func emit(events chan<- types.WorkloadStateEvent, instanceName types.WorkloadInstanceName, st types.ExecutionState) {
	select {
	case events <- types.WorkloadStateEvent{InstanceName: instanceName, State: st, ObservedAt: time.Now()}:
	default:
		// Bounded channel is full; the Agent Manager is behind. Dropping a
		// state event is preferable to blocking the poller indefinitely,
		// and the next poll will report current state regardless.
	}
}

// GetContainerIP returns the IP address of a running container's primary
// interface, via nsenter into its network namespace.
func (r *ContainerdRuntime) GetContainerIP(ctx context.Context, containerID string) (string, error) {
	ctx = namespaces.WithNamespace(ctx, containerdNamespace)

	container, err := r.client.LoadContainer(ctx, containerID)
	if err != nil {
		return "", fmt.Errorf("load container %s: %w", containerID, err)
	}

	task, err := container.Task(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("get task: %w", err)
	}

	status, err := task.Status(ctx)
	if err != nil {
		return "", fmt.Errorf("get task status: %w", err)
	}
	if status.Status != containerd.Running {
		return "", fmt.Errorf("container is not running")
	}

	pid := task.Pid()
	if pid == 0 {
		return "", fmt.Errorf("container task has no PID")
	}

	cmd := exec.CommandContext(ctx, "nsenter", "-t", fmt.Sprintf("%d", pid), "-n", "ip", "-4", "addr", "show", "eth0")
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("get container IP: %w (output: %s)", err, string(output))
	}

	for _, line := range strings.Split(string(output), "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "inet ") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) < 2 {
			continue
		}
		ip, _, err := net.ParseCIDR(parts[1])
		if err != nil {
			return "", fmt.Errorf("parse IP address %s: %w", parts[1], err)
		}
		return ip.String(), nil
	}

	return "", fmt.Errorf("no IP address found for container")
}
