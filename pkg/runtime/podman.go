package runtime

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/nodeagent/pkg/log"
	"github.com/cuemby/nodeagent/pkg/types"
	"github.com/cuemby/nodeagent/pkg/volume"
)

// PodmanRuntime is a Runtime Facade backend that drives containers by
// shelling out to the podman CLI, in the same exec.CommandContext +
// CombinedOutput style as ContainerdRuntime.GetContainerIP. It relies on
// podman's own networking for port publishing rather than the iptables
// rules network.HostPortPublisher installs for the raw containerd client.
type PodmanRuntime struct {
	vols   *volume.LocalDriver
	logger zerolog.Logger

	mu      sync.Mutex
	cancels map[types.WorkloadInstanceName]context.CancelFunc
}

// NewPodmanRuntime constructs a Podman-backed Runtime Facade.
func NewPodmanRuntime(vols *volume.LocalDriver) *PodmanRuntime {
	return &PodmanRuntime{
		vols:    vols,
		logger:  log.WithComponent("runtime:podman"),
		cancels: make(map[types.WorkloadInstanceName]context.CancelFunc),
	}
}

// Name implements RuntimeFacade.
func (r *PodmanRuntime) Name() string { return "podman" }

// CreateWorkload implements RuntimeFacade.
func (r *PodmanRuntime) CreateWorkload(ctx context.Context, spec types.WorkloadSpec, events chan<- types.WorkloadStateEvent) (WorkloadHandle, error) {
	containerName := podmanContainerName(spec.InstanceName)

	args := []string{"run", "-d", "--name", containerName,
		"--label", fmt.Sprintf("%s=%s", instanceLabel, spec.InstanceName.String()),
	}
	for _, env := range spec.RuntimeConfig.Env {
		args = append(args, "-e", env)
	}
	for _, m := range spec.RuntimeConfig.Mounts {
		hostPath, err := r.vols.Prepare(m.Source)
		if err != nil {
			return WorkloadHandle{}, fmt.Errorf("prepare volume %s: %w", m.Source, err)
		}
		mount := hostPath + ":" + m.Target
		if m.ReadOnly {
			mount += ":ro"
		}
		args = append(args, "-v", mount)
	}
	for _, p := range spec.RuntimeConfig.Ports {
		if p.PublishMode != types.PublishModeHost {
			continue
		}
		protocol := strings.ToLower(p.Protocol)
		if protocol == "" {
			protocol = "tcp"
		}
		args = append(args, "-p", fmt.Sprintf("%d:%d/%s", p.HostPort, p.ContainerPort, protocol))
	}
	if spec.RuntimeConfig.CPULimit > 0 {
		args = append(args, "--cpus", strconv.FormatFloat(spec.RuntimeConfig.CPULimit, 'f', -1, 64))
	}
	if spec.RuntimeConfig.MemoryLimit > 0 {
		args = append(args, "--memory", strconv.FormatInt(spec.RuntimeConfig.MemoryLimit, 10))
	}
	args = append(args, spec.RuntimeConfig.Image)
	args = append(args, spec.RuntimeConfig.Command...)

	cmd := exec.CommandContext(ctx, "podman", args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return WorkloadHandle{}, fmt.Errorf("podman run: %w (output: %s)", err, strings.TrimSpace(string(output)))
	}
	containerID := strings.TrimSpace(string(output))

	handle := WorkloadHandle{InstanceName: spec.InstanceName, RuntimeID: containerID}
	r.startStateChecker(spec.InstanceName, containerID, events)

	return handle, nil
}

// DeleteWorkload implements RuntimeFacade.
func (r *PodmanRuntime) DeleteWorkload(ctx context.Context, handle WorkloadHandle, events chan<- types.WorkloadStateEvent) error {
	r.stopStateChecker(handle.InstanceName)
	emit(events, handle.InstanceName, types.Stopping(""))

	stopCmd := exec.CommandContext(ctx, "podman", "stop", "-t", "10", handle.RuntimeID)
	if output, err := stopCmd.CombinedOutput(); err != nil {
		r.logger.Warn().Err(err).Str("output", strings.TrimSpace(string(output))).Msg("podman stop failed, attempting removal anyway")
	}

	rmCmd := exec.CommandContext(ctx, "podman", "rm", "-f", handle.RuntimeID)
	if output, err := rmCmd.CombinedOutput(); err != nil {
		emit(events, handle.InstanceName, types.Removed())
		return fmt.Errorf("podman rm %s: %w (output: %s)", handle.RuntimeID, err, strings.TrimSpace(string(output)))
	}

	emit(events, handle.InstanceName, types.Removed())
	return nil
}

// GetReusableWorkloads implements RuntimeFacade.
func (r *PodmanRuntime) GetReusableWorkloads(ctx context.Context, agentName types.AgentName) ([]ReusableWorkload, error) {
	cmd := exec.CommandContext(ctx, "podman", "ps", "-a",
		"--filter", "label="+instanceLabel,
		"--format", `{{.ID}}\t{{index .Labels "`+instanceLabel+`"}}`)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("podman ps: %w (output: %s)", err, strings.TrimSpace(string(output)))
	}

	var reusable []ReusableWorkload
	for _, line := range strings.Split(strings.TrimSpace(string(output)), "\n") {
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, "\t", 2)
		if len(fields) != 2 {
			continue
		}
		instanceName, ok := parseInstanceName(fields[1])
		if !ok || instanceName.AgentName != agentName {
			continue
		}
		reusable = append(reusable, ReusableWorkload{InstanceName: instanceName, RuntimeID: fields[0]})
	}
	return reusable, nil
}

// AttachStateChecker implements RuntimeFacade.
func (r *PodmanRuntime) AttachStateChecker(ctx context.Context, handle WorkloadHandle, events chan<- types.WorkloadStateEvent) error {
	cmd := exec.CommandContext(ctx, "podman", "inspect", "--format", "{{.Id}}", handle.RuntimeID)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("load reusable container %s: %w (output: %s)", handle.RuntimeID, err, strings.TrimSpace(string(output)))
	}
	r.startStateChecker(handle.InstanceName, handle.RuntimeID, events)
	return nil
}

func (r *PodmanRuntime) startStateChecker(instanceName types.WorkloadInstanceName, containerID string, events chan<- types.WorkloadStateEvent) {
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

func (r *PodmanRuntime) stopStateChecker(instanceName types.WorkloadInstanceName) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cancel, ok := r.cancels[instanceName]; ok {
		cancel()
		delete(r.cancels, instanceName)
	}
}

// pollState returns the workload's current execution state and whether it
// is terminal (the poller should stop), via podman inspect's Go-template
// output.
func (r *PodmanRuntime) pollState(ctx context.Context, containerID string) (types.ExecutionState, bool) {
	cmd := exec.CommandContext(ctx, "podman", "inspect",
		"--format", "{{.State.Status}}\t{{.State.ExitCode}}", containerID)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return types.Failed("container not found"), true
	}

	fields := strings.SplitN(strings.TrimSpace(string(output)), "\t", 2)
	status := fields[0]
	exitCode := "0"
	if len(fields) == 2 {
		exitCode = fields[1]
	}

	switch status {
	case "running", "paused":
		return types.Running(""), false
	case "exited", "stopped":
		if exitCode == "0" {
			return types.Succeeded(), true
		}
		return types.Failed(fmt.Sprintf("exit=%s", exitCode)), true
	default:
		return types.Pending(status), false
	}
}

func podmanContainerName(instanceName types.WorkloadInstanceName) string {
	return strings.ReplaceAll(instanceName.String(), ".", "-")
}
