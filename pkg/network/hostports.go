package network

import (
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/cuemby/nodeagent/pkg/types"
)

// HostPortPublisher manages host-mode port publishing using iptables DNAT
// rules, exercised by the containerd Runtime Facade backend when a
// workload's RuntimeConfig asks for PublishModeHost ports.
type HostPortPublisher struct {
	mu        sync.Mutex
	published map[string][]types.PortMapping // instance name -> ports
}

// NewHostPortPublisher creates a new host port publisher.
func NewHostPortPublisher() *HostPortPublisher {
	return &HostPortPublisher{
		published: make(map[string][]types.PortMapping),
	}
}

// PublishPorts sets up iptables rules forwarding each host-mode port in
// ports to containerIP. Ports with PublishMode other than host are ignored.
func (p *HostPortPublisher) PublishPorts(instanceName, containerIP string, ports []types.PortMapping) error {
	var hostPorts []types.PortMapping
	for _, port := range ports {
		if port.PublishMode == types.PublishModeHost {
			hostPorts = append(hostPorts, port)
		}
	}
	if len(hostPorts) == 0 {
		return nil
	}

	for _, port := range hostPorts {
		if err := setupPortForwarding(containerIP, port); err != nil {
			p.unpublishPorts(containerIP, hostPorts)
			return fmt.Errorf("setup port forwarding for %d:%d: %w", port.HostPort, port.ContainerPort, err)
		}
	}

	p.mu.Lock()
	p.published[instanceName] = hostPorts
	p.mu.Unlock()
	return nil
}

// UnpublishPorts removes the iptables rules previously installed for
// instanceName, given the container IP they were installed against.
func (p *HostPortPublisher) UnpublishPorts(instanceName, containerIP string) {
	p.mu.Lock()
	ports, ok := p.published[instanceName]
	delete(p.published, instanceName)
	p.mu.Unlock()

	if !ok {
		return
	}
	p.unpublishPorts(containerIP, ports)
}

func (p *HostPortPublisher) unpublishPorts(containerIP string, ports []types.PortMapping) {
	for _, port := range ports {
		removePortForwarding(containerIP, port)
	}
}

func setupPortForwarding(containerIP string, port types.PortMapping) error {
	protocol := strings.ToLower(port.Protocol)
	if protocol == "" {
		protocol = "tcp"
	}

	dnat := []string{
		"-t", "nat", "-A", "PREROUTING",
		"-p", protocol, "--dport", fmt.Sprintf("%d", port.HostPort),
		"-j", "DNAT", "--to-destination", fmt.Sprintf("%s:%d", containerIP, port.ContainerPort),
	}
	if err := runIPTables(dnat); err != nil {
		return fmt.Errorf("add DNAT rule: %w", err)
	}

	masq := []string{
		"-t", "nat", "-A", "POSTROUTING",
		"-p", protocol, "-d", containerIP, "--dport", fmt.Sprintf("%d", port.ContainerPort),
		"-j", "MASQUERADE",
	}
	if err := runIPTables(masq); err != nil {
		removePortForwarding(containerIP, port)
		return fmt.Errorf("add MASQUERADE rule: %w", err)
	}

	forward := []string{
		"-A", "FORWARD",
		"-p", protocol, "-d", containerIP, "--dport", fmt.Sprintf("%d", port.ContainerPort),
		"-j", "ACCEPT",
	}
	if err := runIPTables(forward); err != nil {
		removePortForwarding(containerIP, port)
		return fmt.Errorf("add FORWARD rule: %w", err)
	}

	return nil
}

func removePortForwarding(containerIP string, port types.PortMapping) {
	protocol := strings.ToLower(port.Protocol)
	if protocol == "" {
		protocol = "tcp"
	}

	_ = runIPTables([]string{
		"-t", "nat", "-D", "PREROUTING",
		"-p", protocol, "--dport", fmt.Sprintf("%d", port.HostPort),
		"-j", "DNAT", "--to-destination", fmt.Sprintf("%s:%d", containerIP, port.ContainerPort),
	})
	_ = runIPTables([]string{
		"-t", "nat", "-D", "POSTROUTING",
		"-p", protocol, "-d", containerIP, "--dport", fmt.Sprintf("%d", port.ContainerPort),
		"-j", "MASQUERADE",
	})
	_ = runIPTables([]string{
		"-D", "FORWARD",
		"-p", protocol, "-d", containerIP, "--dport", fmt.Sprintf("%d", port.ContainerPort),
		"-j", "ACCEPT",
	})
}

func runIPTables(args []string) error {
	cmd := exec.Command("iptables", args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("iptables failed: %w (output: %s)", err, string(output))
	}
	return nil
}

// PublishedPorts returns the ports currently published for instanceName.
func (p *HostPortPublisher) PublishedPorts(instanceName string) []types.PortMapping {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.published[instanceName]
}
