package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileConfig is the optional on-disk config file shape (§6's "CLI/config
// (consumed)"). Every field has a matching CLI flag; a flag explicitly set
// on the command line always wins over the file.
type fileConfig struct {
	AgentName string `yaml:"agent_name"`
	ServerURL string `yaml:"server_url"`
	RunFolder string `yaml:"run_folder"`

	Insecure bool   `yaml:"insecure"`
	CertDir  string `yaml:"cert_dir"`

	ContainerdSocket string `yaml:"containerd_socket"`
	VolumeBaseDir    string `yaml:"volume_base_dir"`

	TickIntervalSeconds int `yaml:"tick_interval_seconds"`
}

// loadFileConfig reads path, or returns an empty fileConfig if path is
// empty. A missing file at a path the caller explicitly named is an error;
// an unset path is simply "no config file," not a fatal condition.
func loadFileConfig(path string) (fileConfig, error) {
	var fc fileConfig
	if path == "" {
		return fc, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fc, fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fc, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return fc, nil
}

// config is the fully resolved set of values main.go wires the agent from,
// after merging file defaults with explicit flag overrides.
type config struct {
	AgentName string
	ServerURL string
	RunFolder string

	Insecure bool
	CertDir  string

	ContainerdSocket string
	VolumeBaseDir    string

	TickIntervalSeconds int
}

// resolveConfig merges fc (from an optional config file) with the command
// line's flag values. A flag's own default counts as its value unless the
// config file supplies one AND the user never typed that flag explicitly —
// flagIsSet reports the latter, so a config file can supply a value a flag
// default would otherwise shadow, while an explicit flag always wins.
func resolveConfig(fc fileConfig, flags map[string]string, flagIsSet func(name string) bool, boolFlags map[string]bool) config {
	cfg := config{
		AgentName:           flags["agent-name"],
		ServerURL:           flags["server-url"],
		RunFolder:           flags["run-folder"],
		Insecure:            boolFlags["insecure"],
		CertDir:             flags["cert-dir"],
		ContainerdSocket:    flags["containerd-socket"],
		VolumeBaseDir:       flags["volume-base-dir"],
		TickIntervalSeconds: 0,
	}

	if !flagIsSet("agent-name") && fc.AgentName != "" {
		cfg.AgentName = fc.AgentName
	}
	if !flagIsSet("server-url") && fc.ServerURL != "" {
		cfg.ServerURL = fc.ServerURL
	}
	if !flagIsSet("run-folder") && fc.RunFolder != "" {
		cfg.RunFolder = fc.RunFolder
	}
	if !flagIsSet("cert-dir") && fc.CertDir != "" {
		cfg.CertDir = fc.CertDir
	}
	if !flagIsSet("containerd-socket") && fc.ContainerdSocket != "" {
		cfg.ContainerdSocket = fc.ContainerdSocket
	}
	if !flagIsSet("volume-base-dir") && fc.VolumeBaseDir != "" {
		cfg.VolumeBaseDir = fc.VolumeBaseDir
	}
	if !flagIsSet("insecure") && fc.Insecure {
		cfg.Insecure = true
	}

	return cfg
}

func (c config) validate() error {
	if c.AgentName == "" {
		return fmt.Errorf("agent name must be set (--agent-name or agent_name in config)")
	}
	if c.ServerURL == "" {
		return fmt.Errorf("server URL must be set (--server-url or server_url in config)")
	}
	if c.RunFolder == "" {
		return fmt.Errorf("run folder must be set (--run-folder or run_folder in config)")
	}
	return nil
}
