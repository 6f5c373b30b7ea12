// Command agent is the node-level workload orchestration agent's entry
// point: it wires the Runtime Manager (C6) to a set of Runtime Facade
// backends (containerd, Podman, Podman-Kube) and drives the Agent Manager
// (C7) select loop against a server over gRPC until the process is told to
// stop.
package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/nodeagent/pkg/agent"
	"github.com/cuemby/nodeagent/pkg/log"
	"github.com/cuemby/nodeagent/pkg/manager"
	"github.com/cuemby/nodeagent/pkg/metrics"
	"github.com/cuemby/nodeagent/pkg/network"
	"github.com/cuemby/nodeagent/pkg/rundir"
	"github.com/cuemby/nodeagent/pkg/runtime"
	"github.com/cuemby/nodeagent/pkg/security"
	"github.com/cuemby/nodeagent/pkg/transport"
	"github.com/cuemby/nodeagent/pkg/types"
	"github.com/cuemby/nodeagent/pkg/volume"
)

// Version information (set via ldflags during build).
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "agent",
	Short: "Node agent — reconciles desired workload state against a local container runtime",
	Long: `agent connects to a central server, receives desired workload state for
this node, and drives one or more container runtimes (containerd, Podman,
Podman-Kube) to match it. It reports observed workload state back upstream
until the connection is closed.`,
	Version: Version,
	RunE:    runAgent,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"agent version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	rootCmd.Flags().String("config", "", "Path to an optional YAML config file")
	rootCmd.Flags().String("agent-name", "", "This agent's name, as the server addresses it")
	rootCmd.Flags().String("server-url", "", "Server address to dial (host:port)")
	rootCmd.Flags().String("run-folder", "/var/lib/nodeagent/run", "Run directory root for control interfaces and per-workload state")
	rootCmd.Flags().Bool("insecure", false, "Dial the server without TLS (for local development only)")
	rootCmd.Flags().String("cert-dir", "", "Directory holding node.crt, node.key, and ca.crt for mTLS")
	rootCmd.Flags().String("containerd-socket", runtime.DefaultContainerdSocketPath, "containerd socket path")
	rootCmd.Flags().String("volume-base-dir", "/var/lib/nodeagent/volumes", "Base directory for the local volume driver")
	rootCmd.Flags().Int("tick-interval-seconds", 30, "Liveness hello interval, in seconds (0 disables it)")
	rootCmd.Flags().String("metrics-addr", ":9090", "Address to serve /metrics, /health, /ready, and /live on (empty disables it)")

	cobra.OnInitialize(initLogging)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

func runAgent(cmd *cobra.Command, _ []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	fc, err := loadFileConfig(configPath)
	if err != nil {
		return err
	}

	flags := map[string]string{
		"agent-name":        mustString(cmd, "agent-name"),
		"server-url":        mustString(cmd, "server-url"),
		"run-folder":        mustString(cmd, "run-folder"),
		"cert-dir":          mustString(cmd, "cert-dir"),
		"containerd-socket": mustString(cmd, "containerd-socket"),
		"volume-base-dir":   mustString(cmd, "volume-base-dir"),
	}
	boolFlags := map[string]bool{
		"insecure": mustBool(cmd, "insecure"),
	}
	cfg := resolveConfig(fc, flags, cmd.Flags().Changed, boolFlags)

	cfg.TickIntervalSeconds, _ = cmd.Flags().GetInt("tick-interval-seconds")
	if !cmd.Flags().Changed("tick-interval-seconds") && fc.TickIntervalSeconds != 0 {
		cfg.TickIntervalSeconds = fc.TickIntervalSeconds
	}

	if err := cfg.validate(); err != nil {
		return err
	}

	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

	agentName := types.AgentName(cfg.AgentName)
	metrics.SetVersion(Version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("received shutdown signal")
		cancel()
	}()

	// Run directory preparation is fatal-on-failure, before any Runtime
	// Facade is constructed (§6, §9).
	if _, err := rundir.Prepare(cfg.RunFolder, agentName); err != nil {
		metrics.RegisterComponent("rundir", false, err.Error())
		return fmt.Errorf("prepare run directory: %w", err)
	}
	metrics.RegisterComponent("rundir", true, "")

	facades, closeFacades, err := buildFacades(cfg)
	if err != nil {
		metrics.RegisterComponent("runtime", false, err.Error())
		return fmt.Errorf("build runtime facades: %w", err)
	}
	defer closeFacades()
	metrics.RegisterComponent("runtime", true, "")

	mgr := manager.New(ctx, manager.Config{
		AgentName: agentName,
		RunFolder: cfg.RunFolder,
		Facades:   facades,
	})

	if metricsAddr != "" {
		collector := metrics.NewCollector(mgr)
		collector.Start()
		defer collector.Stop()

		srv := startMetricsServer(metricsAddr)
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	tlsConfig, err := buildTLSConfig(cfg)
	if err != nil {
		return fmt.Errorf("build TLS config: %w", err)
	}

	client, err := transport.Dial(cfg.ServerURL, tlsConfig)
	if err != nil {
		metrics.RegisterComponent("transport", false, err.Error())
		return fmt.Errorf("dial server %s: %w", cfg.ServerURL, err)
	}
	defer client.Close()
	metrics.RegisterComponent("transport", true, "")

	a := agent.New(agent.Config{
		AgentName:    agentName,
		Manager:      mgr,
		Client:       client,
		TickInterval: time.Duration(cfg.TickIntervalSeconds) * time.Second,
	})

	return a.Run(ctx)
}

// startMetricsServer serves /metrics, /health, /ready, and /live on addr in
// the background. A failure to bind is logged, not fatal: the agent's
// reconcile loop does not depend on this endpoint.
func startMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/health", metrics.HealthHandler())
	mux.Handle("/ready", metrics.ReadyHandler())
	mux.Handle("/live", metrics.LivenessHandler())

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("metrics server failed", err)
		}
	}()
	return srv
}

// buildFacades constructs every Runtime Facade backend this agent supports,
// keyed the way a WorkloadSpec.Runtime field selects them. A facade that
// fails to initialize is fatal: an agent with no working backend for its
// configured runtime key could never dispatch anything.
func buildFacades(cfg config) (map[string]runtime.RuntimeFacade, func(), error) {
	ports := network.NewHostPortPublisher()
	vols, err := volume.NewLocalDriver(cfg.VolumeBaseDir)
	if err != nil {
		return nil, nil, fmt.Errorf("init volume driver: %w", err)
	}

	containerdRuntime, err := runtime.NewContainerdRuntime(cfg.ContainerdSocket, ports, vols)
	if err != nil {
		return nil, nil, fmt.Errorf("init containerd backend: %w", err)
	}

	podmanRuntime := runtime.NewPodmanRuntime(vols)
	podmanKubeRuntime := runtime.NewPodmanKubeRuntime()

	facades := map[string]runtime.RuntimeFacade{
		containerdRuntime.Name(): containerdRuntime,
		podmanRuntime.Name():     podmanRuntime,
		podmanKubeRuntime.Name(): podmanKubeRuntime,
	}

	closeFn := func() {
		if err := containerdRuntime.Close(); err != nil {
			log.Errorf("close containerd client", err)
		}
	}

	return facades, closeFn, nil
}

// buildTLSConfig resolves the transport dial's TLS material. Insecure mode
// returns a nil *tls.Config, which transport.Dial treats as "dial without
// transport security." Otherwise node certificate and CA material is
// loaded from cert-dir (§6's TLS material loader).
func buildTLSConfig(cfg config) (*tls.Config, error) {
	caPath := filepath.Join(cfg.CertDir, "ca.crt")
	certPath := filepath.Join(cfg.CertDir, "node.crt")
	keyPath := filepath.Join(cfg.CertDir, "node.key")
	security.WarnIfConflicting(cfg.Insecure, caPath, certPath, keyPath)

	if cfg.Insecure {
		return nil, nil
	}

	material, err := security.LoadMaterial(cfg.CertDir)
	if err != nil {
		return nil, fmt.Errorf("load TLS material from %s: %w", cfg.CertDir, err)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{material.Certificate},
		RootCAs:      material.RootCAs,
	}, nil
}

func mustString(cmd *cobra.Command, name string) string {
	v, _ := cmd.Flags().GetString(name)
	return v
}

func mustBool(cmd *cobra.Command, name string) bool {
	v, _ := cmd.Flags().GetBool(name)
	return v
}
