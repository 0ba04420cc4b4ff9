package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/majorcontext/portico/internal/config"
	"github.com/majorcontext/portico/internal/log"
	"github.com/majorcontext/portico/internal/server"
	"github.com/majorcontext/portico/internal/target"
	"github.com/majorcontext/portico/internal/ui"
)

// shutdownTimeout is how long in-flight requests get to finish on stop.
const shutdownTimeout = 10 * time.Second

var (
	serveHost     string
	servePort     int
	serveRegistry string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the proxy in the foreground",
	Long: `Run the proxy server in the foreground until interrupted.

Endpoints:
  /proxy/*                 forward to the target named by X-Target-Id
  /applications            list, create, and update targets
  /applications/{id}       show or delete a target
  /healthz                 liveness and target count
  /metrics                 Prometheus metrics

Settings come from ~/.portico/config.yaml and PORTICO_* environment
variables; flags override both.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "address to bind (default from config, 127.0.0.1)")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, fmt.Sprintf("port to listen on (default from config, %d)", config.DefaultPort))
	serveCmd.Flags().StringVar(&serveRegistry, "registry", "", "path to the target registry document")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadGlobal()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = serveHost
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = servePort
	}
	if cmd.Flags().Changed("registry") {
		cfg.Registry.Path = serveRegistry
	}

	stateDir := config.Dir()
	lock, err := server.LoadLock(stateDir)
	if err != nil {
		log.Warn("ignoring unreadable lock file", "error", err)
	}
	if lock != nil && lock.IsAlive() {
		return fmt.Errorf("portico already running on %s (pid %d)", lock.Addr(), lock.PID)
	}

	registry, err := target.NewRegistry(cfg.Registry.Path)
	if err != nil {
		return fmt.Errorf("opening registry: %w", err)
	}

	srv := server.New(registry, server.Options{
		UpstreamTimeout: cfg.Proxy.UpstreamTimeout,
		TokenTimeout:    cfg.Proxy.TokenTimeout,
		SingleFlight:    cfg.Proxy.SingleFlight,
	})
	if err := srv.Start(cfg.Server.Host, cfg.Server.Port); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}

	if err := server.SaveLock(stateDir, server.LockInfo{
		PID:  os.Getpid(),
		Host: cfg.Server.Host,
		Port: srv.Port(),
	}); err != nil {
		ui.Warnf("Writing lock file: %v", err)
	}
	defer func() { _ = server.RemoveLock(stateDir) }()

	ui.Successf("portico listening on http://%s", srv.Addr())
	ui.Infof("  registry: %s (%d targets)", registry.Path(), registry.Len())

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	ui.Infof("\nShutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		ui.Warnf("Stopping server: %v", err)
	}
	log.Info("portico stopped")
	return nil
}
