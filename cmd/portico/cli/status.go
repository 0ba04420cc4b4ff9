package cli

import (
	"fmt"
	"os"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/majorcontext/portico/internal/config"
	"github.com/majorcontext/portico/internal/server"
	"github.com/majorcontext/portico/internal/ui"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a running portico server",
	RunE:  runStop,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether a portico server is running",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
}

// serverState is what the lock file says about the server.
type serverState int

const (
	stateStopped serverState = iota
	stateStale
	stateRunning
)

func loadServerState(dir string) (*server.LockInfo, serverState, error) {
	lock, err := server.LoadLock(dir)
	if err != nil {
		return nil, stateStopped, fmt.Errorf("checking server status: %w", err)
	}
	switch {
	case lock == nil:
		return nil, stateStopped, nil
	case !lock.IsAlive():
		return lock, stateStale, nil
	default:
		return lock, stateRunning, nil
	}
}

func runStop(cmd *cobra.Command, args []string) error {
	dir := config.Dir()
	lock, state, err := loadServerState(dir)
	if err != nil {
		return err
	}

	switch state {
	case stateStopped:
		ui.Infof("portico is not running")
		return nil
	case stateStale:
		_ = server.RemoveLock(dir)
		ui.Infof("portico is not running (cleaned up stale lock)")
		return nil
	}

	process, err := os.FindProcess(lock.PID)
	if err != nil {
		return fmt.Errorf("finding server process: %w", err)
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("stopping server: %w", err)
	}

	ui.Successf("Stopped portico (pid %d)", lock.PID)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	lock, state, err := loadServerState(config.Dir())
	if err != nil {
		return err
	}

	switch state {
	case stateStopped:
		ui.Infof("portico is not running")
	case stateStale:
		ui.Infof("portico is not running %s", ui.Dim("(stale lock file exists)"))
	case stateRunning:
		ui.Successf("portico running on http://%s (pid %d)", lock.Addr(), lock.PID)
		ui.Field("Started", 7, lock.StartedAt.Local().Format("2006-01-02 15:04:05"))
	}
	return nil
}
