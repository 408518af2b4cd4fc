package main

import (
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var stopWait time.Duration

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Signal a running learner to shut down",
	Long: `Sends SIGTERM to the process recorded in the PID file and waits for it
to exit. The learner drains in-flight work up to its shutdown deadline.`,
	RunE: runStop,
}

func init() {
	stopCmd.Flags().DurationVar(&stopWait, "wait", 35*time.Second, "how long to wait for the process to exit")
}

func runStop(cmd *cobra.Command, args []string) error {
	pid, alive := readPIDFile(workspace)
	if !alive {
		if pid != 0 {
			// Stale file from a crashed run.
			removePIDFile(workspace)
		}
		return fmt.Errorf("no running instance found")
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to signal pid %d: %w", pid, err)
	}
	fmt.Printf("sent SIGTERM to pid %d\n", pid)

	deadline := time.Now().Add(stopWait)
	for time.Now().Before(deadline) {
		if _, stillAlive := readPIDFile(workspace); !stillAlive {
			fmt.Println("stopped")
			return nil
		}
		time.Sleep(200 * time.Millisecond)
	}
	return fmt.Errorf("pid %d did not exit within %v", pid, stopWait)
}
