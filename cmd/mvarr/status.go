package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Daemon status",
	Long: `Show scheduler state, next fire times and queue depth.

Examples:
  mvarr status                # Human-readable status
  mvarr status --json         # Raw JSON`,
	Args: cobra.NoArgs,
	RunE: runStatusCmd,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatusCmd(cmd *cobra.Command, args []string) error {
	client := NewClient(serverURL)

	st, err := client.Status()
	if err != nil {
		return fmt.Errorf("status check failed: %w", err)
	}

	if jsonOutput {
		printJSON(st)
		return nil
	}

	printStatus(st)
	return nil
}

func printStatus(st *StatusResponse) {
	state := "stopped"
	if st.Running {
		state = "running"
	}
	if st.Degraded {
		state = "degraded"
	}

	fmt.Printf("mvarr @ %s\n\n", serverURL)
	fmt.Printf("  Scheduler:       %s\n", state)
	if st.Degraded && st.DegradedReason != "" {
		fmt.Printf("  Reason:          %s\n", st.DegradedReason)
	}
	fmt.Printf("  Next discovery:  %s\n", formatFireTime(st.NextDiscovery))
	fmt.Printf("  Next sweep:      %s\n", formatFireTime(st.NextSweep))
	fmt.Printf("  Queue depth:     %d\n", st.QueueDepth)
	if st.CoalescedDiscovery > 0 || st.CoalescedSweeps > 0 {
		fmt.Printf("  Coalesced:       %d discovery, %d sweeps\n",
			st.CoalescedDiscovery, st.CoalescedSweeps)
	}
}

func formatFireTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "disabled"
	}
	local := t.Local()
	return fmt.Sprintf("%s (in %s)", local.Format("Mon 15:04"), time.Until(local).Round(time.Minute))
}
