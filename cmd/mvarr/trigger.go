package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var discoverCmd = &cobra.Command{
	Use:   "discover [artist-id]",
	Short: "Trigger a discovery run",
	Long: `Ask the daemon to run discovery now.

Without arguments, runs discovery for all eligible artists.
With an artist ID, runs discovery for that artist only.

Examples:
  mvarr discover              # All eligible artists
  mvarr discover 42           # Artist #42 only`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDiscoverCmd,
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Trigger a download sweep",
	Long:  `Ask the daemon to claim and download pending videos now.`,
	Args:  cobra.NoArgs,
	RunE:  runSweepCmd,
}

func init() {
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(sweepCmd)
}

func runDiscoverCmd(cmd *cobra.Command, args []string) error {
	client := NewClient(serverURL)

	var artistID int64
	if len(args) > 0 {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || id <= 0 {
			return fmt.Errorf("invalid artist ID: %s", args[0])
		}
		artistID = id
	}

	tr, err := client.TriggerDiscovery(artistID)
	if err != nil {
		return fmt.Errorf("trigger failed: %w", err)
	}

	if jsonOutput {
		printJSON(tr)
		return nil
	}
	if artistID > 0 {
		fmt.Printf("Discovery triggered for artist #%d\n", artistID)
	} else {
		fmt.Println("Discovery triggered")
	}
	return nil
}

func runSweepCmd(cmd *cobra.Command, args []string) error {
	client := NewClient(serverURL)

	tr, err := client.TriggerSweep()
	if err != nil {
		return fmt.Errorf("trigger failed: %w", err)
	}

	if jsonOutput {
		printJSON(tr)
		return nil
	}
	fmt.Println("Download sweep triggered")
	return nil
}
