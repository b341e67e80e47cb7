package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show recent events",
	Long: `Show the most recent daemon events, newest first.

Examples:
  mvarr events                # Last 20 events
  mvarr events --limit 100    # Last 100 events`,
	Args: cobra.NoArgs,
	RunE: runEventsCmd,
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.Flags().Int("limit", 20, "Number of events to show (1-500)")
}

func runEventsCmd(cmd *cobra.Command, args []string) error {
	client := NewClient(serverURL)
	limit, _ := cmd.Flags().GetInt("limit")

	lr, err := client.Events(limit)
	if err != nil {
		return fmt.Errorf("fetch failed: %w", err)
	}

	if jsonOutput {
		printJSON(lr)
		return nil
	}

	if len(lr.Items) == 0 {
		fmt.Println("No events recorded.")
		return nil
	}
	for _, e := range lr.Items {
		fmt.Printf("%s  %-28s %s #%d\n",
			e.OccurredAt.Local().Format("2006-01-02 15:04:05"),
			e.Type, e.EntityType, e.EntityID)
	}
	return nil
}
