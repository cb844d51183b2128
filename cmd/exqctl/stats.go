package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "print realtime processed/failed histograms",
	RunE: func(cmd *cobra.Command, args []string) error {
		processed, failed, err := mgr.RealtimeStats(ctx())
		if err != nil {
			return err
		}
		fmt.Println("processed:")
		for _, b := range processed {
			fmt.Printf("  %s\t%d\n", b.Label, b.Count)
		}
		fmt.Println("failed:")
		for _, b := range failed {
			fmt.Printf("  %s\t%d\n", b.Label, b.Count)
		}
		return nil
	},
}

var processesCmd = &cobra.Command{
	Use:   "processes",
	Short: "list currently running workers",
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := mgr.Processes(ctx())
		if err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Printf("%s\t%s\t%s\t%s\n", e.PID, e.Host, e.Job.Class, e.StartedAt)
		}
		return nil
	},
}
