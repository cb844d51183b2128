package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "list known queues and their sizes",
	RunE: func(cmd *cobra.Command, args []string) error {
		infos, err := mgr.ListQueues(ctx())
		if err != nil {
			return err
		}
		for _, q := range infos {
			status := "active"
			if q.Paused {
				status = "paused"
			}
			fmt.Printf("%s\t%d\t%s\n", q.Name, q.Size, status)
		}
		return nil
	},
}

var pauseCmd = &cobra.Command{
	Use:   "pause <queue>",
	Short: "stop a queue from being dequeued",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return mgr.Pause(ctx(), args[0])
	},
}

var unpauseCmd = &cobra.Command{
	Use:   "unpause <queue>",
	Short: "resume dequeuing from a paused queue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return mgr.Unpause(ctx(), args[0])
	},
}
