package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue <queue> <class> <json-args>",
	Short: "push a new job onto a queue",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		var jobArgs []interface{}
		if err := json.Unmarshal([]byte(args[2]), &jobArgs); err != nil {
			return fmt.Errorf("args must be a JSON array: %w", err)
		}
		jid, err := mgr.Enqueue(ctx(), args[0], args[1], jobArgs)
		if err != nil {
			return err
		}
		fmt.Println(jid)
		return nil
	},
}

var removeCmd = &cobra.Command{
	Use:   "remove <queue> <jid>",
	Short: "remove a job from a queue by id",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		removed, err := mgr.RemoveJob(ctx(), args[0], args[1])
		if err != nil {
			return err
		}
		if !removed {
			return fmt.Errorf("jid %s not found in queue %s", args[1], args[0])
		}
		fmt.Println("removed")
		return nil
	},
}

var requeueCmd = &cobra.Command{
	Use:   "requeue <jid>",
	Short: "move a job from the failed list back onto its queue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := mgr.Requeue(ctx(), args[0]); err != nil {
			return err
		}
		fmt.Println("requeued")
		return nil
	},
}
