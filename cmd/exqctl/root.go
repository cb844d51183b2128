package main

import (
	"context"
	"fmt"
	"os"

	"github.com/Agiley/exq"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	mgr     *exq.Manager
)

var rootCmd = &cobra.Command{
	Use:   "exqctl",
	Short: "Inspect and operate an exq job queue",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		v := viper.New()
		if cfgFile != "" {
			v.SetConfigFile(cfgFile)
		}
		cfg, err := exq.LoadConfig(v)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		mgr = exq.New(cfg)
		return nil
	},
}

func main() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a config file (optional)")
	rootCmd.AddCommand(enqueueCmd, listCmd, statsCmd, processesCmd, pauseCmd, unpauseCmd, removeCmd, requeueCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func ctx() context.Context { return context.Background() }
