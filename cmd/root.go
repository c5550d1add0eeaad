package cmd

import (
	"github.com/spf13/cobra"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "dispatchcore",
	Short: "Day-ahead dispatch optimization engine for PV+BESS sites",
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config.yaml", "configuration file")
	rootCmd.AddCommand(solveCmd)
	rootCmd.AddCommand(validateCmd)
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }
