package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration",
	Long: `Load the configuration the same way serve does and report every invalid field.

Examples:
  # Check the defaults with the environment overrides
  strand check

  # Check a file
  strand check --config /etc/strand/strand.yaml`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "configuration is valid")
		fmt.Fprintf(out, "  listen:      %s\n", cfg.NET.Addr)
		fmt.Fprintf(out, "  keep-alive:  %s\n", cfg.KeepAlive.Timeout)
		fmt.Fprintf(out, "  compression: %t %v (offload from %d bytes)\n",
			cfg.Compression.Enabled, cfg.Compression.Preference, cfg.Compression.Threshold)
		if cfg.Metrics.Enabled {
			fmt.Fprintf(out, "  metrics:     %s\n", cfg.Metrics.Addr)
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
