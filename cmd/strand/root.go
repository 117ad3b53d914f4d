package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/indigo-web/strand/config"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	envFile string
)

var rootCmd = &cobra.Command{
	Use:   "strand",
	Short: "Strand - HTTP/1 server with adaptive response compression",
	Long: `Strand serves HTTP/1.x and compresses response bodies on the fly with gzip,
deflate or brotli. Small chunks are compressed right away, big ones are offloaded
to a pool of workers, so a single connection never stalls the others.

Idle keep-alive connections are closed once the keep-alive timeout elapses.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (.yaml, .yml or .json)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "file with STRAND_* variables")
}

// loadConfig populates the environment from the env file, if there's one, and loads
// the configuration on top of the defaults.
func loadConfig() (*config.Config, error) {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	if cfgFile == "" {
		return config.FromEnv()
	}

	return config.Load(cfgFile)
}
