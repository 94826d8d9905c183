package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	baseURL string
	token   string
)

var rootCmd = &cobra.Command{
	Use:   "testclient",
	Short: "Drive the rate test server through grate-limited HTTP clients",
	Long: `testclient sends requests to the rate test server through an http.Client
whose transport waits on a per-token quota tracker. A scenario passes when the
server never rejects a gated request.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (YAML)")
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "server base URL (overrides config)")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "client token (default: config or a random UUID)")
}
