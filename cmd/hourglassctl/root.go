// Command hourglassctl is the admin CLI for a running hourglassd: it
// talks to the frontend IPC boundary (internal/ipc) over HTTP, the way
// catalogctl drives the catalog server's HTTP API.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	outputFmt string
)

var rootCmd = &cobra.Command{
	Use:   "hourglassctl",
	Short: "CLI for a running hourglass host daemon",
	Long: `hourglassctl drives hourglassd's frontend IPC boundary: list loaded
plugins, inspect failures and dispatch accounting, invoke a plugin
command, or disable a misbehaving plugin.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://127.0.0.1:8787", "hourglassd IPC address")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "table", "Output format: table, json, yaml")

	rootCmd.AddCommand(pluginsCmd)
	rootCmd.AddCommand(failedCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(invokeCmd)
	rootCmd.AddCommand(disableCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
