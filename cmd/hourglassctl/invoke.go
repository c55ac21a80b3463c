package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var invokeParamsFile string

var invokeCmd = &cobra.Command{
	Use:   "invoke <plugin-id> <command>",
	Short: "Invoke a command on a loaded plugin",
	Args:  cobra.ExactArgs(2),
	RunE:  runInvoke,
}

func init() {
	invokeCmd.Flags().StringVarP(&invokeParamsFile, "params", "f", "", "path to a JSON params file (- for stdin; default {})")
}

func runInvoke(cmd *cobra.Command, args []string) error {
	pluginID, command := args[0], args[1]

	params := []byte("{}")
	if invokeParamsFile != "" {
		var err error
		if invokeParamsFile == "-" {
			params, err = io.ReadAll(os.Stdin)
		} else {
			params, err = os.ReadFile(invokeParamsFile)
		}
		if err != nil {
			return fmt.Errorf("reading params: %w", err)
		}
	}

	client := newClient()
	out, err := client.postRaw(fmt.Sprintf("/api/v1/plugins/%s/invoke?command=%s", pluginID, command), params)
	if err != nil {
		return fmt.Errorf("invoking %s.%s: %w", pluginID, command, err)
	}

	os.Stdout.Write(out)
	if len(out) == 0 || out[len(out)-1] != '\n' {
		fmt.Println()
	}
	return nil
}

