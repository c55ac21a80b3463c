package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var disableCmd = &cobra.Command{
	Use:   "disable <plugin-id>",
	Short: "Disable a loaded plugin, shutting it down and excluding it from future dispatch",
	Args:  cobra.ExactArgs(1),
	RunE:  runDisable,
}

func runDisable(cmd *cobra.Command, args []string) error {
	client := newClient()

	var resp struct {
		Disabled string `json:"disabled"`
	}
	if err := client.postJSON("/api/v1/plugins/"+args[0]+"/disable", &resp); err != nil {
		return fmt.Errorf("disabling %s: %w", args[0], err)
	}
	fmt.Printf("disabled %s\n", resp.Disabled)
	return nil
}
