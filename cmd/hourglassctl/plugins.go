package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var pluginsCmd = &cobra.Command{
	Use:   "plugins",
	Short: "List every discovered plugin and its lifecycle state",
	RunE:  runPluginsList,
}

type pluginsResponse struct {
	Plugins []pluginSnapshot `json:"plugins"`
}

type pluginSnapshot struct {
	PluginID string
	State    string
	Manifest struct {
		ID          string
		DisplayName string
		Version     string
		Author      string
	}
}

func runPluginsList(cmd *cobra.Command, args []string) error {
	client := newClient()

	var resp pluginsResponse
	if err := client.getJSON("/api/v1/plugins", &resp); err != nil {
		return fmt.Errorf("listing plugins: %w", err)
	}

	if outputFmt == "json" || outputFmt == "yaml" {
		return printOutput(resp)
	}

	headers := []string{"ID", "State", "Version", "Author"}
	rows := make([][]string, 0, len(resp.Plugins))
	for _, p := range resp.Plugins {
		rows = append(rows, []string{p.PluginID, p.State, p.Manifest.Version, p.Manifest.Author})
	}
	printTable(headers, rows)
	return nil
}
