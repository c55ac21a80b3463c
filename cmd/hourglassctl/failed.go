package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var failedCmd = &cobra.Command{
	Use:   "failed",
	Short: "List plugins that never reached loaded, or left it terminally",
	RunE:  runFailedList,
}

type failedResponse struct {
	Failed []failedPlugin `json:"failed"`
}

type failedPlugin struct {
	PluginID string
	Reason   string
	Detail   string
	FailedAt string
}

func runFailedList(cmd *cobra.Command, args []string) error {
	client := newClient()

	var resp failedResponse
	if err := client.getJSON("/api/v1/plugins/failed", &resp); err != nil {
		return fmt.Errorf("listing failed plugins: %w", err)
	}

	if outputFmt == "json" || outputFmt == "yaml" {
		return printOutput(resp)
	}

	headers := []string{"ID", "Reason", "Detail", "Failed At"}
	rows := make([][]string, 0, len(resp.Failed))
	for _, f := range resp.Failed {
		rows = append(rows, []string{f.PluginID, f.Reason, truncate(f.Detail, 60), f.FailedAt})
	}
	printTable(headers, rows)
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
