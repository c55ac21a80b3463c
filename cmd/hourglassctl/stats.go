package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats [plugin-id]",
	Short: "Show dispatch accounting for one plugin, or every plugin",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStats,
}

type statsEntry struct {
	PluginID    string `json:"plugin_id"`
	Calls       int64  `json:"calls"`
	Errors      int64  `json:"errors"`
	RateLimited int64  `json:"rate_limited"`
	LastCallAt  int64  `json:"last_call_at"`
}

func runStats(cmd *cobra.Command, args []string) error {
	client := newClient()

	if len(args) == 1 {
		var s statsEntry
		if err := client.getJSON("/api/v1/plugins/"+args[0]+"/stats", &s); err != nil {
			return fmt.Errorf("fetching stats for %s: %w", args[0], err)
		}
		if outputFmt == "json" || outputFmt == "yaml" {
			return printOutput(s)
		}
		printTable([]string{"ID", "Calls", "Errors", "Rate Limited", "Last Call"},
			[][]string{{s.PluginID, itoa(s.Calls), itoa(s.Errors), itoa(s.RateLimited), itoa(s.LastCallAt)}})
		return nil
	}

	var resp struct {
		Stats []statsEntry `json:"stats"`
	}
	if err := client.getJSON("/api/v1/plugins/stats", &resp); err != nil {
		return fmt.Errorf("fetching stats: %w", err)
	}
	if outputFmt == "json" || outputFmt == "yaml" {
		return printOutput(resp)
	}

	headers := []string{"ID", "Calls", "Errors", "Rate Limited", "Last Call"}
	rows := make([][]string, 0, len(resp.Stats))
	for _, s := range resp.Stats {
		rows = append(rows, []string{s.PluginID, itoa(s.Calls), itoa(s.Errors), itoa(s.RateLimited), itoa(s.LastCallAt)})
	}
	printTable(headers, rows)
	return nil
}

func itoa(v int64) string { return strconv.FormatInt(v, 10) }
