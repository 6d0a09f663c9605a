package cli

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/taskboard/internal/observability"
)

var (
	eventsJSON    bool
	eventsSince   string
	eventsType    string
	eventsLevel   string
	eventsLimit   int
	eventsSummary bool
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show the local board event log",
	Long: `Show events recorded by this client: logins, role changes and task
creations, updates, moves and deletions, including failed moves.

--type accepts an exact type (task.moved) or a family ending in a dot (task.).`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if EventLog == nil {
			return fmt.Errorf("event log not initialized")
		}

		filter := observability.EventFilter{Level: eventsLevel, Limit: eventsLimit}
		if strings.HasSuffix(eventsType, ".") {
			filter.TypePrefix = eventsType
		} else {
			filter.Type = eventsType
		}
		if eventsSince != "" {
			since, err := parseSinceDuration(eventsSince)
			if err != nil {
				return fmt.Errorf("parsing --since: %w", err)
			}
			filter.Since = &since
		}

		events, err := EventLog.Read(filter)
		if err != nil {
			return fmt.Errorf("reading events: %w", err)
		}

		out := cmd.OutOrStdout()
		if eventsJSON {
			if events == nil {
				events = []observability.Event{}
			}
			data, err := json.MarshalIndent(events, "", "  ")
			if err != nil {
				return fmt.Errorf("formatting events as JSON: %w", err)
			}
			fmt.Fprintln(out, string(data))
			return nil
		}

		if len(events) == 0 {
			fmt.Fprintln(out, "No events recorded.")
			return nil
		}

		if eventsSummary {
			counts := make(map[string]int)
			for _, e := range events {
				counts[e.Type]++
			}
			types := make([]string, 0, len(counts))
			for t := range counts {
				types = append(types, t)
			}
			sort.Strings(types)
			rows := make([][]string, 0, len(types))
			for _, t := range types {
				rows = append(rows, []string{t, strconv.Itoa(counts[t])})
			}
			fmt.Fprintln(out, renderTable([]string{"TYPE", "COUNT"}, rows, []columnAlignment{alignLeft, alignRight}, isTerminal(out)))
			return nil
		}

		rows := make([][]string, 0, len(events))
		for _, e := range events {
			rows = append(rows, []string{
				e.Time.Local().Format("2006-01-02 15:04:05"),
				e.Level,
				e.Type,
				formatEventData(e.Data),
			})
		}
		fmt.Fprintln(out, renderTable([]string{"TIME", "LEVEL", "TYPE", "DATA"}, rows, nil, isTerminal(out)))
		return nil
	},
}

// formatEventData renders event data as sorted key=value pairs.
func formatEventData(data map[string]any) string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, data[k]))
	}
	return truncate(strings.Join(parts, " "), 60)
}

// parseSinceDuration parses a duration such as "7d" or "24h" and returns the
// corresponding time in the past.
func parseSinceDuration(s string) (time.Time, error) {
	now := time.Now().UTC()
	s = strings.TrimSpace(s)

	if strings.HasSuffix(s, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid day duration %q", s)
		}
		return now.AddDate(0, 0, -days), nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("unsupported duration format %q (use e.g. 7d, 24h, 30m)", s)
	}
	return now.Add(-d), nil
}

func init() {
	eventsCmd.Flags().BoolVar(&eventsJSON, "json", false, "Output events as JSON")
	eventsCmd.Flags().StringVar(&eventsSince, "since", "", "Only events newer than this (e.g. 7d, 24h)")
	eventsCmd.Flags().StringVar(&eventsType, "type", "", "Filter by event type or family (task.)")
	eventsCmd.Flags().StringVar(&eventsLevel, "level", "", "Filter by level (INFO, WARN, ERROR)")
	eventsCmd.Flags().IntVarP(&eventsLimit, "limit", "n", 50, "Show only the most recent N events (0 for all)")
	eventsCmd.Flags().BoolVar(&eventsSummary, "summary", false, "Count events by type")
	rootCmd.AddCommand(eventsCmd)
}
