package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/patrickwarner/portalmetrics/internal/analytics"
	"github.com/patrickwarner/portalmetrics/internal/config"
)

var (
	eventsLimit int
	eventsDSN   string
)

var eventsCmd = &cobra.Command{
	Use:   "events <entity-id>",
	Short: "Print the newest logged events for a post or ad creative",
	Args:  cobra.ExactArgs(1),
	RunE:  runEvents,
}

func init() {
	eventsCmd.Flags().IntVarP(&eventsLimit, "limit", "l", 50, "maximum number of events")
	eventsCmd.Flags().StringVar(&eventsDSN, "dsn", "", "ClickHouse DSN (defaults to CLICKHOUSE_DSN)")
}

func runEvents(cmd *cobra.Command, args []string) error {
	if eventsLimit <= 0 {
		return fmt.Errorf("--limit must be positive")
	}
	dsn := eventsDSN
	if dsn == "" {
		dsn = config.Load().ClickHouseDSN
	}

	ctx, cancel := commandContext(cmd, 30*time.Second)
	defer cancel()

	ch, err := analytics.InitClickHouse(ctx, dsn)
	if err != nil {
		return fmt.Errorf("connect clickhouse: %w", err)
	}
	defer ch.Close()

	events, err := ch.EventsForEntity(ctx, args[0], eventsLimit)
	if err != nil {
		return err
	}
	if jsonOutput {
		return writeJSON(cmd.OutOrStdout(), events)
	}
	return printEvents(cmd.OutOrStdout(), events)
}

func printEvents(w io.Writer, events []analytics.Event) error {
	if len(events) == 0 {
		_, err := fmt.Fprintln(w, "no events")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tMETRIC\tPOSITION\tCOUNTRY\tDEVICE\tREQUEST")
	for _, ev := range events {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			ev.Timestamp.UTC().Format(time.RFC3339), ev.Metric, dash(ev.Position), dash(ev.Country), dash(ev.DeviceType), dash(ev.RequestID))
	}
	return tw.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
