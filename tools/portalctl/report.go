package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/patrickwarner/portalmetrics/internal/config"
	"github.com/patrickwarner/portalmetrics/internal/reporting"
)

var (
	reportWindow string
	reportTop    int
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print the content view report for a window",
	RunE:  runReport,
}

var adsCmd = &cobra.Command{
	Use:   "ads",
	Short: "Print impressions, clicks and CTR per ad creative",
	RunE:  runAds,
}

func init() {
	reportCmd.Flags().StringVarP(&reportWindow, "window", "w", "all", "time window: all, 7d, 30d or 90d")
	reportCmd.Flags().IntVarP(&reportTop, "top", "n", reporting.DefaultTopN, "number of top posts")
}

func runReport(cmd *cobra.Command, args []string) error {
	window, err := reporting.ParseWindow(reportWindow)
	if err != nil {
		return err
	}
	cfg := config.Load()
	ctx, cancel := commandContext(cmd, cfg.ReportTimeout)
	defer cancel()

	b, err := openAll(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.close()

	report, err := b.service(cfg).BuildReport(ctx, window, reportTop)
	if err != nil {
		return err
	}
	if jsonOutput {
		return writeJSON(cmd.OutOrStdout(), report)
	}
	return printReport(cmd.OutOrStdout(), report)
}

func runAds(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx, cancel := commandContext(cmd, cfg.ReportTimeout)
	defer cancel()

	b, err := openAll(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.close()

	report, err := b.service(cfg).BuildAdReport(ctx)
	if err != nil {
		return err
	}
	if jsonOutput {
		return writeJSON(cmd.OutOrStdout(), report)
	}
	return printAdReport(cmd.OutOrStdout(), report)
}

func printReport(w io.Writer, r *reporting.Report) error {
	fmt.Fprintf(w, "Window:        %s\n", r.Window)
	fmt.Fprintf(w, "Total views:   %d\n", r.TotalViews)
	fmt.Fprintf(w, "Published:     %d\n", r.PublishedCount)
	fmt.Fprintf(w, "Avg views:     %.2f\n", r.AvgViewsPerPost)
	if r.TotalPosts != nil {
		fmt.Fprintf(w, "All posts:     %d\n", *r.TotalPosts)
	}
	if r.Degraded {
		fmt.Fprintf(w, "DEGRADED, omitted: %s\n", strings.Join(r.Omitted, ", "))
	}

	fmt.Fprintln(w, "\nTop posts")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tID\tTITLE\tVIEWS")
	for i, p := range r.TopN {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\n", i+1, p.ID, p.Title, p.Views)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(w, "\nCategories")
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CATEGORY\tPOSTS\tVIEWS")
	for _, c := range r.PerCategory {
		fmt.Fprintf(tw, "%s\t%d\t%d\n", c.Name, c.PostCount, c.Views)
	}
	return tw.Flush()
}

func formatCTR(ctr *float64) string {
	if ctr == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f%%", *ctr)
}

func printAdReport(w io.Writer, r *reporting.AdReport) error {
	fmt.Fprintf(w, "Ads:           %d (%d active)\n", r.TotalAds, r.ActiveAds)
	fmt.Fprintf(w, "Impressions:   %d\n", r.TotalImpressions)
	fmt.Fprintf(w, "Clicks:        %d\n", r.TotalClicks)
	fmt.Fprintf(w, "CTR:           %s\n", formatCTR(r.CTR))
	if r.Degraded {
		fmt.Fprintf(w, "DEGRADED, omitted: %s\n", strings.Join(r.Omitted, ", "))
	}

	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPOSITION\tACTIVE\tIMPRESSIONS\tCLICKS\tCTR")
	for _, a := range r.Ads {
		fmt.Fprintf(tw, "%s\t%s\t%t\t%d\t%d\t%s\n", a.ID, a.Position, a.Active, a.Impressions, a.Clicks, formatCTR(a.CTR))
	}
	return tw.Flush()
}
