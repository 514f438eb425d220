package main

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/readq/internal/bulk"
	"github.com/kalambet/readq/internal/config"
	"github.com/kalambet/readq/internal/optimizer"
	"github.com/kalambet/readq/internal/queue"
	"github.com/kalambet/readq/internal/session"
	"github.com/kalambet/readq/internal/srs"
	"github.com/kalambet/readq/internal/stream"
)

// clientCommand wraps a handler that talks to the running server.
func clientCommand(fn func(ctx context.Context, c *apiClient, w io.Writer, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return fn(cmd.Context(), client, os.Stdout, cmd, args)
	}
}

// --- queue ---

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect the review queue",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued items",
	RunE: clientCommand(func(ctx context.Context, c *apiClient, w io.Writer, cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")
		return listQueue(ctx, c, w, limit, offset)
	}),
}

var queueStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show queue statistics",
	RunE: clientCommand(func(ctx context.Context, c *apiClient, w io.Writer, cmd *cobra.Command, args []string) error {
		return queueStats(ctx, c, w)
	}),
}

var queueRankedCmd = &cobra.Command{
	Use:   "ranked",
	Short: "List active items ranked by a priority preset",
	RunE: clientCommand(func(ctx context.Context, c *apiClient, w io.Writer, cmd *cobra.Command, args []string) error {
		preset, _ := cmd.Flags().GetString("preset")
		limit, _ := cmd.Flags().GetInt("limit")
		return rankedQueue(ctx, c, w, preset, limit)
	}),
}

func init() {
	queueListCmd.Flags().Int("limit", 50, "max items to show (0 for all)")
	queueListCmd.Flags().Int("offset", 0, "items to skip")
	queueRankedCmd.Flags().String("preset", queue.DefaultPreset, "priority preset")
	queueRankedCmd.Flags().Int("limit", 20, "max items to show (0 for all)")

	queueCmd.AddCommand(queueListCmd, queueStatsCmd, queueRankedCmd)
}

func listQueue(ctx context.Context, c *apiClient, w io.Writer, limit, offset int) error {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))

	var items []queue.Item
	if err := c.getJSON(ctx, "/queue?"+q.Encode(), &items); err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Fprintln(w, "Queue is empty.")
		return nil
	}

	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tTYPE\tDUE\tMIN\tTITLE")
	for _, it := range items {
		title := it.Title
		if it.Suspended {
			title += " (suspended)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%g\t%s\n", it.ID, it.ItemType, formatDue(it.DueDate), it.EstimatedMinutes, truncate(title, 60))
	}
	return tw.Flush()
}

func queueStats(ctx context.Context, c *apiClient, w io.Writer) error {
	var st queue.Stats
	if err := c.getJSON(ctx, "/queue/stats", &st); err != nil {
		return err
	}
	tw := newTable(w)
	fmt.Fprintf(tw, "Total items\t%d\n", st.TotalItems)
	fmt.Fprintf(tw, "Due today\t%d\n", st.DueToday)
	fmt.Fprintf(tw, "Overdue\t%d\n", st.Overdue)
	fmt.Fprintf(tw, "New\t%d\n", st.NewItems)
	fmt.Fprintf(tw, "Learning\t%d\n", st.LearningItems)
	fmt.Fprintf(tw, "Review\t%d\n", st.ReviewItems)
	fmt.Fprintf(tw, "Suspended\t%d\n", st.Suspended)
	fmt.Fprintf(tw, "Estimated minutes\t%g\n", st.TotalEstimatedMinutes)
	return tw.Flush()
}

func rankedQueue(ctx context.Context, c *apiClient, w io.Writer, preset string, limit int) error {
	var ranked []queue.Scored
	if err := c.getJSON(ctx, "/queue/ranked?preset="+url.QueryEscape(preset), &ranked); err != nil {
		return err
	}
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "#\tSCORE\tID\tTYPE\tTITLE")
	for i, s := range ranked {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\n", i+1, s.Score, s.Item.ID, s.Item.ItemType, truncate(s.Item.Title, 60))
	}
	return tw.Flush()
}

// --- session ---

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Plan review sessions",
}

var sessionPlanCmd = &cobra.Command{
	Use:   "plan",
	Short: "Split the ranked queue into time-boxed blocks",
	RunE: clientCommand(func(ctx context.Context, c *apiClient, w io.Writer, cmd *cobra.Command, args []string) error {
		preset, _ := cmd.Flags().GetString("preset")
		return planSession(ctx, c, w, preset)
	}),
}

func init() {
	sessionPlanCmd.Flags().String("preset", queue.DefaultPreset, "priority preset")
	sessionCmd.AddCommand(sessionPlanCmd)
}

type blocksRequest struct {
	Preset string `json:"preset"`
}

func planSession(ctx context.Context, c *apiClient, w io.Writer, preset string) error {
	var blocks []session.Block
	if err := c.postJSON(ctx, "/sessions/blocks", blocksRequest{Preset: preset}, &blocks); err != nil {
		return err
	}
	for _, b := range blocks {
		fmt.Fprintf(w, "%s (%s, %g min, safe stop after %d)\n", colorize(colorBold, b.Title), b.ID, b.TimeBudgetMinutes, b.SafeStopCount)
		for _, it := range b.Items {
			fmt.Fprintf(w, "  - %s  %s\n", it.ID, truncate(it.Title, 60))
		}
	}
	return nil
}

// --- stream ---

var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Show the mixed reading stream",
	RunE: clientCommand(func(ctx context.Context, c *apiClient, w io.Writer, cmd *cobra.Command, args []string) error {
		var pct *float64
		if cmd.Flags().Changed("review-percentage") {
			v, _ := cmd.Flags().GetFloat64("review-percentage")
			pct = &v
		}
		return showStream(ctx, c, w, pct)
	}),
}

func init() {
	streamCmd.Flags().Float64("review-percentage", 0, "share of review items in the stream (0-100)")
}

type streamRequest struct {
	ReviewPercentage *float64 `json:"review_percentage,omitempty"`
}

func showStream(ctx context.Context, c *apiClient, w io.Writer, pct *float64) error {
	var items []stream.Item
	if err := c.postJSON(ctx, "/stream", streamRequest{ReviewPercentage: pct}, &items); err != nil {
		return err
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "#\tKIND\tCATEGORY\tID\tTITLE")
	for i, it := range items {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", i+1, it.Kind, it.Category, it.ID, truncate(it.Title, 50))
	}
	return tw.Flush()
}

// --- rate / postpone ---

var rateCmd = &cobra.Command{
	Use:   "rate <id> <rating>",
	Short: "Record a review rating (again, hard, good, easy or 1-4)",
	Args:  cobra.ExactArgs(2),
	RunE: clientCommand(func(ctx context.Context, c *apiClient, w io.Writer, cmd *cobra.Command, args []string) error {
		return rateItem(ctx, c, args[0], args[1])
	}),
}

type rateRequest struct {
	Rating srs.Rating `json:"rating"`
}

func rateItem(ctx context.Context, c *apiClient, id, raw string) error {
	rating, err := srs.ParseRating(raw)
	if err != nil {
		return err
	}
	var st srs.State
	if err := c.postJSON(ctx, "/items/"+url.PathEscape(id)+"/rating", rateRequest{Rating: rating}, &st); err != nil {
		return err
	}
	printSuccess("Rated %s %s: next review %s (interval %d days)", id, rating, st.DueDate.Local().Format("2006-01-02"), st.IntervalDays)
	return nil
}

var postponeCmd = &cobra.Command{
	Use:   "postpone <id> <days>",
	Short: "Push an item's due date back by 1 to 365 days",
	Args:  cobra.ExactArgs(2),
	RunE: clientCommand(func(ctx context.Context, c *apiClient, w io.Writer, cmd *cobra.Command, args []string) error {
		days, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("days must be an integer: %w", err)
		}
		return postponeItem(ctx, c, args[0], days)
	}),
}

type postponeRequest struct {
	Days int `json:"days"`
}

type postponeResponse struct {
	ID      string    `json:"id"`
	DueDate time.Time `json:"due_date"`
}

func postponeItem(ctx context.Context, c *apiClient, id string, days int) error {
	if days < 1 || days > 365 {
		return fmt.Errorf("days must be between 1 and 365, got %d", days)
	}
	var res postponeResponse
	if err := c.postJSON(ctx, "/queue/"+url.PathEscape(id)+"/postpone", postponeRequest{Days: days}, &res); err != nil {
		return err
	}
	printSuccess("Postponed %s until %s", res.ID, res.DueDate.Local().Format("2006-01-02"))
	return nil
}

// --- bulk ---

var bulkCmd = &cobra.Command{
	Use:   "bulk",
	Short: "Suspend, unsuspend or delete many items at once",
}

func init() {
	for _, op := range []bulk.Op{bulk.Suspend, bulk.Unsuspend, bulk.Delete} {
		bulkCmd.AddCommand(&cobra.Command{
			Use:   op.String() + " <ids...>",
			Short: strings.ToUpper(op.String()[:1]) + op.String()[1:] + " the given items",
			Args:  cobra.MinimumNArgs(1),
			RunE: clientCommand(func(ctx context.Context, c *apiClient, w io.Writer, cmd *cobra.Command, args []string) error {
				return bulkApply(ctx, c, w, op, args)
			}),
		})
	}
}

type bulkRequest struct {
	IDs []string `json:"ids"`
}

func bulkApply(ctx context.Context, c *apiClient, w io.Writer, op bulk.Op, ids []string) error {
	var res bulk.Result
	if err := c.postJSON(ctx, "/queue/bulk/"+op.String(), bulkRequest{IDs: ids}, &res); err != nil {
		return err
	}
	if len(res.Succeeded) > 0 {
		printSuccess("%s: %d succeeded", op, len(res.Succeeded))
	}
	for _, e := range res.Errors {
		printWarning("%s", e)
	}
	if len(res.Succeeded) == 0 && len(res.Failed) > 0 {
		return fmt.Errorf("%s failed for all %d items", op, len(res.Failed))
	}
	return nil
}

// --- optimize ---

var optimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Tune scheduling parameters against the review history",
	RunE: clientCommand(func(ctx context.Context, c *apiClient, w io.Writer, cmd *cobra.Command, args []string) error {
		async, _ := cmd.Flags().GetBool("async")
		return runOptimize(ctx, c, w, async)
	}),
}

func init() {
	optimizeCmd.Flags().Bool("async", false, "queue the optimization and print the job id")
}

type optimizeQueued struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

func runOptimize(ctx context.Context, c *apiClient, w io.Writer, async bool) error {
	if async {
		var q optimizeQueued
		if err := c.postJSON(ctx, "/algorithm/optimize?async=true", nil, &q); err != nil {
			return err
		}
		printSuccess("Queued optimization %s", q.JobID)
		return nil
	}

	var res optimizer.Result
	if err := c.postJSON(ctx, "/algorithm/optimize", nil, &res); err != nil {
		return err
	}
	if !res.Converged {
		printWarning("optimizer did not converge after %d iterations", res.Iterations)
	}
	tw := newTable(w)
	fmt.Fprintf(tw, "Min ease factor\t%.3f\n", res.BestParams.MinEaseFactor)
	fmt.Fprintf(tw, "Initial ease factor\t%.3f\n", res.BestParams.InitialEaseFactor)
	fmt.Fprintf(tw, "Desired retention\t%.3f\n", res.BestParams.DesiredRetention)
	fmt.Fprintf(tw, "Expected retention\t%.3f\n", res.ExpectedRetention)
	return tw.Flush()
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:       "set <key> <value>",
	Short:     "Set a configuration value",
	Args:      cobra.ExactArgs(2),
	ValidArgs: config.ValidKeys(),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
