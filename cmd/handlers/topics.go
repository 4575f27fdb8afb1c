package handlers

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"teamdigest/internal/clustering"
	"teamdigest/internal/config"
	"teamdigest/internal/logger"
	"teamdigest/internal/metrics"
)

// NewTopicsCmd creates the topics command
func NewTopicsCmd() *cobra.Command {
	var (
		day      int
		days     int
		clusters int
		keywords int
		single   bool
	)

	cmd := &cobra.Command{
		Use:   "topics",
		Short: "Show discovered topic clusters",
		Long: `Cluster the messages of a window (or of a single day with --single) and print
each topic with its size, keywords and silhouette score.

Examples:
  teamdigest topics --day 10
  teamdigest topics --day 18 --single`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTopics(cmd.Context(), config.Get(), cmd.OutOrStdout(), topicsOptions{
				day: day, days: days, clusters: clusters, keywords: keywords, single: single,
			})
		},
	}

	cmd.Flags().IntVar(&day, "day", 0, "First day of the window")
	cmd.Flags().IntVar(&days, "days", 0, "Window width in days (default from config)")
	cmd.Flags().IntVarP(&clusters, "clusters", "k", 0, "Target cluster count (default from config)")
	cmd.Flags().IntVar(&keywords, "keywords", 5, "Keywords per topic")
	cmd.Flags().BoolVar(&single, "single", false, "Cluster only --day and list its representative messages")

	return cmd
}

type topicsOptions struct {
	day, days, clusters, keywords int
	single                        bool
}

func runTopics(ctx context.Context, cfg *config.Config, out io.Writer, opts topicsOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	log := logger.Component("topics")

	ws, err := loadWorkspace(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer ws.Close()

	if opts.single {
		return printDayTopics(out, ws, opts)
	}

	days := opts.days
	if days <= 0 {
		days = cfg.Clustering.WindowDays
	}
	k := opts.clusters
	if k <= 0 {
		k = cfg.Clustering.WindowClusters
	}

	cm := ws.engine.ClusterRelevantPeriod(ws.data.Messages, ws.embs, ws.timeline, opts.day, days, k)
	metrics.TopicsDiscovered.Set(float64(len(cm)))
	if len(cm) == 0 {
		fmt.Fprintf(out, "No topics found for days %d-%d (fewer than %d messages)\n",
			opts.day, opts.day+days-1, ws.engine.MinWindowMessages())
		return nil
	}

	analysis := clustering.AnalyzeClusters(ws.embs, cm)
	fmt.Fprintf(out, "%d topics over days %d-%d (%d messages)\n", len(cm), opts.day, opts.day+days-1, cm.Size())
	fmt.Fprintf(out, "Silhouette: %.3f (%s)\n\n", analysis.OverallScore, analysis.Quality)

	for _, t := range clustering.DescribeTopics(ws.data.Messages, ws.embs, cm, opts.keywords) {
		fmt.Fprintf(out, "#%-3d size=%-4d silhouette=%6.3f  %s\n", t.ID, t.Size, t.Silhouette, strings.Join(t.Keywords, ", "))
	}
	return nil
}

func printDayTopics(out io.Writer, ws *workspace, opts topicsOptions) error {
	k := opts.clusters
	if k <= 0 {
		k = ws.cfg.Clustering.DayClusters
	}
	reps := ws.engine.ClusterForDay(opts.day, ws.data.Messages, ws.embs, ws.timeline, k)
	if len(reps) == 0 {
		fmt.Fprintf(out, "No messages on day %d\n", opts.day)
		return nil
	}

	fmt.Fprintf(out, "Representative messages for day %d\n\n", opts.day)
	for _, idx := range reps {
		m := ws.data.Messages[idx]
		fmt.Fprintf(out, "- %s %s [%s] %s\n", m.ID, m.ProjectID, strings.Join(m.Tags(), ","), m.Text)
	}
	return nil
}
