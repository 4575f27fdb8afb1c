package handlers

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"teamdigest/internal/config"
	"teamdigest/internal/logger"
	"teamdigest/internal/vectorstore"
)

// NewSearchCmd creates the search command
func NewSearchCmd() *cobra.Command {
	var (
		limit     int
		project   string
		decisions bool
		threshold float64
	)

	cmd := &cobra.Command{
		Use:   "search [text]",
		Short: "Semantic search over messages",
		Long: `Embed a text query and return the most similar messages from the vector store.

Examples:
  teamdigest search "supplier lead time"
  teamdigest search "thermal risk" --project P2 --limit 5
  teamdigest search "interface freeze" --decisions`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			where := vectorstore.Metadata{}
			if project != "" {
				where[vectorstore.KeyProjectID] = project
			}
			if decisions {
				where[vectorstore.KeyIsDecision] = "true"
			}
			return runSearch(cmd.Context(), config.Get(), cmd.OutOrStdout(), strings.Join(args, " "), vectorstore.Query{
				Limit: limit,
				Where: where,
			}, threshold)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 10, "Maximum number of results")
	cmd.Flags().StringVarP(&project, "project", "p", "", "Only messages of this project id")
	cmd.Flags().BoolVar(&decisions, "decisions", false, "Only decision messages")
	cmd.Flags().Float64VarP(&threshold, "threshold", "t", 0, "Minimum similarity threshold (0.0-1.0)")

	return cmd
}

func runSearch(ctx context.Context, cfg *config.Config, out io.Writer, text string, query vectorstore.Query, threshold float64) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	log := logger.Component("search")

	ws, err := loadWorkspace(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer ws.Close()

	store, err := ws.openStore(ctx)
	if err != nil {
		return fmt.Errorf("failed to open vector store: %w", err)
	}
	defer store.Close()
	if err := ws.index(ctx, store); err != nil {
		return fmt.Errorf("failed to index messages: %w", err)
	}

	q, err := ws.embedder.Embed(ctx, []string{text})
	if err != nil {
		return fmt.Errorf("failed to embed query: %w", err)
	}
	query.Embedding = q[0]

	results, err := store.Query(ctx, query)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Results for %q\n\n", text)
	shown := 0
	for _, r := range results {
		if r.Similarity < threshold {
			continue
		}
		shown++
		fmt.Fprintf(out, "%2d. %.3f %s %s %s\n", shown, r.Similarity, r.ID, r.Metadata[vectorstore.KeyProjectID], r.Text)
	}
	if shown == 0 {
		fmt.Fprintln(out, "No matching messages")
	}
	return nil
}
