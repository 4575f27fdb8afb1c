package handlers

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"teamdigest/internal/config"
	"teamdigest/internal/logger"
	"teamdigest/internal/metrics"
	"teamdigest/internal/narrative"
)

// NewDemoCmd creates the demo command
func NewDemoCmd() *cobra.Command {
	var (
		day      int
		users    int
		maxItems int
	)

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Print digests for the synthetic workspace",
		Long: `Generate the synthetic robotics workspace, embed and index every message,
discover topics over the window starting at --day and print the digests of the
first --users users.

Examples:
  teamdigest demo
  teamdigest demo --day 5 --users 5 --max-items 10`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(cmd.Context(), config.Get(), cmd.OutOrStdout(), day, users, maxItems)
		},
	}

	cmd.Flags().IntVar(&day, "day", 18, "Digest day (offset from the first message)")
	cmd.Flags().IntVar(&users, "users", 3, "Number of users to print digests for")
	cmd.Flags().IntVar(&maxItems, "max-items", 8, "Maximum ranked messages per digest")

	return cmd
}

func runDemo(ctx context.Context, cfg *config.Config, out io.Writer, day, nUsers, maxItems int) error {
	if ctx == nil {
		ctx = context.Background()
	}
	log := logger.Component("demo")

	fmt.Fprintf(out, "Generating demo for day %d...\n", day)

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

	clusters := ws.windowClusters(day)
	metrics.TopicsDiscovered.Set(float64(len(clusters)))

	narrator, closeLLM, err := newNarrator(cfg, log)
	if err != nil {
		return err
	}
	defer closeLLM()

	asm, err := ws.assembler(narrator, maxItems)
	if err != nil {
		return err
	}

	users := ws.data.Users
	if nUsers > 0 && nUsers < len(users) {
		users = users[:nUsers]
	}
	digests, err := asm.BuildForUsers(ctx, users, day, clusters)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Generated %d messages across %d users, %d projects (%d topics in window)\n",
		len(ws.data.Messages), len(ws.data.Users), len(ws.data.Projects), len(clusters))

	rule := strings.Repeat("=", 80)
	for i, d := range digests {
		u := users[i]
		fmt.Fprintf(out, "\n%s\nDIGEST #%d for %s (%s)\n%s\n%s\n", rule, i+1, u.Name, u.Role, rule, d.Text)
		if d.FallbackReason != "" && d.FallbackReason != narrative.ReasonDisabled {
			fmt.Fprintf(out, "(rule-based: %s)\n", d.FallbackReason)
		}
	}
	return nil
}
