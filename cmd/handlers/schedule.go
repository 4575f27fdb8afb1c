package handlers

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"teamdigest/internal/config"
	"teamdigest/internal/core"
	"teamdigest/internal/digest"
	"teamdigest/internal/logger"
	"teamdigest/internal/metrics"
	"teamdigest/internal/server"
)

// NewScheduleCmd creates the schedule command
func NewScheduleCmd() *cobra.Command {
	var (
		day     int
		runNow  bool
		cronStr string
	)

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Build digests on a cron schedule",
		Long: `Run the digest job on the configured cron schedule (schedule.cron) until
interrupted. When metrics are enabled, metrics.addr serves /metrics, /health and
on-demand digests at /api/digests/{userID}?day=N.

The digest day is today's offset on the run's timeline unless --day is set.

Examples:
  teamdigest schedule
  teamdigest schedule --cron "*/5 * * * *" --day 18 --now`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Get()
			if cronStr != "" {
				cfg.Schedule.Cron = cronStr
			}
			fixedDay := -1
			if cmd.Flags().Changed("day") {
				fixedDay = day
			}
			return runSchedule(cmd.Context(), cfg, cmd.OutOrStdout(), fixedDay, runNow)
		},
	}

	cmd.Flags().IntVar(&day, "day", 0, "Always build this day instead of today")
	cmd.Flags().BoolVar(&runNow, "now", false, "Run the job once at startup")
	cmd.Flags().StringVar(&cronStr, "cron", "", "Cron expression (default from config)")

	return cmd
}

// digestJob builds digests for the scheduled users. Runs never overlap.
type digestJob struct {
	ws       *workspace
	users    []core.User
	fixedDay int // negative means today
	now      func() time.Time
	out      io.Writer
	log      zerolog.Logger

	mu sync.Mutex
}

func (j *digestJob) day() int {
	if j.fixedDay >= 0 {
		return j.fixedDay
	}
	return j.ws.timeline.Day(j.now())
}

// Run executes one scheduled run and records its outcome
func (j *digestJob) Run(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	err := j.run(ctx)
	if err != nil {
		metrics.ScheduledRuns.WithLabelValues("error").Inc()
		j.log.Error().Err(err).Msg("Scheduled digest run failed")
		return err
	}
	metrics.ScheduledRuns.WithLabelValues("ok").Inc()
	return nil
}

func (j *digestJob) run(ctx context.Context) error {
	day := j.day()
	clusters := j.ws.windowClusters(day)
	metrics.TopicsDiscovered.Set(float64(len(clusters)))

	asm, closeLLM, err := j.assembler()
	if err != nil {
		return err
	}
	defer closeLLM()

	digests, err := asm.BuildForUsers(ctx, j.users, day, clusters)
	if err != nil {
		return err
	}

	for _, d := range digests {
		fmt.Fprintf(j.out, "\n[%s] %s day %d (%s)\n%s\n", d.ID, d.UserID, d.Day, d.Source, d.Text)
	}
	j.log.Info().Int("day", day).Int("digests", len(digests)).Int("topics", len(clusters)).Msg("Scheduled digest run complete")
	return nil
}

func (j *digestJob) assembler() (*digest.Assembler, func() error, error) {
	narrator, closeLLM, err := newNarrator(j.ws.cfg, j.log)
	if err != nil {
		return nil, nil, err
	}
	asm, err := j.ws.assembler(narrator, 0)
	if err != nil {
		closeLLM()
		return nil, nil, err
	}
	return asm, closeLLM, nil
}

// BuildDigest builds one digest outside the schedule. day may be server.Today.
func (j *digestJob) BuildDigest(ctx context.Context, userID string, day int) (core.Digest, error) {
	users := j.ws.users([]string{userID})
	if len(users) == 0 {
		return core.Digest{}, fmt.Errorf("%w: %s", server.ErrUnknownUser, userID)
	}
	if day == server.Today {
		day = j.day()
	}

	asm, closeLLM, err := j.assembler()
	if err != nil {
		return core.Digest{}, err
	}
	defer closeLLM()

	return asm.BuildForUser(ctx, digest.Request{
		User:     users[0],
		Day:      day,
		Clusters: j.ws.windowClusters(day),
	})
}

func runSchedule(ctx context.Context, cfg *config.Config, out io.Writer, fixedDay int, runNow bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	log := logger.Component("schedule")

	ws, err := loadWorkspace(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer ws.Close()

	job := &digestJob{
		ws:       ws,
		users:    ws.users(cfg.Schedule.Users),
		fixedDay: fixedDay,
		now:      time.Now,
		out:      out,
		log:      log,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := cron.New()
	if _, err := c.AddFunc(cfg.Schedule.Cron, func() { _ = job.Run(ctx) }); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", cfg.Schedule.Cron, err)
	}
	c.Start()
	defer func() { <-c.Stop().Done() }()

	var srv *server.Server
	serverErrors := make(chan error, 1)
	if cfg.Metrics.Enabled {
		srv = server.New(server.Config{Addr: cfg.Metrics.Addr}, job, log)
		go func() {
			if err := srv.Start(); err != nil {
				serverErrors <- err
			}
		}()
	}

	log.Info().Str("cron", cfg.Schedule.Cron).Int("users", len(job.users)).Msg("Digest schedule started")
	if runNow {
		_ = job.Run(ctx)
	}

	select {
	case err := <-serverErrors:
		return fmt.Errorf("http server error: %w", err)
	case <-ctx.Done():
		log.Info().Msg("Schedule shutdown initiated")
	}

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
	}
	return nil
}
