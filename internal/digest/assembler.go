// Package digest assembles per-user daily digests from ranked chat messages.
package digest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"teamdigest/internal/core"
	"teamdigest/internal/metrics"
	"teamdigest/internal/narrative"
	"teamdigest/internal/relevance"
)

const (
	// DefaultMaxItems bounds the ranked list handed to the narrative generator
	DefaultMaxItems = 15
	// DefaultWorkers bounds concurrent BuildForUsers work
	DefaultWorkers = 4
)

// Narrator renders ranked items into digest text
type Narrator interface {
	Generate(ctx context.Context, req narrative.Request) narrative.Result
}

// Workspace is the immutable input of a digest run
type Workspace struct {
	Users      []core.User
	Projects   []core.Project
	Messages   []core.Message // timestamp order
	Embeddings core.Embeddings
	Focus      []core.UserFocus

	// Timeline anchors day offsets. The zero value anchors on the first message.
	Timeline core.Timeline
}

// Config tunes assembly
type Config struct {
	MaxItems     int
	LookbackDays int
	TopClusters  int
	Workers      int
}

// DefaultConfig returns the assembly defaults
func DefaultConfig() Config {
	return Config{
		MaxItems:     DefaultMaxItems,
		LookbackDays: relevance.DefaultLookbackDays,
		TopClusters:  relevance.DefaultTopClusters,
		Workers:      DefaultWorkers,
	}
}

// Request selects one digest
type Request struct {
	User core.User
	Day  int

	// Clusters is the topic map used for the cluster bonus; it may be empty
	Clusters core.ClusterMap
}

// Assembler builds digests over one workspace. It is safe for concurrent use.
type Assembler struct {
	ws       Workspace
	focus    core.FocusIndex
	projects map[string]core.Project
	ranker   *relevance.Ranker
	narrator Narrator
	config   Config
	log      zerolog.Logger
}

// NewAssembler validates the workspace and returns an assembler for it.
// Invalid roles, phases, embeddings or message order fail here, before any
// ranking work.
func NewAssembler(ws Workspace, narrator Narrator, config Config, log zerolog.Logger) (*Assembler, error) {
	if err := core.ValidateDataset(ws.Users, ws.Projects, ws.Messages, ws.Embeddings); err != nil {
		return nil, fmt.Errorf("invalid workspace: %w", err)
	}
	if narrator == nil {
		return nil, fmt.Errorf("narrator is required")
	}

	def := DefaultConfig()
	if config.MaxItems <= 0 {
		config.MaxItems = def.MaxItems
	}
	if config.LookbackDays <= 0 {
		config.LookbackDays = def.LookbackDays
	}
	if config.TopClusters <= 0 {
		config.TopClusters = def.TopClusters
	}
	if config.Workers <= 0 {
		config.Workers = def.Workers
	}

	if ws.Timeline.Origin.IsZero() {
		ws.Timeline = core.NewTimeline(ws.Messages)
	}

	projects := make(map[string]core.Project, len(ws.Projects))
	for _, p := range ws.Projects {
		projects[p.ID] = p
	}

	return &Assembler{
		ws:       ws,
		focus:    core.BuildFocusIndex(ws.Focus),
		projects: projects,
		ranker:   relevance.NewRanker(ws.Timeline, ws.Projects, config.LookbackDays, config.TopClusters),
		narrator: narrator,
		config:   config,
		log:      log.With().Str("component", "digest").Logger(),
	}, nil
}

// Timeline returns the day convention used by the assembler
func (a *Assembler) Timeline() core.Timeline {
	return a.ws.Timeline
}

// Candidates returns the indices of messages posted on day in the focus projects
func (a *Assembler) Candidates(day int, focus core.UserFocus) []int {
	var idxs []int
	for i, m := range a.ws.Messages {
		if a.ws.Timeline.Day(m.Timestamp) == day && focus.Includes(m.ProjectID) {
			idxs = append(idxs, i)
		}
	}
	return idxs
}

// Rank returns the scored candidates for req, truncated to the configured
// maximum. The bool is false when the user has no focus record for the day.
func (a *Assembler) Rank(req Request) ([]relevance.ScoredMessage, bool) {
	focus, ok := a.focus.Lookup(req.User.ID, req.Day)
	if !ok {
		return nil, false
	}

	candidates := a.Candidates(req.Day, focus)
	if len(candidates) == 0 {
		return []relevance.ScoredMessage{}, true
	}

	top := a.ranker.TopClusters(req.User, req.Clusters, a.ws.Messages, a.ws.Embeddings)
	scored := a.ranker.ScoreCandidates(req.User, req.Day, candidates, a.ws.Messages, req.Clusters, top)
	if len(scored) > a.config.MaxItems {
		scored = scored[:a.config.MaxItems]
	}
	return scored, true
}

// BuildForUser assembles one digest. Narrative failures never surface here;
// the only error is a cancelled context.
func (a *Assembler) BuildForUser(ctx context.Context, req Request) (core.Digest, error) {
	if err := ctx.Err(); err != nil {
		return core.Digest{}, err
	}
	start := time.Now()
	defer func() { metrics.DigestDuration.Observe(time.Since(start).Seconds()) }()

	d := core.Digest{
		ID:     uuid.NewString(),
		UserID: req.User.ID,
		Day:    req.Day,
	}

	scored, ok := a.Rank(req)
	if !ok {
		d.Text = narrative.NoDigestText(req.User, req.Day)
		d.Source = string(narrative.SourcePlaceholder)
		d.MessageIDs = []string{}
		d.GeneratedAt = time.Now().UTC()
		metrics.DigestsBuilt.WithLabelValues(d.Source).Inc()
		a.log.Debug().Str("user_id", req.User.ID).Int("day", req.Day).Msg("No focus record")
		return d, nil
	}

	focus, _ := a.focus.Lookup(req.User.ID, req.Day)
	items := make([]narrative.Item, len(scored))
	d.MessageIDs = make([]string, len(scored))
	for i, s := range scored {
		items[i] = narrative.Item{
			ProjectID:   s.Message.ProjectID,
			ProjectName: a.projectName(s.Message.ProjectID),
			Phase:       s.Phase,
			Message:     s.Message,
		}
		d.MessageIDs[i] = s.Message.ID
	}

	res := a.narrator.Generate(ctx, narrative.Request{
		User:          req.User,
		Day:           req.Day,
		FocusProjects: a.projectNames(focus.ProjectIDs),
		Items:         items,
	})

	d.Text = res.Text
	d.Source = string(res.Source)
	d.FallbackReason = res.Reason
	d.GeneratedAt = time.Now().UTC()
	metrics.DigestsBuilt.WithLabelValues(d.Source).Inc()

	a.log.Info().
		Str("user_id", req.User.ID).
		Int("day", req.Day).
		Int("candidates", len(scored)).
		Str("source", d.Source).
		Dur("elapsed", time.Since(start)).
		Msg("Built digest")

	return d, nil
}

// BuildForUsers assembles a digest per user for day with a bounded number of
// workers. Digests are returned in user order and equal sequential builds.
func (a *Assembler) BuildForUsers(ctx context.Context, users []core.User, day int, clusters core.ClusterMap) ([]core.Digest, error) {
	out := make([]core.Digest, len(users))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.config.Workers)
	for i, u := range users {
		i, u := i, u
		g.Go(func() error {
			d, err := a.BuildForUser(ctx, Request{User: u, Day: day, Clusters: clusters})
			if err != nil {
				return fmt.Errorf("digest for %s: %w", u.ID, err)
			}
			out[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *Assembler) projectName(id string) string {
	if p, ok := a.projects[id]; ok && p.Name != "" {
		return p.Name
	}
	return id
}

func (a *Assembler) projectNames(ids []string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = a.projectName(id)
	}
	return out
}
