package digest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teamdigest/internal/core"
	"teamdigest/internal/embeddings"
	"teamdigest/internal/fakedata"
	"teamdigest/internal/narrative"
)

type recordingNarrator struct {
	mu       sync.Mutex
	requests []narrative.Request
}

func (r *recordingNarrator) Generate(ctx context.Context, req narrative.Request) narrative.Result {
	r.mu.Lock()
	r.requests = append(r.requests, req)
	r.mu.Unlock()
	return narrative.Result{Text: "narrative for " + req.User.Name, Source: narrative.SourceLLM}
}

var base = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

// dayFiveWorkspace has an anchor message on day 0 and 60 P1 messages on
// day 5, every sixth of which is a decision.
func dayFiveWorkspace() Workspace {
	users := []core.User{{ID: "U0", Name: "Alice", Role: core.RoleEM}}
	projects := []core.Project{{
		ID:     "P1",
		Name:   "Robot Arm",
		Phases: []core.ProjectPhase{{Name: core.PhaseDetailedDesign, StartDay: 0, EndDay: 29}},
	}}

	msgs := []core.Message{{ID: "anchor", Timestamp: base, AuthorID: "U9", ProjectID: "P1", Text: "kickoff"}}
	for i := 0; i < 60; i++ {
		msgs = append(msgs, core.Message{
			ID:         fmt.Sprintf("m%02d", i),
			Timestamp:  base.Add(5*24*time.Hour + time.Duration(i)*time.Minute),
			AuthorID:   "U9",
			ProjectID:  "P1",
			Text:       fmt.Sprintf("update %d", i),
			IsDecision: i%6 == 0,
		})
	}

	embs := make(core.Embeddings, len(msgs))
	for i := range embs {
		embs[i] = []float64{1, 0}
	}

	return Workspace{
		Users:      users,
		Projects:   projects,
		Messages:   msgs,
		Embeddings: embs,
		Focus: []core.UserFocus{
			{UserID: "U0", Day: 5, ProjectIDs: []string{"P1"}},
			{UserID: "U0", Day: 6, ProjectIDs: []string{"P1"}},
		},
	}
}

func TestBuildForUser_DecisionsRankFirst(t *testing.T) {
	ws := dayFiveWorkspace()
	narrator := &recordingNarrator{}
	a, err := NewAssembler(ws, narrator, Config{}, zerolog.Nop())
	require.NoError(t, err)

	d, err := a.BuildForUser(context.Background(), Request{User: ws.Users[0], Day: 5})
	require.NoError(t, err)

	assert.Equal(t, "narrative for Alice", d.Text)
	assert.Equal(t, "llm", d.Source)
	assert.NotEmpty(t, d.ID)
	assert.Equal(t, "U0", d.UserID)
	require.Len(t, d.MessageIDs, DefaultMaxItems)

	// Ten decisions first, in time order, then plain updates in time order
	for i := 0; i < 10; i++ {
		assert.Equal(t, fmt.Sprintf("m%02d", i*6), d.MessageIDs[i])
	}
	assert.Equal(t, []string{"m01", "m02", "m03", "m04", "m05"}, d.MessageIDs[10:])

	require.Len(t, narrator.requests, 1)
	req := narrator.requests[0]
	assert.Equal(t, []string{"Robot Arm"}, req.FocusProjects)
	assert.Equal(t, "Robot Arm", req.Items[0].ProjectName)
	assert.Equal(t, core.PhaseDetailedDesign, req.Items[0].Phase)
}

func TestBuildForUser_ClusterBonus(t *testing.T) {
	ws := dayFiveWorkspace()
	a, err := NewAssembler(ws, &recordingNarrator{}, Config{MaxItems: 3}, zerolog.Nop())
	require.NoError(t, err)

	// m59 (index 60) is a plain update lifted by its cluster
	clusters := core.ClusterMap{0: {60}}
	scored, ok := a.Rank(Request{User: ws.Users[0], Day: 5, Clusters: clusters})
	require.True(t, ok)
	require.Len(t, scored, 3)
	assert.Equal(t, "m00", scored[0].Message.ID)
	assert.Equal(t, "m06", scored[1].Message.ID)
	assert.Equal(t, "m12", scored[2].Message.ID)

	scored, _ = a.Rank(Request{User: ws.Users[0], Day: 5, Clusters: core.ClusterMap{0: {1}}})
	assert.Equal(t, "m00", scored[0].Message.ID)
	assert.InDelta(t, 4.0, scored[0].Value, 1e-9)
}

func TestBuildForUser_NoFocus(t *testing.T) {
	ws := dayFiveWorkspace()
	narrator := &recordingNarrator{}
	a, err := NewAssembler(ws, narrator, Config{}, zerolog.Nop())
	require.NoError(t, err)

	d, err := a.BuildForUser(context.Background(), Request{User: ws.Users[0], Day: 3})
	require.NoError(t, err)
	assert.Equal(t, "No digest for Alice on day 3.", d.Text)
	assert.Equal(t, "placeholder", d.Source)
	assert.Empty(t, d.MessageIDs)
	assert.Empty(t, narrator.requests)
}

func TestBuildForUser_NoCandidates(t *testing.T) {
	ws := dayFiveWorkspace()
	gen := narrative.NewGenerator(nil, narrative.DefaultConfig(), zerolog.Nop())
	a, err := NewAssembler(ws, gen, Config{}, zerolog.Nop())
	require.NoError(t, err)

	d, err := a.BuildForUser(context.Background(), Request{User: ws.Users[0], Day: 6})
	require.NoError(t, err)
	assert.Equal(t,
		"**Daily digest for Alice (EM) – Day 6**\n\nNo high-priority updates for your focus projects today.",
		d.Text)
	assert.Equal(t, "placeholder", d.Source)
}

func TestBuildForUser_FallbackWithoutLLM(t *testing.T) {
	ws := dayFiveWorkspace()
	gen := narrative.NewGenerator(nil, narrative.DefaultConfig(), zerolog.Nop())
	a, err := NewAssembler(ws, gen, Config{MaxItems: 2}, zerolog.Nop())
	require.NoError(t, err)

	d, err := a.BuildForUser(context.Background(), Request{User: ws.Users[0], Day: 5})
	require.NoError(t, err)
	assert.Equal(t, "fallback", d.Source)
	assert.Equal(t, narrative.ReasonDisabled, d.FallbackReason)
	assert.Contains(t, d.Text, "### Robot Arm – Detailed Design")
	assert.Contains(t, d.Text, "[DECISION] update 0")
}

func TestBuildForUser_ContextCancelled(t *testing.T) {
	ws := dayFiveWorkspace()
	a, err := NewAssembler(ws, &recordingNarrator{}, Config{}, zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = a.BuildForUser(ctx, Request{User: ws.Users[0], Day: 5})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewAssembler_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Workspace)
		want   error
	}{
		{"bad role", func(ws *Workspace) { ws.Users[0].Role = "CEO" }, core.ErrInvalidRole},
		{"bad phase", func(ws *Workspace) { ws.Projects[0].Phases[0].Name = "beta" }, core.ErrInvalidPhase},
		{"missing embedding", func(ws *Workspace) { ws.Embeddings = ws.Embeddings[1:] }, core.ErrEmbeddingCount},
		{"ragged embedding", func(ws *Workspace) { ws.Embeddings[3] = []float64{1} }, core.ErrDimensionMismatch},
		{"unsorted", func(ws *Workspace) { ws.Messages[0], ws.Messages[1] = ws.Messages[1], ws.Messages[0] }, core.ErrUnsortedMessages},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ws := dayFiveWorkspace()
			tt.mutate(&ws)
			_, err := NewAssembler(ws, &recordingNarrator{}, Config{}, zerolog.Nop())
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestBuildForUsers_MatchesSequential(t *testing.T) {
	data := fakedata.Generate(fakedata.Config{Seed: 42, Days: 12, MessagesPerDay: 25})
	embs, err := embeddings.EmbedMessages(context.Background(), embeddings.NewHashService(32), data.Messages)
	require.NoError(t, err)

	ws := Workspace{
		Users:      data.Users,
		Projects:   data.Projects,
		Messages:   data.Messages,
		Embeddings: embs,
		Focus:      data.Focus,
	}
	gen := narrative.NewGenerator(nil, narrative.DefaultConfig(), zerolog.Nop())
	a, err := NewAssembler(ws, gen, Config{MaxItems: 8, Workers: 3}, zerolog.Nop())
	require.NoError(t, err)

	clusters := core.ClusterMap{0: {0, 1, 2}, 1: {3, 4}}
	concurrent, err := a.BuildForUsers(context.Background(), data.Users, 11, clusters)
	require.NoError(t, err)
	require.Len(t, concurrent, len(data.Users))

	for i, u := range data.Users {
		seq, err := a.BuildForUser(context.Background(), Request{User: u, Day: 11, Clusters: clusters})
		require.NoError(t, err)
		assert.Equal(t, u.ID, concurrent[i].UserID)
		assert.Equal(t, seq.Text, concurrent[i].Text)
		assert.Equal(t, seq.MessageIDs, concurrent[i].MessageIDs)
		assert.True(t, strings.HasPrefix(seq.Text, "**Daily digest for "+u.Name))
	}
}
