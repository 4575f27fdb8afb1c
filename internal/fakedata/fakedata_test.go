package fakedata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teamdigest/internal/core"
)

func TestUsers(t *testing.T) {
	users := Users()
	require.Len(t, users, 10)
	assert.Equal(t, core.User{ID: "U0", Name: "Alice", Role: core.RoleME}, users[0])
	assert.Equal(t, core.User{ID: "U7", Name: "Heidi", Role: core.RoleSCM}, users[7])
	assert.Equal(t, core.RolePM, users[9].Role)
}

func TestProjectsPhases(t *testing.T) {
	projects := Projects()
	require.Len(t, projects, 2)

	p1, p2 := projects[0], projects[1]
	assert.Equal(t, core.PhaseConcept, p1.PhaseOn(4))
	assert.Equal(t, core.PhaseProtoBuild, p1.PhaseOn(18))
	assert.Equal(t, core.PhaseDVT, p1.PhaseOn(40))
	assert.Equal(t, core.PhaseDetailedDesign, p2.PhaseOn(18))
	// Before its first phase P2 falls back to the last phase
	assert.Equal(t, core.PhaseProtoBuild, p2.PhaseOn(3))
}

func TestFocus(t *testing.T) {
	focus := Focus(Users(), 30)
	require.Len(t, focus, 300)

	idx := core.BuildFocusIndex(focus)
	f, ok := idx.Lookup("U3", 9)
	require.True(t, ok)
	assert.Equal(t, []string{"P1"}, f.ProjectIDs)
	f, _ = idx.Lookup("U3", 10)
	assert.Equal(t, []string{"P1", "P2"}, f.ProjectIDs)
	f, _ = idx.Lookup("U3", 29)
	assert.Equal(t, []string{"P2"}, f.ProjectIDs)
	_, ok = idx.Lookup("U3", 30)
	assert.False(t, ok)
}

func TestGenerate_ValidAndDeterministic(t *testing.T) {
	cfg := DefaultConfig()
	a := Generate(cfg)
	b := Generate(cfg)

	require.Len(t, a.Messages, 30*80)
	assert.Equal(t, a.Messages, b.Messages)
	embs := make(core.Embeddings, len(a.Messages))
	for i := range embs {
		embs[i] = []float64{1}
	}
	require.NoError(t, core.ValidateDataset(a.Users, a.Projects, a.Messages, embs))

	tl := core.NewTimeline(a.Messages)
	perDay := make(map[int]int)
	for _, m := range a.Messages {
		perDay[tl.Day(m.Timestamp)]++
	}
	assert.Len(t, perDay, 30)
}

func TestGenerate_MessageShape(t *testing.T) {
	ds := Generate(Config{Seed: 7, Days: 5, MessagesPerDay: 40, ThreadRate: 0.5, ReactionRate: 0.5})

	var flagged, threads int
	for _, m := range ds.Messages {
		assert.Regexp(t, `^\[(CONCEPT|DETAILED_DESIGN|PROTO_BUILD|DVT)\] `, m.Text)
		assert.Contains(t, []string{"#proj-p1", "#proj-p2"}, m.Channel)
		assert.LessOrEqual(t, len(m.Mentions), 2)
		assert.NotContains(t, m.Mentions, m.AuthorID)

		if m.IsDecision || m.IsRisk || m.IsBlocker {
			flagged++
			assert.Equal(t, []string{"thumbsup", "fire"}, m.Reactions)
		} else {
			assert.Empty(t, m.Reactions)
		}
		if m.InThread() {
			threads++
			assert.Equal(t, len(m.Replies), m.ReplyCount)
			for _, r := range m.Replies {
				assert.NotEqual(t, m.AuthorID, r.AuthorID)
				assert.True(t, m.RepliedBy(r.AuthorID))
			}
		}
		for _, reactors := range m.ReactingUsers {
			assert.NotContains(t, reactors, m.AuthorID)
		}
	}
	assert.Positive(t, flagged)
	assert.Positive(t, threads)
}

func TestEnrich_DoesNotChangeBaseStream(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Days = 3

	plain := Messages(cfg, Users(), Projects())
	enriched := Generate(cfg).Messages

	require.Len(t, enriched, len(plain))
	for i := range plain {
		assert.Equal(t, plain[i].ID, enriched[i].ID)
		assert.Equal(t, plain[i].Text, enriched[i].Text)
		assert.Equal(t, plain[i].Timestamp, enriched[i].Timestamp)
	}
}
