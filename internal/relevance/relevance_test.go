package relevance

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teamdigest/internal/core"
)

var origin = time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)

func at(day int, hour int) time.Time {
	return origin.Add(time.Duration(day)*24*time.Hour + time.Duration(hour)*time.Hour)
}

var alice = core.User{ID: "U0", Name: "Alice", Role: core.RoleME}

func TestEngagementWeight(t *testing.T) {
	tests := []struct {
		name string
		msg  core.Message
		want float64
	}{
		{"authored", core.Message{AuthorID: "U0", ThreadRootID: "T", Replies: []core.Message{{AuthorID: "U0"}}}, WeightAuthored},
		{"replied in thread", core.Message{AuthorID: "U1", ThreadRootID: "T", Replies: []core.Message{{AuthorID: "U0"}}}, WeightReplied},
		{"authored reacted and mentioned", core.Message{AuthorID: "U0", ReactingUsers: map[string][]string{"fire": {"U0"}}, Text: "@U0 and Alice"}, WeightAuthored},
		{"replied outside thread", core.Message{AuthorID: "U1", Replies: []core.Message{{AuthorID: "U0"}}}, 0},
		{"reacted", core.Message{AuthorID: "U1", ReactingUsers: map[string][]string{"fire": {"U3", "U0"}}, Text: "@U0"}, WeightReacted},
		{"mention token", core.Message{AuthorID: "U1", Text: "ping @U0 please"}, WeightMention},
		{"name case-insensitive", core.Message{AuthorID: "U1", Text: "ask ALICE about it"}, WeightMention},
		{"unrelated", core.Message{AuthorID: "U1", Text: "nothing here"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EngagementWeight(alice, tt.msg))
		})
	}
}

func TestUserInterestVector_NoSignal(t *testing.T) {
	msgs := []core.Message{
		{ID: "m0", AuthorID: "U1", Timestamp: at(0, 0)},
		{ID: "m1", AuthorID: "U2", Timestamp: at(1, 0)},
	}
	embs := core.Embeddings{{1, 0}, {0, 1}}

	v := UserInterestVector(alice, msgs, embs, 14)
	assert.Equal(t, []float64{0, 0}, v)

	assert.Empty(t, UserInterestVector(alice, nil, nil, 14))
}

func TestUserInterestVector_SingleMessage(t *testing.T) {
	msgs := []core.Message{
		{ID: "m0", AuthorID: "U1", Timestamp: at(0, 0)},
		{ID: "m1", AuthorID: "U0", Timestamp: at(2, 0)},
	}
	embs := core.Embeddings{{1, 0}, {0, 1}}

	// A single engaged message yields its own embedding whatever the weight
	assert.InDeltaSlice(t, []float64{0, 1}, UserInterestVector(alice, msgs, embs, 14), 1e-12)
}

func TestUserInterestVector_ExcludesAfterCutoff(t *testing.T) {
	msgs := []core.Message{
		{ID: "m0", AuthorID: "U0", Timestamp: at(0, 0)},
		{ID: "m1", AuthorID: "U0", Timestamp: at(3, 1)},
	}
	embs := core.Embeddings{{1, 0}, {0, 1}}

	// lookback 3 puts the cutoff at day 3 hour 0, so m1 is ignored
	assert.InDeltaSlice(t, []float64{1, 0}, UserInterestVector(alice, msgs, embs, 3), 1e-12)
}

func TestUserInterestVector_Freshness(t *testing.T) {
	msgs := []core.Message{
		{ID: "m0", AuthorID: "U0", Timestamp: at(0, 0)},              // 10 days old
		{ID: "m1", AuthorID: "U1", Timestamp: at(5, 0), Text: "@U0"}, // 5 days old
	}
	embs := core.Embeddings{{1, 0}, {0, 1}}

	w0 := 3.0 * math.Max(0.1, 1-(10.0/10)*0.9)
	w1 := 1.0 * math.Max(0.1, 1-(5.0/10)*0.9)
	want := []float64{w0 / (w0 + w1), w1 / (w0 + w1)}

	assert.InDeltaSlice(t, want, UserInterestVector(alice, msgs, embs, 10), 1e-12)
}

func TestInterestModel_FixedOrigin(t *testing.T) {
	msgs := []core.Message{
		{ID: "m0", AuthorID: "U0", Timestamp: at(2, 0)},
		{ID: "m1", AuthorID: "U0", Timestamp: at(4, 0)},
	}
	embs := core.Embeddings{{1, 0}, {0, 1}}

	im := NewInterestModel(core.FixedTimeline(origin), 3)
	assert.Equal(t, at(3, 0), im.Cutoff())
	assert.InDeltaSlice(t, []float64{1, 0}, im.Vector(alice, msgs, embs), 1e-12)
}

func TestRoleTopicWeight(t *testing.T) {
	decision := core.Message{IsDecision: true}
	risk := core.Message{IsRisk: true}
	blocker := core.Message{IsBlocker: true}
	plain := core.Message{}

	tests := []struct {
		name  string
		msg   core.Message
		role  core.Role
		phase core.Phase
		want  float64
	}{
		{"ME decision in design", decision, core.RoleME, core.PhaseDetailedDesign, 3.0},
		{"EE blocker in proto", blocker, core.RoleEE, core.PhaseProtoBuild, 3.0},
		{"ME decision in concept", decision, core.RoleME, core.PhaseConcept, 1.0},
		{"EE risk in dvt", risk, core.RoleEE, core.PhaseDVT, 3.0},
		{"ME risk in design", risk, core.RoleME, core.PhaseDetailedDesign, 1.0},
		{"SCM blocker", blocker, core.RoleSCM, core.PhaseConcept, 3.0},
		{"SCM decision", decision, core.RoleSCM, core.PhaseConcept, 1.0},
		{"EM decision", decision, core.RoleEM, core.PhaseRamp, 3.0},
		{"PM risk", risk, core.RolePM, "", 3.0},
		{"plain", plain, core.RolePM, core.PhaseDVT, 1.0},
		{"reactions", core.Message{Reactions: []string{"a", "b", "c"}}, core.RoleSCM, core.PhaseDVT, 1.6},
		{"ME risk and decision in pvt", core.Message{IsRisk: true, IsDecision: true, Reactions: []string{"x"}}, core.RoleME, core.PhasePVT, 3.2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, RoleTopicWeight(tt.msg, tt.role, tt.phase), 1e-12)
		})
	}
}

func TestTopClusters(t *testing.T) {
	msgs := []core.Message{
		{ID: "m0", AuthorID: "U0", Timestamp: at(0, 0)},
		{ID: "m1", AuthorID: "U1", Timestamp: at(0, 1)},
		{ID: "m2", AuthorID: "U1", Timestamp: at(0, 2)},
		{ID: "m3", AuthorID: "U1", Timestamp: at(0, 3)},
		{ID: "m4", AuthorID: "U1", Timestamp: at(0, 4)},
		{ID: "m5", AuthorID: "U1", Timestamp: at(0, 5)},
	}
	embs := core.Embeddings{
		{1, 0, 0}, {1, 0, 0},
		{0.6, 0.8, 0},
		{0, 1, 0},
		{0, 0, 1},
		{0, 0, 1},
	}
	clusters := core.ClusterMap{0: {4, 5}, 1: {0, 1}, 2: {3}, 3: {2}, 4: {}}

	top := TopClusters(alice, clusters, msgs, embs)
	require.Len(t, top, 4)
	// 1 (sim 1), 3 (0.6), then the zero-similarity clusters by ascending id
	assert.Equal(t, []int{1, 3, 0, 2}, top)

	assert.Len(t, TopClusters(alice, core.ClusterMap{0: {0}, 1: {1}}, msgs[:2], embs[:2]), 2)
}

func TestTopClusters_NoSignalKeepsIDOrder(t *testing.T) {
	msgs := []core.Message{
		{ID: "m0", AuthorID: "U1", Timestamp: at(0, 0)},
		{ID: "m1", AuthorID: "U1", Timestamp: at(0, 1)},
	}
	embs := core.Embeddings{{1, 0}, {0, 1}}

	top := TopClusters(alice, core.ClusterMap{7: {0}, 2: {1}}, msgs, embs)
	assert.Equal(t, []int{2, 7}, top)
}

func TestScoreCandidates(t *testing.T) {
	projects := []core.Project{{
		ID:   "P1",
		Name: "Robot Arm",
		Phases: []core.ProjectPhase{
			{Name: core.PhaseConcept, StartDay: 0, EndDay: 4},
			{Name: core.PhaseDetailedDesign, StartDay: 5, EndDay: 14},
		},
	}}
	msgs := []core.Message{
		{ID: "m0", ProjectID: "P1", Timestamp: at(5, 0)},
		{ID: "m1", ProjectID: "P1", Timestamp: at(5, 1), IsDecision: true},
		{ID: "m2", ProjectID: "P1", Timestamp: at(5, 2)},
		{ID: "m3", ProjectID: "PX", Timestamp: at(5, 3), IsDecision: true},
		{ID: "m4", ProjectID: "P1", Timestamp: at(5, 4), IsBlocker: true},
	}
	clusters := core.ClusterMap{0: {0, 2}, 1: {1}, 2: {3, 4}}

	r := NewRanker(core.FixedTimeline(origin), projects, 14, 4)
	scored := r.ScoreCandidates(alice, 5, []int{0, 1, 2, 3, 4}, msgs, clusters, []int{0, 2, 0})

	require.Len(t, scored, 5)
	var order []string
	for _, s := range scored {
		order = append(order, s.Message.ID)
	}
	// m4: 1+2+1, m1: 1+2, m0/m2/m3: 1+1 in candidate order
	assert.Equal(t, []string{"m4", "m1", "m0", "m2", "m3"}, order)

	assert.Equal(t, 4.0, scored[0].Value)
	assert.Equal(t, 3.0, scored[0].Factors[FactorRoleWeight])
	assert.Equal(t, 1.0, scored[0].Factors[FactorClusterBonus], "bonus does not stack")
	assert.Equal(t, core.PhaseDetailedDesign, scored[0].Phase)
	assert.Equal(t, core.Phase(""), scored[4].Phase)
	assert.Contains(t, scored[1].Reasoning(), "detailed_design")
}
