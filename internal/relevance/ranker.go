package relevance

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"

	"teamdigest/internal/core"
)

const (
	// DefaultTopClusters is how many clusters are considered the user's topics
	DefaultTopClusters = 4
	// ClusterBonus is added once when a candidate sits in any top cluster
	ClusterBonus = 1.0
)

// Factor names reported in ScoredMessage.Factors
const (
	FactorRoleWeight   = "role_weight"
	FactorClusterBonus = "cluster_bonus"
)

// ScoredMessage is a candidate with its relevance score and factor breakdown
type ScoredMessage struct {
	Index   int                `json:"index"` // position in the full message slice
	Message core.Message       `json:"message"`
	Phase   core.Phase         `json:"phase"`
	Value   float64            `json:"value"`
	Factors map[string]float64 `json:"factors"`
}

// Reasoning explains the score in one line
func (s ScoredMessage) Reasoning() string {
	return fmt.Sprintf("role %.1f + cluster %.1f (%s)", s.Factors[FactorRoleWeight], s.Factors[FactorClusterBonus], s.Phase)
}

// Ranker ranks clusters and candidate messages for users
type Ranker struct {
	interest InterestModel
	projects map[string]core.Project
	timeline core.Timeline
	topN     int
}

// NewRanker creates a ranker. Phases are resolved through projects using timeline.
func NewRanker(timeline core.Timeline, projects []core.Project, lookbackDays, topClusters int) *Ranker {
	if topClusters <= 0 {
		topClusters = DefaultTopClusters
	}
	byID := make(map[string]core.Project, len(projects))
	for _, p := range projects {
		byID[p.ID] = p
	}
	return &Ranker{
		interest: NewInterestModel(timeline, lookbackDays),
		projects: byID,
		timeline: timeline,
		topN:     topClusters,
	}
}

// TopClusters ranks clusters against the user's interest vector with day 0 on
// the first message and returns at most four ids
func TopClusters(user core.User, clusters core.ClusterMap, messages []core.Message, embeddings core.Embeddings) []int {
	return NewRanker(core.NewTimeline(messages), nil, DefaultLookbackDays, DefaultTopClusters).
		TopClusters(user, clusters, messages, embeddings)
}

// TopClusters returns the ids of the clusters whose centroid is most similar
// to the user's interest vector. Equal similarities keep ascending id order.
func (r *Ranker) TopClusters(user core.User, clusters core.ClusterMap, messages []core.Message, embeddings core.Embeddings) []int {
	interest := r.interest.Vector(user, messages, embeddings)

	ids := clusters.IDs()
	sims := make(map[int]float64, len(ids))
	for _, id := range ids {
		sims[id] = similarity(centroid(embeddings, clusters[id], len(interest)), interest)
	}

	sort.SliceStable(ids, func(a, b int) bool {
		return sims[ids[a]] > sims[ids[b]]
	})
	if len(ids) > r.topN {
		ids = ids[:r.topN]
	}
	return ids
}

// PhaseFor resolves the project phase of msg on day. Unknown projects have no phase.
func (r *Ranker) PhaseFor(msg core.Message, day int) core.Phase {
	p, ok := r.projects[msg.ProjectID]
	if !ok {
		return ""
	}
	return p.PhaseOn(day)
}

// ScoreCandidates scores the candidate indices for user on day and returns
// them sorted by score descending; equal scores keep candidate order.
func (r *Ranker) ScoreCandidates(
	user core.User,
	day int,
	candidates []int,
	messages []core.Message,
	clusters core.ClusterMap,
	topClusters []int,
) []ScoredMessage {
	scored := make([]ScoredMessage, 0, len(candidates))
	for _, idx := range candidates {
		msg := messages[idx]
		phase := r.PhaseFor(msg, day)

		roleWeight := RoleTopicWeight(msg, user.Role, phase)
		bonus := 0.0
		for _, id := range topClusters {
			if clusters.Contains(id, idx) {
				bonus = ClusterBonus
				break
			}
		}

		scored = append(scored, ScoredMessage{
			Index:   idx,
			Message: msg,
			Phase:   phase,
			Value:   roleWeight + bonus,
			Factors: map[string]float64{
				FactorRoleWeight:   roleWeight,
				FactorClusterBonus: bonus,
			},
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Value > scored[j].Value
	})
	return scored
}

// centroid is the mean embedding of members
func centroid(embeddings core.Embeddings, members []int, dim int) []float64 {
	c := make([]float64, dim)
	if len(members) == 0 {
		return c
	}
	for _, idx := range members {
		floats.Add(c, embeddings[idx])
	}
	floats.Scale(1/float64(len(members)), c)
	return c
}

// similarity is the dot product, defined as 0 when either vector has zero norm
func similarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	if floats.Norm(a, 2) == 0 || floats.Norm(b, 2) == 0 {
		return 0
	}
	return floats.Dot(a, b)
}
