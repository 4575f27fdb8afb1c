package clustering

import (
	"sort"

	"github.com/rs/zerolog"

	"teamdigest/internal/core"
)

const (
	// DefaultWindowDays is the width of the topic discovery window
	DefaultWindowDays = 14
	// DefaultWindowClusters is the target cluster count for a window
	DefaultWindowClusters = 12
	// DefaultDayClusters is the target cluster count for a single day
	DefaultDayClusters = 6
	// DefaultMaxPerCluster is how many representatives each cluster contributes
	DefaultMaxPerCluster = 3
	// MinWindowMessages is the minimum support below which a window yields no topics
	MinWindowMessages = 50
)

// Config tunes the clustering engine
type Config struct {
	KMeans            KMeansConfig
	MinWindowMessages int

	// MaxPerCluster caps the representatives ClusterForDay keeps per cluster
	MaxPerCluster int
}

// DefaultConfig returns the engine defaults
func DefaultConfig() Config {
	return Config{
		KMeans:            DefaultKMeansConfig(),
		MinWindowMessages: MinWindowMessages,
		MaxPerCluster:     DefaultMaxPerCluster,
	}
}

// Engine groups messages into topic clusters. It holds no mutable state and
// is safe for concurrent use.
type Engine struct {
	kmeans        *KMeans
	minWindow     int
	maxPerCluster int
	log           zerolog.Logger
}

// NewEngine creates a clustering engine
func NewEngine(config Config, log zerolog.Logger) *Engine {
	if config.MinWindowMessages <= 0 {
		config.MinWindowMessages = MinWindowMessages
	}
	if config.MaxPerCluster <= 0 {
		config.MaxPerCluster = DefaultMaxPerCluster
	}
	return &Engine{
		kmeans:        NewKMeans(config.KMeans),
		minWindow:     config.MinWindowMessages,
		maxPerCluster: config.MaxPerCluster,
		log:           log.With().Str("component", "clustering").Logger(),
	}
}

// MinWindowMessages is the effective minimum support of a window
func (e *Engine) MinWindowMessages() int {
	return e.minWindow
}

// ClusterMessages partitions messages into at most k clusters using their
// embeddings. With k or fewer messages every message gets its own cluster.
func (e *Engine) ClusterMessages(messages []core.Message, embeddings core.Embeddings, k int) core.ClusterMap {
	n := len(messages)
	if k < 1 {
		k = 1
	}
	if n <= k {
		clusters := make(core.ClusterMap, n)
		for i := 0; i < n; i++ {
			clusters[i] = []int{i}
		}
		return clusters
	}

	res, err := e.kmeans.Fit(embeddings, k)
	if err != nil {
		// Unreachable for n > k >= 1; keep the partition invariant regardless
		e.log.Error().Err(err).Int("messages", n).Int("k", k).Msg("K-means failed, using single cluster")
		all := make([]int, n)
		for i := range all {
			all[i] = i
		}
		return core.ClusterMap{0: all}
	}

	clusters := make(core.ClusterMap, len(res.Centroids))
	for idx, label := range res.Labels {
		clusters[label] = append(clusters[label], idx)
	}

	e.log.Debug().
		Int("messages", n).
		Int("k", k).
		Int("clusters", len(clusters)).
		Float64("inertia", res.Inertia).
		Msg("Clustered messages")

	return clusters
}

// ClusterRelevantPeriod discovers stable topics over the window
// [startDay, startDay+days). Sparse windows yield an empty map, which callers
// treat as "no topics found". Returned indices refer to the full message slice.
func (e *Engine) ClusterRelevantPeriod(
	messages []core.Message,
	embeddings core.Embeddings,
	timeline core.Timeline,
	startDay, days, nClusters int,
) core.ClusterMap {
	var window []int
	for i, m := range messages {
		d := timeline.Day(m.Timestamp)
		if startDay <= d && d < startDay+days {
			window = append(window, i)
		}
	}

	if len(window) < e.minWindow {
		e.log.Info().
			Int("start_day", startDay).
			Int("days", days).
			Int("messages", len(window)).
			Int("min_messages", e.minWindow).
			Msg("Window too sparse for topic discovery")
		return core.ClusterMap{}
	}

	local := e.ClusterMessages(subset(messages, window), embeddings.Rows(window), nClusters)
	return local.Remap(window)
}

// DayFilter returns the indices of messages whose day offset equals day
func DayFilter(messages []core.Message, timeline core.Timeline, day int) []int {
	var idxs []int
	for i, m := range messages {
		if timeline.Day(m.Timestamp) == day {
			idxs = append(idxs, i)
		}
	}
	return idxs
}

// ClusterForDay clusters one day's messages and returns the global indices of
// their representatives
func (e *Engine) ClusterForDay(
	day int,
	messages []core.Message,
	embeddings core.Embeddings,
	timeline core.Timeline,
	nClusters int,
) []int {
	idxs := DayFilter(messages, timeline, day)
	if len(idxs) == 0 {
		return []int{}
	}

	dayMsgs := subset(messages, idxs)
	clusters := e.ClusterMessages(dayMsgs, embeddings.Rows(idxs), nClusters)
	repLocal := SelectRepresentatives(dayMsgs, clusters, e.maxPerCluster)

	reps := make([]int, len(repLocal))
	for i, local := range repLocal {
		reps[i] = idxs[local]
	}
	return reps
}

// Salience scores a message for representative selection
func Salience(m core.Message) int {
	score := 0
	if m.IsDecision {
		score += 3
	}
	if m.IsRisk {
		score += 2
	}
	if m.IsBlocker {
		score += 2
	}
	return score + len(m.Reactions)
}

// SelectRepresentatives keeps the maxPerCluster most salient members of each
// cluster, ties in original order, concatenated by ascending cluster id.
// Indices are local to messages.
func SelectRepresentatives(messages []core.Message, clusters core.ClusterMap, maxPerCluster int) []int {
	if maxPerCluster < 0 {
		maxPerCluster = 0
	}
	scores := make([]int, len(messages))
	for i, m := range messages {
		scores[i] = Salience(m)
	}

	selected := []int{}
	for _, id := range clusters.IDs() {
		members := append([]int(nil), clusters[id]...)
		sort.SliceStable(members, func(a, b int) bool {
			return scores[members[a]] > scores[members[b]]
		})
		if len(members) > maxPerCluster {
			members = members[:maxPerCluster]
		}
		selected = append(selected, members...)
	}
	return selected
}

func subset(messages []core.Message, idxs []int) []core.Message {
	out := make([]core.Message, len(idxs))
	for i, idx := range idxs {
		out[i] = messages[idx]
	}
	return out
}
