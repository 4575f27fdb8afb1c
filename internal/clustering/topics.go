package clustering

import (
	"sort"
	"strings"

	"teamdigest/internal/core"
)

// Topic describes one cluster for reporting
type Topic struct {
	ID         int
	Size       int
	Keywords   []string
	Silhouette float64
	Members    []int // indices into the clustered message slice
}

// stopWords are dropped from topic keywords
var stopWords = map[string]bool{
	"with": true, "from": true, "that": true, "this": true, "into": true,
	"next": true, "ready": true, "review": true, "latest": true, "found": true,
	"awaiting": true, "update": true, "updated": true,
}

// DescribeTopics builds a Topic per cluster in ascending id order
func DescribeTopics(messages []core.Message, embeddings core.Embeddings, clusters core.ClusterMap, keywords int) []Topic {
	analysis := AnalyzeClusters(embeddings, clusters)

	topics := make([]Topic, 0, len(clusters))
	for _, id := range clusters.IDs() {
		members := clusters[id]
		topics = append(topics, Topic{
			ID:         id,
			Size:       len(members),
			Keywords:   Keywords(messages, members, keywords),
			Silhouette: analysis.ClusterScores[id],
			Members:    members,
		})
	}
	return topics
}

// Keywords extracts the n most frequent words across the member messages.
// Equal counts are ordered alphabetically so output is stable.
func Keywords(messages []core.Message, members []int, n int) []string {
	wordCounts := make(map[string]int)
	for _, idx := range members {
		for _, word := range extractWords(messages[idx].Text) {
			word = strings.ToLower(word)
			if len(word) > 3 && !stopWords[word] {
				wordCounts[word]++
			}
		}
	}

	type wordFreq struct {
		word  string
		count int
	}
	sorted := make([]wordFreq, 0, len(wordCounts))
	for word, count := range wordCounts {
		sorted = append(sorted, wordFreq{word, count})
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].count != sorted[j].count {
			return sorted[i].count > sorted[j].count
		}
		return sorted[i].word < sorted[j].word
	})

	var keywords []string
	for i, wf := range sorted {
		if i >= n {
			break
		}
		keywords = append(keywords, wf.word)
	}
	return keywords
}

// extractWords splits text into runs of ASCII letters
func extractWords(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'))
	})
}
