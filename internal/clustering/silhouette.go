package clustering

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"teamdigest/internal/core"
)

// SilhouetteScore calculates the silhouette score for a single data point
// Returns a score between -1 and 1:
//
//	-1: Point likely in wrong cluster
//	 0: Point on the border between clusters
//	+1: Point well matched to its cluster
func SilhouetteScore(pointIdx int, assignments []int, distances [][]float64) float64 {
	n := len(assignments)
	if n == 0 || pointIdx >= n {
		return 0.0
	}

	current := assignments[pointIdx]
	a, sameCount := meanDistanceTo(pointIdx, current, assignments, distances)
	if sameCount == 0 {
		return 0.0 // singleton clusters are defined as 0
	}

	b := math.Inf(1)
	seen := make(map[int]bool)
	for _, label := range assignments {
		if label == current || seen[label] {
			continue
		}
		seen[label] = true
		if d, _ := meanDistanceTo(pointIdx, label, assignments, distances); d < b {
			b = d
		}
	}
	if math.IsInf(b, 1) {
		return 0.0 // only one cluster
	}

	if m := math.Max(a, b); m > 0 {
		return (b - a) / m
	}
	return 0.0
}

// meanDistanceTo is the mean distance from pointIdx to the other members of label
func meanDistanceTo(pointIdx, label int, assignments []int, distances [][]float64) (float64, int) {
	sum := 0.0
	count := 0
	for i, l := range assignments {
		if i == pointIdx || l != label {
			continue
		}
		sum += distances[pointIdx][i]
		count++
	}
	if count == 0 {
		return 0.0, 0
	}
	return sum / float64(count), count
}

// DistanceMatrix computes pairwise Euclidean distances between all points
func DistanceMatrix(points [][]float64) [][]float64 {
	n := len(points)
	matrix := make([][]float64, n)
	for i := range matrix {
		matrix[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := floats.Distance(points[i], points[j], 2)
			matrix[i][j] = d
			matrix[j][i] = d
		}
	}
	return matrix
}

// SilhouetteAnalysis summarizes how well separated a set of clusters is
type SilhouetteAnalysis struct {
	OverallScore  float64         // Average across all points
	ClusterScores map[int]float64 // Per-cluster average scores
	NumClusters   int
	NumPoints     int
	Quality       string // Interpretation: Excellent/Good/Fair/Poor
}

// AnalyzeClusters performs silhouette analysis over the members of clusters.
// Indices in clusters refer to rows of embeddings.
func AnalyzeClusters(embeddings core.Embeddings, clusters core.ClusterMap) *SilhouetteAnalysis {
	var members []int
	var assignments []int
	for _, id := range clusters.IDs() {
		for _, idx := range clusters[id] {
			members = append(members, idx)
			assignments = append(assignments, id)
		}
	}

	analysis := &SilhouetteAnalysis{
		ClusterScores: make(map[int]float64),
		NumClusters:   len(clusters),
		NumPoints:     len(members),
	}
	if len(members) == 0 {
		analysis.Quality = interpretSilhouetteScore(0)
		return analysis
	}

	distances := DistanceMatrix(embeddings.Rows(members))

	total := 0.0
	perCluster := make(map[int][]float64)
	for i, label := range assignments {
		s := SilhouetteScore(i, assignments, distances)
		total += s
		perCluster[label] = append(perCluster[label], s)
	}
	for label, scores := range perCluster {
		analysis.ClusterScores[label] = floats.Sum(scores) / float64(len(scores))
	}

	analysis.OverallScore = total / float64(len(members))
	analysis.Quality = interpretSilhouetteScore(analysis.OverallScore)
	return analysis
}

// interpretSilhouetteScore provides human-readable interpretation
func interpretSilhouetteScore(score float64) string {
	switch {
	case score >= 0.71:
		return "Excellent - Strong cluster structure"
	case score >= 0.51:
		return "Good - Reasonable cluster structure"
	case score >= 0.26:
		return "Fair - Weak cluster structure"
	case score >= 0.0:
		return "Poor - No substantial cluster structure"
	default:
		return "Very Poor - Artificial/forced clustering"
	}
}
