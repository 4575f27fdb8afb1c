package clustering

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
)

// KMeansConfig holds configuration for K-means clustering
type KMeansConfig struct {
	MaxIterations int     // Maximum number of Lloyd iterations per run
	Tolerance     float64 // Stop when total squared centroid shift falls below this
	Seed          int64   // Seed for k-means++ initialization; fixed for reproducibility
	NInit         int     // Number of seeded runs; the lowest inertia wins
}

// DefaultKMeansConfig returns the reproducible defaults used for topic discovery
func DefaultKMeansConfig() KMeansConfig {
	return KMeansConfig{
		MaxIterations: 300,
		Tolerance:     1e-4,
		Seed:          42,
		NInit:         1,
	}
}

// KMeans is a deterministic K-means clusterer over Euclidean space.
// Every run draws from its own seeded source, so concurrent callers with the
// same input always observe the same labels.
type KMeans struct {
	config KMeansConfig
}

// NewKMeans creates a K-means clusterer
func NewKMeans(config KMeansConfig) *KMeans {
	if config.MaxIterations <= 0 {
		config.MaxIterations = DefaultKMeansConfig().MaxIterations
	}
	if config.NInit <= 0 {
		config.NInit = 1
	}
	return &KMeans{config: config}
}

// Result is the outcome of a K-means fit.
type Result struct {
	Labels    []int       // cluster label per point, dense and ordered by first appearance
	Centroids [][]float64 // indexed by label
	Inertia   float64     // sum of squared distances to assigned centroids
}

// Fit partitions points into k clusters.
func (km *KMeans) Fit(points [][]float64, k int) (Result, error) {
	if len(points) == 0 {
		return Result{}, fmt.Errorf("no embeddings provided")
	}
	if k <= 0 || k > len(points) {
		return Result{}, fmt.Errorf("invalid k: %d (must be 1-%d)", k, len(points))
	}

	var best Result
	for run := 0; run < km.config.NInit; run++ {
		rng := rand.New(rand.NewSource(km.config.Seed + int64(run)))
		res := km.runOnce(points, k, rng)
		if run == 0 || res.Inertia < best.Inertia {
			best = res
		}
	}

	return relabel(best), nil
}

// runOnce executes one k-means++ seeded Lloyd run
func (km *KMeans) runOnce(points [][]float64, k int, rng *rand.Rand) Result {
	centroids := initializeCentroidsKMeansPP(points, k, rng)

	var labels []int
	for iteration := 0; iteration < km.config.MaxIterations; iteration++ {
		newLabels := make([]int, len(points))
		for i, p := range points {
			newLabels[i] = nearestCentroid(p, centroids)
		}

		changed := labels == nil
		if !changed {
			for i := range labels {
				if labels[i] != newLabels[i] {
					changed = true
					break
				}
			}
		}
		labels = newLabels
		if !changed {
			break
		}

		updated := updateCentroids(points, labels, centroids)
		shift := 0.0
		for c := range centroids {
			d := floats.Distance(centroids[c], updated[c], 2)
			shift += d * d
		}
		centroids = updated
		if shift <= km.config.Tolerance {
			// Final assignment against the settled centroids
			for i, p := range points {
				labels[i] = nearestCentroid(p, centroids)
			}
			break
		}
	}

	inertia := 0.0
	for i, p := range points {
		d := floats.Distance(p, centroids[labels[i]], 2)
		inertia += d * d
	}

	return Result{Labels: labels, Centroids: centroids, Inertia: inertia}
}

// initializeCentroidsKMeansPP picks initial centroids with probability
// proportional to squared distance from the nearest existing centroid
func initializeCentroidsKMeansPP(points [][]float64, k int, rng *rand.Rand) [][]float64 {
	centroids := make([][]float64, 0, k)
	first := rng.Intn(len(points))
	centroids = append(centroids, clone(points[first]))

	minDist := make([]float64, len(points))
	for i := range minDist {
		minDist[i] = math.Inf(1)
	}

	for len(centroids) < k {
		last := centroids[len(centroids)-1]
		total := 0.0
		for j, p := range points {
			d := floats.Distance(p, last, 2)
			if d*d < minDist[j] {
				minDist[j] = d * d
			}
			total += minDist[j]
		}

		if total == 0 {
			// All remaining points coincide with a centroid
			centroids = append(centroids, clone(points[rng.Intn(len(points))]))
			continue
		}

		target := rng.Float64() * total
		cumulative := 0.0
		selected := len(points) - 1
		for j, d := range minDist {
			cumulative += d
			if cumulative >= target && d > 0 {
				selected = j
				break
			}
		}
		centroids = append(centroids, clone(points[selected]))
	}

	return centroids
}

// nearestCentroid returns the closest centroid; ties go to the lower index
func nearestCentroid(p []float64, centroids [][]float64) int {
	best := 0
	bestDist := math.Inf(1)
	for i, c := range centroids {
		d := floats.Distance(p, c, 2)
		if d < bestDist {
			bestDist = d
			best = i
		}
	}
	return best
}

// updateCentroids recalculates centroids; an empty cluster keeps its previous centroid
func updateCentroids(points [][]float64, labels []int, previous [][]float64) [][]float64 {
	dim := len(points[0])
	sums := make([][]float64, len(previous))
	counts := make([]int, len(previous))
	for c := range sums {
		sums[c] = make([]float64, dim)
	}

	for i, p := range points {
		floats.Add(sums[labels[i]], p)
		counts[labels[i]]++
	}

	for c := range sums {
		if counts[c] == 0 {
			copy(sums[c], previous[c])
			continue
		}
		floats.Scale(1/float64(counts[c]), sums[c])
	}
	return sums
}

// relabel renumbers labels densely in order of first appearance
func relabel(res Result) Result {
	mapping := make(map[int]int)
	labels := make([]int, len(res.Labels))
	var centroids [][]float64
	for i, l := range res.Labels {
		id, ok := mapping[l]
		if !ok {
			id = len(mapping)
			mapping[l] = id
			centroids = append(centroids, res.Centroids[l])
		}
		labels[i] = id
	}
	return Result{Labels: labels, Centroids: centroids, Inertia: res.Inertia}
}

func clone(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	return out
}
