package cluster

import (
	"math"
	"math/rand"
)

// QualityIndex names a cluster-quality metric used by AdaptiveK to pick
// the best k.
type QualityIndex string

const (
	Dunn       QualityIndex = "dunn"
	Silhouette QualityIndex = "silhouette"
)

func (q QualityIndex) valid() bool {
	return q == Dunn || q == Silhouette
}

// FixedK runs Lloyd's algorithm for a fixed number of clusters k,
// returning the resulting clusters and the number of iterations taken.
// If there are fewer points than k, each point gets its own cluster.
// Clusters with no points assigned are reseeded from a uniformly
// random point, the same recovery the original implementation uses.
func FixedK(points []Point, k int, maxIter int, rng *rand.Rand) ([]Cluster, int, error) {
	if len(points) == 0 {
		return nil, 0, ErrEmptyInput
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	if k > len(points) {
		k = len(points)
	}
	if k < 1 {
		k = 1
	}

	clusters := initClusters(points, k)
	assigned := make([]int, len(points))
	for i := range assigned {
		assigned[i] = -1
	}

	iter := 0
	for ; iter < maxIter; iter++ {
		done := true

		for i, p := range points {
			old := assigned[i]
			nearest, err := nearestCluster(clusters, p)
			if err != nil {
				return nil, iter, err
			}
			if old != nearest {
				if old != -1 {
					clusters[old].removePoint(p.ID)
				}
				assigned[i] = nearest
				if err := clusters[nearest].addPoint(p); err != nil {
					return nil, iter, err
				}
				done = false
			}
		}

		for i := range clusters {
			if len(clusters[i].Points) == 0 {
				reinitCluster(points, &clusters[i], rng)
				done = false
			} else {
				clusters[i].updateMeans()
			}
		}

		if done {
			break
		}
	}

	return clusters, iter, nil
}

// initClusters seeds k clusters from points evenly spaced across the
// input slice, matching the original's round(i*len(points)/k) scheme.
func initClusters(points []Point, k int) []Cluster {
	clusters := make([]Cluster, k)
	dist := float64(len(points)) / float64(k)
	for i := 0; i < k; i++ {
		index := int(math.Round(dist * float64(i)))
		if index >= len(points) {
			index = len(points) - 1
		}
		clusters[i] = newCluster(i, points[index].Values)
	}
	return clusters
}

func reinitCluster(points []Point, c *Cluster, rng *rand.Rand) {
	index := rng.Intn(len(points))
	c.Centroid = append([]float64(nil), points[index].Values...)
}

func nearestCluster(clusters []Cluster, p Point) (int, error) {
	best := 0
	minDist := math.Inf(1)
	for i := range clusters {
		if len(clusters[i].Centroid) != len(p.Values) {
			return 0, ErrDimensionMismatch
		}
		d := clusters[i].centroidDistance(p)
		if d < minDist {
			minDist = d
			best = i
		}
	}
	return best, nil
}

// DunnIndex computes the Dunn index of a clustering: the ratio of the
// smallest inter-cluster separation to the largest intra-cluster
// spread, where higher is better (matching AdaptiveK's "pick the
// maximum score" convention). A clustering with no intra-cluster
// spread scores +Inf when its clusters are separated and -Inf when
// they are not.
func DunnIndex(clusters []Cluster) float64 {
	minInter := math.MaxFloat64
	for i := range clusters {
		for j := i + 1; j < len(clusters); j++ {
			d := closestPointsDistance(&clusters[i], &clusters[j])
			if d < minInter {
				minInter = d
			}
		}
	}
	maxIntra := 0.0
	for i := range clusters {
		if d := clusters[i].maxPairwiseDistance(); d > maxIntra {
			maxIntra = d
		}
	}
	if maxIntra == 0 {
		if minInter > 0 {
			return math.Inf(1)
		}
		return math.Inf(-1)
	}
	return minInter / maxIntra
}

// SilhouetteIndex computes the mean silhouette coefficient of a
// clustering, scaled the same (perhaps unusual) way the original
// implementation does: the standard mean-over-clusters silhouette is
// further divided by the number of clusters.
func SilhouetteIndex(clusters []Cluster) float64 {
	result := 0.0
	for k := range clusters {
		sk := 0.0
		for _, p := range clusters[k].Points {
			a := clusters[k].meanPairwiseDistanceTo(p)
			if math.IsNaN(a) {
				a = 0
			}
			b := math.MaxFloat64
			for k2 := range clusters {
				if k2 == k {
					continue
				}
				if m := clusters[k2].meanPairwiseDistanceTo(p); m < b {
					b = m
				}
			}
			denom := math.Max(a, b)
			si := 0.0
			if denom != 0 {
				si = (b - a) / denom
			}
			sk += si
		}
		if len(clusters[k].Points) > 0 {
			sk /= float64(len(clusters[k].Points))
		}
		result += sk
	}
	if len(clusters) == 0 {
		return 0
	}
	result /= float64(len(clusters))
	return result / float64(len(clusters))
}

// AdaptiveK runs FixedK for every k in [2, maxK] (capped at
// len(points)-1) and returns the clustering that scores best under the
// given quality index, preferring the smaller k on ties.
func AdaptiveK(points []Point, maxK int, maxIter int, index QualityIndex, rng *rand.Rand) ([]Cluster, int, error) {
	if len(points) == 0 {
		return nil, 0, ErrEmptyInput
	}
	if !index.valid() {
		return nil, 0, ErrInvalidConfig
	}
	upper := maxK
	if upper > len(points)-1 {
		upper = len(points) - 1
	}
	if upper < 2 {
		return FixedK(points, 1, maxIter, rng)
	}

	bestScore := math.Inf(-1)
	var bestClusters []Cluster
	bestIter := 0

	for k := 2; k <= upper; k++ {
		clusters, iter, err := FixedK(points, k, maxIter, rng)
		if err != nil {
			return nil, 0, err
		}
		var score float64
		if index == Dunn {
			score = DunnIndex(clusters)
		} else {
			score = SilhouetteIndex(clusters)
		}
		if bestClusters == nil || score > bestScore {
			bestScore = score
			bestClusters = clusters
			bestIter = iter
		}
	}

	return bestClusters, bestIter, nil
}
