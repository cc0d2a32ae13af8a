// Package policy implements the every-interval cache-partitioning
// decision, composing Clustering, WayDistributor and CacheDriver per
// spec.md §4.4, grounded on original_source's cat-policy.cpp
// (SlowfirstClustered/SlowfirstClusteredOptimallyAdjusted::apply).
package policy

import (
	"errors"
	"math/rand"

	"github.com/vtselfa/manager-sub000/internal/cachedriver"
	"github.com/vtselfa/manager-sub000/internal/cluster"
	"github.com/vtselfa/manager-sub000/internal/corelog"
	"github.com/vtselfa/manager-sub000/internal/task"
	"github.com/vtselfa/manager-sub000/internal/waydist"
)

// ErrMetricMissing is returned when Apply is asked to build Points
// from an event name no task's stats carry.
var ErrMetricMissing = errors.New("policy: metric not present in task stats")

// Clusterer abstracts the two clustering strategies policy can drive:
// a fixed k or an adaptively chosen one.
type Clusterer interface {
	Clusterize(points []cluster.Point) ([]cluster.Cluster, error)
}

// FixedKClusterer always asks for the same number of clusters.
type FixedKClusterer struct {
	K       int
	MaxIter int
	Rng     *rand.Rand
}

func (f FixedKClusterer) Clusterize(points []cluster.Point) ([]cluster.Cluster, error) {
	clusters, _, err := cluster.FixedK(points, f.K, maxIterOrDefault(f.MaxIter), f.Rng)
	return clusters, err
}

// AdaptiveKClusterer searches k in [2, MaxK] for the best-scoring
// clustering under Index.
type AdaptiveKClusterer struct {
	MaxK    int
	MaxIter int
	Index   cluster.QualityIndex
	Rng     *rand.Rand
}

func (a AdaptiveKClusterer) Clusterize(points []cluster.Point) ([]cluster.Cluster, error) {
	clusters, _, err := cluster.AdaptiveK(points, a.MaxK, maxIterOrDefault(a.MaxIter), a.Index, a.Rng)
	return clusters, err
}

func maxIterOrDefault(v int) int {
	if v <= 0 {
		return 100
	}
	return v
}

// Policy is the cache-partitioning decision glue of spec.md §4.4.
type Policy struct {
	Every     uint64
	Metric    string
	Invert    bool // spec.md §10: when true, lower metric values sort first
	Clusterer Clusterer
	WayDist   waydist.Distributor
	Driver    cachedriver.Driver
	Log       *corelog.Logger
}

// Apply runs the policy for one control-loop interval. It is a no-op
// when Every is zero, when current is not a multiple of Every, or when
// no runnable task exists; a single runnable task is pinned to COS 0
// with the full mask instead of being clustered.
func (p *Policy) Apply(current uint64, tasks []*task.Task) error {
	if p.Every == 0 || current%p.Every != 0 {
		return nil
	}

	runnable := runnableTasks(tasks)
	if len(runnable) == 0 {
		return nil
	}

	maxCOS := p.Driver.MaxCOS()
	info := p.Driver.Info()
	maxWays := info.MaxWays()

	if len(runnable) == 1 {
		return p.applySingleTask(runnable[0], maxWays)
	}

	points, err := p.buildPoints(runnable)
	if err != nil {
		return err
	}

	clusters, err := p.Clusterer.Clusterize(points)
	if err != nil {
		return err
	}
	sortDescending(clusters)

	masks, err := p.WayDist.Distribute(clusters, maxCOS, maxWays)
	if err != nil {
		return err
	}
	checkMaskOrder(masks, p.Log)

	byID := make(map[int]*task.Task, len(runnable))
	for _, t := range runnable {
		byID[int(t.ID)] = t
	}

	for cos, mask := range masks {
		if err := p.Driver.SetWays(cos, mask); err != nil {
			return err
		}
	}
	for cos, cl := range clusters {
		for _, pt := range cl.Points {
			t, ok := byID[pt.ID]
			if !ok {
				continue
			}
			if err := p.Driver.AssignTask(cos, t.PID); err != nil {
				return err
			}
		}
	}

	if p.Log != nil {
		previewModels(p.Log, clusters)
	}
	return nil
}

// applySingleTask handles spec.md §4.4's single-task degenerate case:
// the lone task gets COS 0 with the full cache mask.
func (p *Policy) applySingleTask(t *task.Task, maxWays uint32) error {
	full := uint64(1)<<maxWays - 1
	if err := p.Driver.SetWays(0, full); err != nil {
		return err
	}
	return p.Driver.AssignTask(0, t.PID)
}

func runnableTasks(tasks []*task.Task) []*task.Task {
	out := make([]*task.Task, 0, len(tasks))
	for _, t := range tasks {
		if t.Runnable() {
			out = append(out, t)
		}
	}
	return out
}

func (p *Policy) buildPoints(tasks []*task.Task) ([]cluster.Point, error) {
	points := make([]cluster.Point, 0, len(tasks))
	for _, t := range tasks {
		v, ok := t.StatsTotal.Event(p.Metric)
		if !ok {
			return nil, ErrMetricMissing
		}
		val := float64(v)
		if p.Invert {
			val = -val
		}
		points = append(points, cluster.Point{ID: int(t.ID), Values: []float64{val}})
	}
	return points, nil
}

// sortDescending orders clusters by descending centroid, the
// "slowest/heaviest first" ordering cat-policy.cpp's apply imposes
// before mapping clusters to COS slots.
func sortDescending(clusters []cluster.Cluster) {
	for i := 1; i < len(clusters); i++ {
		for j := i; j > 0 && clusters[j].Centroid[0] > clusters[j-1].Centroid[0]; j-- {
			clusters[j], clusters[j-1] = clusters[j-1], clusters[j]
		}
	}
}

// checkMaskOrder warns, but does not fail, when the resulting masks
// are not monotonically non-decreasing — mirroring Slowfirst::check_masks.
func checkMaskOrder(masks []uint64, log *corelog.Logger) {
	if log == nil {
		return
	}
	var last uint64
	for _, m := range masks {
		if last > m {
			log.Warnf("cache masks are not in ascending order, double check the configured model")
			return
		}
		last = m
	}
}

// previewModels logs, at debug level, the way count every named model
// gives this interval's clusters, evaluated with 2 minimum ways out of
// 20 rather than the live cache geometry -- useful for comparing
// the configured model against the alternatives without switching
// configuration, matching cat-policy.cpp's debug preview of linear/
// quadratic/exponential side by side.
func previewModels(log *corelog.Logger, clusters []cluster.Cluster) {
	if len(clusters) == 0 {
		return
	}
	heaviest := clusters[0].Centroid[0]
	for _, m := range waydist.AllModels {
		log.Debugf("model %s preview:", m)
		for i, cl := range clusters {
			x := 1.0
			if heaviest != 0 {
				x = cl.Centroid[0] / heaviest
			}
			ways, err := waydist.Ways(m, x, 2, 20)
			if err != nil {
				continue
			}
			log.Debugf("  cluster %d: x=%.3f -> %d ways", i, x, ways)
		}
	}
}
