package scheduler

import (
	"errors"
	"math/rand"

	"github.com/vtselfa/manager-sub000/internal/cluster"
	"github.com/vtselfa/manager-sub000/internal/stats"
	"github.com/vtselfa/manager-sub000/internal/task"
)

// ErrNoCandidates is returned when the weighted ballot ends up empty,
// which should only happen if Apply is called with no tasks.
var ErrNoCandidates = errors.New("scheduler: no candidates to draw from")

// clusterWeights assigns integer weights to clusters in ascending
// badness order: the least-stalled cluster gets weight 1, the
// most-stalled gets the heaviest weight, matching spec.md §4.5.
var clusterWeights = []int{1, 2, 4, 8}

// Fair is the fairness-weighted scheduler of spec.md §4.5: it keeps a
// 5-interval rolling mean of a stall metric per task, clusters tasks
// into up to 4 badness buckets, and draws a weighted ballot favoring
// the worst-performing tasks, grounded on original_source's
// sched.cpp Fair::apply.
type Fair struct {
	CPUs   []int
	Store  *stats.Store // must be constructed with a window of 5
	Metric string
	MaxK   int
	Rng    *rand.Rand

	schedLast map[uint32]bool
}

func (f *Fair) rng() *rand.Rand {
	if f.Rng == nil {
		f.Rng = rand.New(rand.NewSource(1))
	}
	return f.Rng
}

func (f *Fair) maxK() int {
	if f.MaxK <= 0 {
		return 4
	}
	return f.MaxK
}

// recordStalls updates the rolling-mean store for every task: tasks
// not scheduled last interval are credited with that interval's cycle
// count as stall time (an estimate since the workload made no
// progress); tasks that did run are credited their measured stall
// cycles.
func (f *Fair) recordStalls(tasks []*task.Task) {
	if f.schedLast == nil {
		f.schedLast = make(map[uint32]bool)
	}

	var cycles uint64
	for _, t := range tasks {
		if f.schedLast[t.ID] {
			cycles = t.StatsInterval.Cycles
			break
		}
	}

	for _, t := range tasks {
		_, seen := f.schedLast[t.ID]
		if !seen {
			f.schedLast[t.ID] = false
			continue
		}
		if !f.schedLast[t.ID] {
			f.Store.Record(t.ID, stats.Stats{Events: map[string]uint64{f.Metric: cycles}})
		} else {
			v, _ := t.StatsInterval.Event(f.Metric)
			f.Store.Record(t.ID, stats.Stats{Events: map[string]uint64{f.Metric: v}})
		}
	}
}

func (f *Fair) Apply(tasks []*task.Task) ([]*task.Task, error) {
	if len(tasks) == 0 {
		return nil, nil
	}
	f.recordStalls(tasks)

	points := make([]cluster.Point, 0, len(tasks))
	for _, t := range tasks {
		mean, ok := f.Store.RollingMean(t.ID, f.Metric)
		if !ok {
			mean = 0
		}
		points = append(points, cluster.Point{ID: int(t.ID), Values: []float64{mean}})
	}

	clusters, _, err := cluster.AdaptiveK(points, f.maxK(), 100, cluster.Dunn, f.rng())
	if err != nil {
		return nil, err
	}
	sortAscending(clusters)

	byID := make(map[int]*task.Task, len(tasks))
	for _, t := range tasks {
		byID[int(t.ID)] = t
	}

	var table []uint32
	for i, cl := range clusters {
		w := clusterWeights[len(clusterWeights)-1]
		if i < len(clusterWeights) {
			w = clusterWeights[i]
		}
		for _, pt := range cl.Points {
			for j := 0; j < w; j++ {
				table = append(table, uint32(pt.ID))
			}
		}
	}
	if len(table) == 0 {
		return nil, ErrNoCandidates
	}

	n := len(f.CPUs)
	if n > len(tasks) {
		n = len(tasks)
	}

	result := make([]*task.Task, 0, n)
	rng := f.rng()
	for i := 0; i < n && len(table) > 0; i++ {
		pos := rng.Intn(len(table))
		id := table[pos]
		table = removeAll(table, id)
		if t, ok := byID[int(id)]; ok {
			result = append(result, t)
		}
	}

	for _, t := range result {
		if err := setAffinity(t, f.CPUs); err != nil {
			return nil, err
		}
	}

	for _, t := range tasks {
		f.schedLast[t.ID] = false
	}
	for _, t := range result {
		f.schedLast[t.ID] = true
	}

	return result, nil
}

func sortAscending(clusters []cluster.Cluster) {
	for i := 1; i < len(clusters); i++ {
		for j := i; j > 0 && clusters[j].Centroid[0] < clusters[j-1].Centroid[0]; j-- {
			clusters[j], clusters[j-1] = clusters[j-1], clusters[j]
		}
	}
}

func removeAll(table []uint32, id uint32) []uint32 {
	out := table[:0]
	for _, v := range table {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
