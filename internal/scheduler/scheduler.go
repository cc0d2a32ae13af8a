// Package scheduler implements the Scheduler contract of spec.md §4.5:
// deciding which tasks run this interval and pinning their CPU
// affinity, grounded on original_source's sched.hpp/sched.cpp.
package scheduler

import (
	"fmt"
	"math/rand"

	"github.com/vtselfa/manager-sub000/internal/task"
)

// Scheduler picks the subset of tasks that runs this interval and
// assigns their CPU affinity as a side effect.
type Scheduler interface {
	Apply(tasks []*task.Task) ([]*task.Task, error)
}

// AffinityError reports that a task's configured CPU set and the
// supervisor's own allowed CPUs have no overlap.
type AffinityError struct {
	TaskID uint32
}

func (e *AffinityError) Error() string {
	return fmt.Sprintf("scheduler: CPU affinity for task %d is empty", e.TaskID)
}

// setAffinity intersects a task's allowed CPUs with the scheduler's
// own and stores the intersection on the task, the set the original
// implementation hands to sched_setaffinity.
func setAffinity(t *task.Task, schedCPUs []int) error {
	schedSet := make(map[int]struct{}, len(schedCPUs))
	for _, c := range schedCPUs {
		schedSet[c] = struct{}{}
	}
	var out []int
	for _, c := range t.AllowedCPUs {
		if _, ok := schedSet[c]; ok {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return &AffinityError{TaskID: t.ID}
	}
	t.AllowedCPUs = out
	return nil
}

// PassThrough runs every task, unchanged, only fixing up affinities.
type PassThrough struct {
	CPUs []int
}

func (p PassThrough) Apply(tasks []*task.Task) ([]*task.Task, error) {
	for _, t := range tasks {
		if err := setAffinity(t, p.CPUs); err != nil {
			return nil, err
		}
	}
	return tasks, nil
}

// Random returns a uniformly random size-len(CPUs) subset of tasks (or
// all of them, if there are fewer tasks than CPUs).
type Random struct {
	CPUs []int
	Rng  *rand.Rand
}

func (r Random) Apply(tasks []*task.Task) ([]*task.Task, error) {
	rng := r.Rng
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	shuffled := append([]*task.Task(nil), tasks...)
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	n := len(r.CPUs)
	if n > len(shuffled) {
		n = len(shuffled)
	}
	result := shuffled[:n]
	for _, t := range result {
		if err := setAffinity(t, r.CPUs); err != nil {
			return nil, err
		}
	}
	return result, nil
}
