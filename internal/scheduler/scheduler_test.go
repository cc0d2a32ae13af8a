package scheduler

import (
	"math/rand"
	"testing"

	"github.com/vtselfa/manager-sub000/internal/stats"
	"github.com/vtselfa/manager-sub000/internal/task"
)

func mkTask(id uint32, allowed []int) *task.Task {
	return &task.Task{ID: id, AllowedCPUs: allowed}
}

func TestPassThroughIntersectsAffinity(t *testing.T) {
	p := PassThrough{CPUs: []int{0, 1, 2}}
	tasks := []*task.Task{mkTask(0, []int{1, 2, 3})}
	result, err := p.Apply(tasks)
	if err != nil {
		t.Fatal(err)
	}
	if len(result) != 1 {
		t.Fatalf("expected 1 task, got %d", len(result))
	}
	if len(result[0].AllowedCPUs) != 2 {
		t.Fatalf("expected intersection {1,2}, got %v", result[0].AllowedCPUs)
	}
}

func TestPassThroughEmptyIntersectionErrors(t *testing.T) {
	p := PassThrough{CPUs: []int{5, 6}}
	tasks := []*task.Task{mkTask(0, []int{1, 2})}
	if _, err := p.Apply(tasks); err == nil {
		t.Fatal("expected an affinity error")
	}
}

func TestRandomReturnsAllWhenFewerTasksThanCPUs(t *testing.T) {
	r := Random{CPUs: []int{0, 1, 2, 3}, Rng: rand.New(rand.NewSource(1))}
	tasks := []*task.Task{mkTask(0, []int{0, 1}), mkTask(1, []int{2, 3})}
	result, err := r.Apply(tasks)
	if err != nil {
		t.Fatal(err)
	}
	if len(result) != 2 {
		t.Fatalf("expected both tasks returned, got %d", len(result))
	}
}

func TestRandomCapsAtCPUCount(t *testing.T) {
	r := Random{CPUs: []int{0, 1}, Rng: rand.New(rand.NewSource(1))}
	tasks := []*task.Task{
		mkTask(0, []int{0, 1}), mkTask(1, []int{0, 1}), mkTask(2, []int{0, 1}),
	}
	result, err := r.Apply(tasks)
	if err != nil {
		t.Fatal(err)
	}
	if len(result) != 2 {
		t.Fatalf("expected exactly 2 tasks, got %d", len(result))
	}
}

func TestFairReturnsBoundedDistinctSubset(t *testing.T) {
	f := &Fair{
		CPUs:   []int{0, 1},
		Store:  stats.NewStore(5),
		Metric: "STALLS",
		Rng:    rand.New(rand.NewSource(7)),
	}
	tasks := []*task.Task{
		mkTask(0, []int{0, 1}), mkTask(1, []int{0, 1}),
		mkTask(2, []int{0, 1}), mkTask(3, []int{0, 1}),
	}
	for _, t := range tasks {
		t.StatsInterval = stats.Stats{Cycles: 1000, Events: map[string]uint64{"STALLS": 100}}
	}

	for round := 0; round < 3; round++ {
		result, err := f.Apply(tasks)
		if err != nil {
			t.Fatal(err)
		}
		if len(result) != 2 {
			t.Fatalf("round %d: expected 2 tasks scheduled, got %d", round, len(result))
		}
		seen := map[uint32]bool{}
		for _, r := range result {
			if seen[r.ID] {
				t.Fatalf("round %d: duplicate task %d in result", round, r.ID)
			}
			seen[r.ID] = true
		}
	}
}

func TestFairNoTasksReturnsEmpty(t *testing.T) {
	f := &Fair{CPUs: []int{0}, Store: stats.NewStore(5), Metric: "STALLS"}
	result, err := f.Apply(nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(result) != 0 {
		t.Fatalf("expected no tasks, got %d", len(result))
	}
}
