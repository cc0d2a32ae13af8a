package control

import (
	"testing"
	"time"

	"github.com/vtselfa/manager-sub000/internal/cachedriver"
	"github.com/vtselfa/manager-sub000/internal/launcher"
	"github.com/vtselfa/manager-sub000/internal/perfbackend"
	"github.com/vtselfa/manager-sub000/internal/scheduler"
	"github.com/vtselfa/manager-sub000/internal/stats"
	"github.com/vtselfa/manager-sub000/internal/task"
)

// fakeLauncher hands out incrementing fake pids instead of spawning
// real processes, and records pause/resume/kill calls for assertions.
type fakeLauncher struct {
	nextPID  int
	paused   map[int]bool
	killed   map[int]bool
	affinity map[int][]int
}

func newFakeLauncher() *fakeLauncher {
	return &fakeLauncher{nextPID: 100, paused: map[int]bool{}, killed: map[int]bool{}, affinity: map[int][]int{}}
}

func (f *fakeLauncher) Launch(t *task.Task) (int, error) {
	f.nextPID++
	return f.nextPID, nil
}
func (f *fakeLauncher) Pause(pid int) error  { f.paused[pid] = true; return nil }
func (f *fakeLauncher) Resume(pid int) error { f.paused[pid] = false; return nil }
func (f *fakeLauncher) Kill(pid int) error   { f.killed[pid] = true; return nil }
func (f *fakeLauncher) SetAffinity(pid int, cpus []int) error {
	f.affinity[pid] = cpus
	return nil
}

// goneLauncher reports every task as already exited, simulating a
// workload that died on its own between Sample and Commit.
type goneLauncher struct{ fakeLauncher }

func (g *goneLauncher) SetAffinity(pid int, cpus []int) error { return launcher.ErrTaskGone }
func (g *goneLauncher) Resume(pid int) error                  { return launcher.ErrTaskGone }
func (g *goneLauncher) Pause(pid int) error                   { return launcher.ErrTaskGone }

// fakeDriver is a no-op cachedriver.Driver stand-in.
type fakeDriver struct{}

func (fakeDriver) Init() error                         { return nil }
func (fakeDriver) Reset() error                         { return nil }
func (fakeDriver) SetWays(cos int, mask uint64) error   { return nil }
func (fakeDriver) GetWays(cos int) (uint64, error)      { return 0, nil }
func (fakeDriver) AssignCPU(cos, cpu int) error         { return nil }
func (fakeDriver) AssignTask(cos, pid int) error        { return nil }
func (fakeDriver) COSOfCPU(cpu int) (int, error)        { return 0, nil }
func (fakeDriver) COSOfTask(pid int) (int, error)       { return 0, nil }
func (fakeDriver) MaxCOS() int                          { return 4 }
func (fakeDriver) Info() cachedriver.CacheInfo          { return cachedriver.CacheInfo{CBMMask: 0xfffff, NumClosids: 4} }

func TestInitLaunchesAndPausesTasks(t *testing.T) {
	fl := newFakeLauncher()
	fb := perfbackend.NewFakeBackend("cycles", "instructions", "CYCLE_ACTIVITY.STALLS_L2_MISS")
	loop := &Loop{
		Tasks:    []*task.Task{{ID: 0, Cmd: "./bench"}, {ID: 1, Cmd: "./bench2"}},
		Launcher: fl,
		Backend:  fb,
		Driver:   fakeDriver{},
		Store:    stats.NewStore(5),
	}
	if err := loop.Init(); err != nil {
		t.Fatal(err)
	}
	for _, tk := range loop.Tasks {
		if tk.PID == 0 {
			t.Fatal("expected a pid to be assigned")
		}
		if !fl.paused[tk.PID] {
			t.Fatalf("expected task %d to be paused after launch", tk.ID)
		}
	}
}

func TestRunStopsWhenAllTasksSatisfied(t *testing.T) {
	fl := newFakeLauncher()
	fb := perfbackend.NewFakeBackend("cycles", "instructions", "CYCLE_ACTIVITY.STALLS_L2_MISS")
	tasks := []*task.Task{{ID: 0, Cmd: "./bench", Batch: true}}
	loop := &Loop{
		Tasks:     tasks,
		Launcher:  fl,
		Backend:   fb,
		Driver:    fakeDriver{},
		Scheduler: scheduler.PassThrough{CPUs: []int{0}},
		Store:     stats.NewStore(5),
		Interval:  time.Millisecond,
	}
	for _, tk := range tasks {
		tk.AllowedCPUs = []int{0}
	}
	if err := loop.Init(); err != nil {
		t.Fatal(err)
	}
	if err := loop.Run(); err != nil {
		t.Fatal(err)
	}
	// batch tasks always satisfy RequiredSatisfied, so Run should exit
	// and Teardown should have killed the task.
	if !fl.killed[tasks[0].PID] {
		t.Fatal("expected the task to be killed during teardown")
	}
}

func TestTaskGoneMarksCompletedWithoutAbortingTheLoop(t *testing.T) {
	gl := &goneLauncher{fakeLauncher: *newFakeLauncher()}
	tk := &task.Task{ID: 0, Cmd: "./bench", PID: 777}
	loop := &Loop{
		Tasks:     []*task.Task{tk},
		Launcher:  gl,
		Driver:    fakeDriver{},
		Scheduler: scheduler.PassThrough{CPUs: []int{0}},
		Store:     stats.NewStore(5),
		scheduled: []*task.Task{tk},
	}
	if err := loop.commit(); err != nil {
		t.Fatalf("expected TaskGone to be absorbed, not propagated: %v", err)
	}
	if !tk.Completed {
		t.Fatal("expected the gone task to be marked completed")
	}
}

func TestTeardownKillsEveryLaunchedTask(t *testing.T) {
	fl := newFakeLauncher()
	fb := perfbackend.NewFakeBackend("cycles")
	tasks := []*task.Task{{ID: 0, Cmd: "./bench"}, {ID: 1, Cmd: "./idle"}}
	loop := &Loop{Tasks: tasks, Launcher: fl, Backend: fb, Driver: fakeDriver{}, Store: stats.NewStore(5)}
	tasks[0].PID = 555
	// tasks[1].PID left at zero, simulating a task that never launched;
	// Teardown must skip it rather than kill pid 0.
	if err := loop.Teardown(); err != nil {
		t.Fatalf("expected a clean teardown, got %v", err)
	}
	if !fl.killed[555] {
		t.Fatal("expected the launched task to be killed")
	}
	if fl.killed[0] {
		t.Fatal("did not expect pid 0 to be killed")
	}
}
