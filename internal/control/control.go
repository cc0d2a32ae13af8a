// Package control implements the ControlLoop of spec.md §4.6: the
// top-level Init -> (Sample -> Decide -> Commit -> Run -> Stop)* ->
// Teardown state machine, grounded on the teacher's manager package
// (process supervision) and utils/signals.go (quit-signal handling),
// using github.com/hashicorp/go-multierror to aggregate best-effort
// Teardown failures the way spec.md §4.6's cleanup contract requires.
package control

import (
	"errors"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/vtselfa/manager-sub000/internal/cachedriver"
	"github.com/vtselfa/manager-sub000/internal/corelog"
	"github.com/vtselfa/manager-sub000/internal/launcher"
	"github.com/vtselfa/manager-sub000/internal/perfbackend"
	"github.com/vtselfa/manager-sub000/internal/policy"
	"github.com/vtselfa/manager-sub000/internal/scheduler"
	"github.com/vtselfa/manager-sub000/internal/stats"
	"github.com/vtselfa/manager-sub000/internal/task"
)

// EventGroups names the hardware-event selectors every task is
// programmed with at Init. A real deployment would source these from
// configuration; the control loop only needs a fixed, known set to
// thread counter reads back into the metric Policy consumes.
var EventGroups = []string{"CYCLE_ACTIVITY.STALLS_L2_MISS", "cycles", "instructions"}

// TaskLauncher is the subset of launcher.Launcher the control loop
// depends on, kept as an interface so tests can substitute a fake
// process launcher.
type TaskLauncher interface {
	Launch(t *task.Task) (int, error)
	Pause(pid int) error
	Resume(pid int) error
	Kill(pid int) error
	SetAffinity(pid int, cpus []int) error
}

// Loop drives the supervised workload through the control-loop state
// machine described by spec.md §4.6.
type Loop struct {
	Tasks     []*task.Task
	Launcher  TaskLauncher
	Backend   perfbackend.Backend
	Driver    cachedriver.Driver
	Policy    *policy.Policy
	Scheduler scheduler.Scheduler
	Store     *stats.Store
	Interval  time.Duration
	TimeMax   time.Duration
	Log       *corelog.Logger

	Quit <-chan struct{} // closed or signaled to request a clean shutdown

	current   uint64
	scheduled []*task.Task
}

func (l *Loop) logf(format string, args ...interface{}) {
	if l.Log != nil {
		l.Log.Debugf(format, args...)
	}
}

// Init launches every task, immediately pauses it, programs its
// counters, and resets the cache driver to a known state.
func (l *Loop) Init() error {
	if err := l.Driver.Init(); err != nil {
		return err
	}
	if err := l.Driver.Reset(); err != nil {
		return err
	}

	for _, t := range l.Tasks {
		pid, err := l.Launcher.Launch(t)
		if err != nil {
			return err
		}
		t.PID = pid

		if err := l.Launcher.Pause(t.PID); err != nil {
			return err
		}
		if err := l.Backend.SetupEvents(t.PID, EventGroups); err != nil {
			return err
		}
		if err := l.Backend.Enable(t.PID); err != nil {
			return err
		}
	}
	return nil
}

// Run drives successive intervals until every required task is
// satisfied, TimeMax elapses, or Quit fires. Any fatal error triggers
// Teardown before returning.
func (l *Loop) Run() error {
	deadline := time.Time{}
	if l.TimeMax > 0 {
		deadline = time.Now().Add(l.TimeMax)
	}

	for {
		select {
		case <-l.Quit:
			return l.Teardown()
		default:
		}

		if err := l.sample(); err != nil {
			_ = l.Teardown()
			return err
		}
		if err := l.decide(); err != nil {
			_ = l.Teardown()
			return err
		}
		if err := l.commit(); err != nil {
			_ = l.Teardown()
			return err
		}
		if err := l.runInterval(); err != nil {
			_ = l.Teardown()
			return err
		}

		l.current++

		if l.allSatisfied() {
			return l.Teardown()
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return l.Teardown()
		}
	}
}

// sample reads the counters accumulated since the last Run phase and
// folds them into each task's interval/accumulated/total stats and
// into the rolling-mean store.
func (l *Loop) sample() error {
	for _, t := range l.Tasks {
		if !t.Runnable() {
			continue
		}
		readings, err := l.Backend.Read(t.PID)
		if err != nil {
			return err
		}
		sample := readingsToStats(readings)
		t.StatsInterval = sample
		t.StatsAccumulated = t.StatsAccumulated.Add(sample)
		t.StatsTotal = t.StatsTotal.Add(sample)
		l.Store.Record(t.ID, sample)

		if t.MaxInstr > 0 && t.StatsAccumulated.Instructions >= t.MaxInstr {
			t.InstructionLimitReached = true
		}
	}
	return nil
}

func readingsToStats(readings []perfbackend.Reading) stats.Stats {
	s := stats.Stats{Events: make(map[string]uint64, len(readings))}
	for _, r := range readings {
		s.Events[r.Name] = r.Value
		switch r.Name {
		case "cycles":
			s.Cycles = r.Value
		case "instructions":
			s.Instructions = r.Value
		}
	}
	return s
}

// decide invokes Policy (gated on the interval number) and Scheduler
// (every interval).
func (l *Loop) decide() error {
	l.logf("deciding interval %d", l.current)
	if l.Policy != nil {
		if err := l.Policy.Apply(l.current, l.Tasks); err != nil {
			return err
		}
	}
	if l.Scheduler != nil {
		runnable := make([]*task.Task, 0, len(l.Tasks))
		for _, t := range l.Tasks {
			if t.Runnable() {
				runnable = append(runnable, t)
			}
		}
		scheduled, err := l.Scheduler.Apply(runnable)
		if err != nil {
			return err
		}
		l.scheduled = scheduled
	}
	return nil
}

// commit applies the CPU affinities decided by Scheduler to the live
// processes; COS assignment was already committed to the cache driver
// inside Policy.Apply. A task that has exited on its own (spec.md §7's
// TaskGone) is marked completed and otherwise ignored, not a fatal
// error.
func (l *Loop) commit() error {
	for _, t := range l.scheduled {
		if err := l.Launcher.SetAffinity(t.PID, t.AllowedCPUs); err != nil {
			if errors.Is(err, launcher.ErrTaskGone) {
				l.markGone(t)
				continue
			}
			return err
		}
	}
	return nil
}

// runInterval resumes the scheduled subset, sleeps the interval
// duration, then pauses every task again. See commit for the TaskGone
// handling contract.
func (l *Loop) runInterval() error {
	for _, t := range l.scheduled {
		if err := l.Launcher.Resume(t.PID); err != nil {
			if errors.Is(err, launcher.ErrTaskGone) {
				l.markGone(t)
				continue
			}
			return err
		}
	}

	sleepInterval := l.Interval
	if sleepInterval <= 0 {
		sleepInterval = time.Second
	}
	select {
	case <-time.After(sleepInterval):
	case <-l.Quit:
	}

	for _, t := range l.scheduled {
		if !t.Runnable() {
			continue
		}
		if err := l.Launcher.Pause(t.PID); err != nil {
			if errors.Is(err, launcher.ErrTaskGone) {
				l.markGone(t)
				continue
			}
			return err
		}
	}
	return nil
}

// markGone records that a task exited unexpectedly: it is excluded
// from every subsequent Policy/Scheduler invocation via Task.Runnable,
// and from the completion check via Task.RequiredSatisfied.
func (l *Loop) markGone(t *task.Task) {
	t.Completed = true
	l.logf("task %d (%s) exited unexpectedly, marking completed", t.ID, t.Executable)
}

// allSatisfied reports whether every task has met its completion
// criterion (batch tasks never block completion).
func (l *Loop) allSatisfied() bool {
	for _, t := range l.Tasks {
		if !t.RequiredSatisfied() {
			return false
		}
	}
	return true
}

// Teardown SIGKILLs every task, waits for them, resets the cache
// driver, and tears down counters. Every step is attempted regardless
// of earlier failures; individual errors are aggregated and returned,
// never re-thrown mid-cleanup.
func (l *Loop) Teardown() error {
	var result *multierror.Error

	for _, t := range l.Tasks {
		if t.PID == 0 {
			continue
		}
		if err := l.Backend.Teardown(t.PID); err != nil {
			result = multierror.Append(result, err)
		}
		if err := l.Launcher.Kill(t.PID); err != nil {
			result = multierror.Append(result, err)
		}
	}

	if err := l.Driver.Reset(); err != nil {
		result = multierror.Append(result, err)
	}

	return result.ErrorOrNil()
}
