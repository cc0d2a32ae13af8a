// Package task defines the supervised workload: its immutable launch
// identity and its mutable per-interval runtime state.
package task

import (
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/vtselfa/manager-sub000/internal/stats"
)

var nextID uint32

// NextID returns the next monotonically increasing task id. Tests that
// need deterministic ids should call ResetIDsForTest.
func NextID() uint32 {
	return atomic.AddUint32(&nextID, 1) - 1
}

// ResetIDsForTest resets the global id counter; only ever called from
// tests, never from production code paths.
func ResetIDsForTest() {
	atomic.StoreUint32(&nextID, 0)
}

// Task is one supervised workload. The identity fields are set once at
// construction and never change; the runtime fields are mutated only by
// the control loop's sampling/scheduling/commit steps.
type Task struct {
	// Identity, set at construction.
	ID         uint32
	Cmd        string
	Executable string
	Stdout     string
	Stdin      string
	Stderr     string
	SkelDir    string
	MaxInstr   uint64
	Batch      bool

	// Runtime state.
	RunDir      string
	PID         int
	CPU         int
	InitialCOS  int
	AllowedCPUs []int

	StatsAccumulated stats.Stats // since the last time the instruction goal was hit
	StatsTotal       stats.Stats // since launch
	StatsInterval    stats.Stats // only the last interval

	InstructionLimitReached bool
	Completed               bool
}

// New builds a Task, deriving the executable basename from cmd the same
// way the original implementation does: the first whitespace-delimited
// field of cmd, basenamed.
func New(cmd, stdout, stdin, stderr, skelDir string, maxInstr uint64, batch bool) *Task {
	return &Task{
		ID:         NextID(),
		Cmd:        cmd,
		Executable: executableName(cmd),
		Stdout:     stdout,
		Stdin:      stdin,
		Stderr:     stderr,
		SkelDir:    skelDir,
		MaxInstr:   maxInstr,
		Batch:      batch,
		CPU:        -1,
	}
}

func executableName(cmd string) string {
	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return ""
	}
	return filepath.Base(fields[0])
}

// ResetInterval clears the instruction-limit flag and the accumulated/
// interval stats, as done at the start of a new measurement goal.
func (t *Task) ResetInterval() {
	t.InstructionLimitReached = false
	t.StatsAccumulated = stats.Stats{}
	t.StatsInterval = stats.Stats{}
}

// Runnable reports whether the task still participates in scheduling
// and policy decisions this interval.
func (t *Task) Runnable() bool {
	return !t.Completed
}

// RequiredSatisfied reports whether this task no longer blocks the
// control loop's completion check: batch tasks never block it; a
// non-batch task satisfies it once it has exited or reached its
// instruction limit.
func (t *Task) RequiredSatisfied() bool {
	if t.Batch {
		return true
	}
	return t.Completed || t.InstructionLimitReached
}
