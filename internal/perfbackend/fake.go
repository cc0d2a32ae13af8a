package perfbackend

import (
	"fmt"
	"sort"
)

// FakeBackend is a deterministic in-memory Backend, used by control
// loop and policy tests that need per-task counter reads without a
// real perf_event_open-backed implementation.
type FakeBackend struct {
	knownGroups map[string]bool
	setup       map[int][]string
	enabled     map[int]bool
	values      map[int]map[string]uint64
}

// NewFakeBackend builds a backend that only accepts the given event
// group names from SetupEvents, rejecting anything else with
// UnknownEventError.
func NewFakeBackend(knownGroups ...string) *FakeBackend {
	known := make(map[string]bool, len(knownGroups))
	for _, g := range knownGroups {
		known[g] = true
	}
	return &FakeBackend{
		knownGroups: known,
		setup:       make(map[int][]string),
		enabled:     make(map[int]bool),
		values:      make(map[int]map[string]uint64),
	}
}

func (f *FakeBackend) SetupEvents(pid int, groups []string) error {
	for _, g := range groups {
		if !f.knownGroups[g] {
			return &UnknownEventError{Group: g}
		}
	}
	f.setup[pid] = groups
	f.values[pid] = make(map[string]uint64)
	return nil
}

func (f *FakeBackend) Enable(pid int) error {
	if _, ok := f.setup[pid]; !ok {
		return fmt.Errorf("perfbackend: pid %d not set up", pid)
	}
	f.enabled[pid] = true
	return nil
}

func (f *FakeBackend) Disable(pid int) error {
	f.enabled[pid] = false
	return nil
}

// SetValue lets a test script what a subsequent Read should report for
// a given task/event pair, simulating counter accumulation between
// intervals.
func (f *FakeBackend) SetValue(pid int, event string, value uint64) {
	if f.values[pid] == nil {
		f.values[pid] = make(map[string]uint64)
	}
	f.values[pid][event] = value
}

func (f *FakeBackend) Read(pid int) ([]Reading, error) {
	groups, ok := f.setup[pid]
	if !ok {
		return nil, fmt.Errorf("perfbackend: pid %d not set up", pid)
	}
	readings := make([]Reading, 0, len(groups))
	for _, g := range groups {
		readings = append(readings, Reading{
			Name:        g,
			Value:       f.values[pid][g],
			Unit:        "count",
			EnabledTime: 1,
			RunningTime: 1,
		})
	}
	sort.Slice(readings, func(i, j int) bool { return readings[i].Name < readings[j].Name })
	return readings, nil
}

func (f *FakeBackend) Teardown(pid int) error {
	delete(f.setup, pid)
	delete(f.enabled, pid)
	delete(f.values, pid)
	return nil
}
