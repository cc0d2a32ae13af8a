// Package perfbackend implements the counter backend external
// interface from spec.md §6: per-task hardware performance counter
// groups, setup/enable/disable/read/teardown, grounded on
// original_source's stats.hpp event model.
package perfbackend

import "fmt"

// Reading is one named counter's value at read time, mirroring the
// (name, value, unit, enabled_time, running_time) tuple spec.md §6
// describes.
type Reading struct {
	Name        string
	Value       uint64
	Unit        string
	EnabledTime uint64
	RunningTime uint64
}

// Backend is the counter backend contract. Unknown event-selector
// strings are configuration errors, not runtime ones, and should
// surface from SetupEvents.
type Backend interface {
	SetupEvents(pid int, groups []string) error
	Enable(pid int) error
	Disable(pid int) error
	Read(pid int) ([]Reading, error)
	Teardown(pid int) error
}

// UnknownEventError reports a platform-specific event-selector string
// the backend does not recognize.
type UnknownEventError struct {
	Group string
}

func (e *UnknownEventError) Error() string {
	return fmt.Sprintf("perfbackend: unknown event group %q", e.Group)
}
