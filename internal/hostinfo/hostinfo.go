// Package hostinfo discovers the host's CPU topology: the supervisor's
// own allowed CPU set and the total logical CPU count, grounded on
// original_source's sched.cpp allowed_cpus() and on the teacher's own
// use of gopsutil for host introspection, repurposed here for topology
// discovery instead of banner printing.
package hostinfo

import (
	"fmt"
	"os"

	"github.com/shirou/gopsutil/cpu"
	"golang.org/x/sys/unix"
)

// AllowedCPUs returns the CPU ids the current process is allowed to
// run on, the Go equivalent of sched_getaffinity(getpid(), ...).
func AllowedCPUs() ([]int, error) {
	return AllowedCPUsForPID(os.Getpid())
}

// AllowedCPUsForPID returns the CPU ids a given process is allowed to
// run on.
func AllowedCPUsForPID(pid int) ([]int, error) {
	var set unix.CPUSet
	if err := unix.SchedGetaffinity(pid, &set); err != nil {
		return nil, fmt.Errorf("hostinfo: could not get CPU affinity for pid %d: %w", pid, err)
	}
	var out []int
	for cpu := 0; cpu < unix.CPU_SETSIZE; cpu++ {
		if set.IsSet(cpu) {
			out = append(out, cpu)
		}
	}
	return out, nil
}

// LogicalCPUCount returns the number of logical CPUs on the host.
func LogicalCPUCount() (int, error) {
	n, err := cpu.Counts(true)
	if err != nil {
		return 0, fmt.Errorf("hostinfo: could not determine logical CPU count: %w", err)
	}
	return n, nil
}
