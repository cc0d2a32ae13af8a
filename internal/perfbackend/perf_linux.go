//go:build linux

package perfbackend

import (
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// event type/config pairs known without a raw encoding table, mirroring
// the PERF_TYPE_HARDWARE groups events-perf.cpp hands libminiperf.
const (
	perfTypeHardware = 0
	perfTypeRaw      = 4

	perfCountHWCPUCycles    = 0
	perfCountHWInstructions = 1
)

// rawEvents maps event-selector strings this corpus has no libpfm
// encoding table for onto their raw PERF_TYPE_RAW (umask<<8|event)
// config, per the Intel SDM event list events-intel.cpp otherwise
// pulls these from.
var rawEvents = map[string]uint64{
	"CYCLE_ACTIVITY.STALLS_L2_MISS": 0x14a3,
	"CYCLE_ACTIVITY.STALLS_L3_MISS": 0x06a3,
	"CYCLE_ACTIVITY.STALLS_TOTAL":   0x04a3,
	"LLC-load-misses":               0x412e,
	"LLC-loads":                     0x4f2e,
}

const (
	perfFormatTotalTimeEnabled = 1 << 0
	perfFormatTotalTimeRunning = 1 << 1
	perfFormatGroup            = 1 << 3

	perfEventIocEnable  = 0x2400
	perfEventIocDisable = 0x2401
	perfEventIocReset   = 0x2402
	perfIocFlagGroup    = 1
)

// perfEventAttr mirrors struct perf_event_attr from <linux/perf_event.h>,
// with the single-bit fields packed into bitfield by hand since the
// kernel ABI, not a Go-friendly struct, is load-bearing here.
type perfEventAttr struct {
	Type           uint32
	Size           uint32
	Config         uint64
	Sample         uint64
	SampleType     uint64
	ReadFormat     uint64
	Bitfield       uint64
	WakeupEvent    uint32
	BPType         uint32
	Config1        uint64
	Config2        uint64
	BranchType     uint64
	SampleRegsU    uint64
	SampleStack    uint32
	ClockID        int32
	SampleRegsI    uint64
	AuxWatermark   uint32
	SampleMaxStack uint16
	reserved2      uint16
}

const (
	bitDisabled     = 1 << 0
	bitInherit      = 1 << 1
	bitExcludeUser  = 1 << 4
	bitExcludeKrnl  = 1 << 5
	bitExcludeHV    = 1 << 6
	bitEnableOnExec = 1 << 12
)

func perfEventOpen(attr *perfEventAttr, pid, cpu, groupFD, flags int) (int, error) {
	r1, _, errno := unix.Syscall6(unix.SYS_PERF_EVENT_OPEN,
		uintptr(unsafe.Pointer(attr)),
		uintptr(pid), uintptr(cpu), uintptr(groupFD), uintptr(flags), 0)
	if errno != 0 {
		return -1, errno
	}
	return int(r1), nil
}

// eventConfig resolves an event-selector string to a perf_event_attr
// type/config pair.
func eventConfig(name string) (typ uint32, config uint64, err error) {
	switch name {
	case "cycles":
		return perfTypeHardware, perfCountHWCPUCycles, nil
	case "instructions":
		return perfTypeHardware, perfCountHWInstructions, nil
	}
	if cfg, ok := rawEvents[name]; ok {
		return perfTypeRaw, cfg, nil
	}
	return 0, 0, &UnknownEventError{Group: name}
}

// group is one pid's open perf_event file descriptors: fds[0] is the
// group leader, every other fd was opened against it.
type group struct {
	names []string
	fds   []int
}

// LinuxBackend is the production Backend, programming real hardware
// performance counters via perf_event_open(2), grounded on
// events-perf.cpp/libminiperf.c's group-leader setup/enable/disable/
// read/close lifecycle.
type LinuxBackend struct {
	mu     sync.Mutex
	groups map[int]*group
}

// NewLinuxBackend builds an empty backend. Each task's events are
// programmed lazily by SetupEvents.
func NewLinuxBackend() *LinuxBackend {
	return &LinuxBackend{groups: make(map[int]*group)}
}

func (b *LinuxBackend) SetupEvents(pid int, names []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if g, ok := b.groups[pid]; ok {
		closeGroup(g)
		delete(b.groups, pid)
	}

	g := &group{}
	leaderFD := -1
	for _, name := range names {
		typ, config, err := eventConfig(name)
		if err != nil {
			closeGroup(g)
			return err
		}
		attr := perfEventAttr{
			Type:       typ,
			Config:     config,
			ReadFormat: perfFormatTotalTimeEnabled | perfFormatTotalTimeRunning | perfFormatGroup,
			Bitfield:   bitInherit | bitExcludeHV,
		}
		attr.Size = uint32(unsafe.Sizeof(attr))
		if leaderFD == -1 {
			attr.Bitfield |= bitDisabled
		}
		fd, err := perfEventOpen(&attr, pid, -1, leaderFD, 0)
		if err != nil {
			closeGroup(g)
			return fmt.Errorf("perfbackend: perf_event_open(%s) for pid %d: %w", name, pid, err)
		}
		if leaderFD == -1 {
			leaderFD = fd
		}
		g.fds = append(g.fds, fd)
		g.names = append(g.names, name)
	}
	b.groups[pid] = g
	return nil
}

func (b *LinuxBackend) Enable(pid int) error {
	return b.ioctlLeader(pid, perfEventIocEnable)
}

func (b *LinuxBackend) Disable(pid int) error {
	return b.ioctlLeader(pid, perfEventIocDisable)
}

func (b *LinuxBackend) ioctlLeader(pid int, cmd int) error {
	b.mu.Lock()
	g, ok := b.groups[pid]
	b.mu.Unlock()
	if !ok || len(g.fds) == 0 {
		return fmt.Errorf("perfbackend: pid %d not set up", pid)
	}
	return unix.IoctlSetInt(g.fds[0], uint(cmd), perfIocFlagGroup)
}

// Read reads the group leader; the buffer holds nr, time_enabled,
// time_running, then nr values, per the PERF_FORMAT_GROUP layout
// without PERF_FORMAT_ID.
func (b *LinuxBackend) Read(pid int) ([]Reading, error) {
	b.mu.Lock()
	g, ok := b.groups[pid]
	b.mu.Unlock()
	if !ok || len(g.fds) == 0 {
		return nil, fmt.Errorf("perfbackend: pid %d not set up", pid)
	}

	buf := make([]byte, 8*(3+len(g.fds)))
	if _, err := unix.Read(g.fds[0], buf); err != nil {
		return nil, fmt.Errorf("perfbackend: reading group for pid %d: %w", pid, err)
	}
	words := bytesToUint64s(buf)
	enabled, running := words[1], words[2]

	readings := make([]Reading, len(g.names))
	for i, name := range g.names {
		readings[i] = Reading{
			Name:        name,
			Value:       words[3+i],
			Unit:        "count",
			EnabledTime: enabled,
			RunningTime: running,
		}
	}
	return readings, nil
}

func (b *LinuxBackend) Teardown(pid int) error {
	b.mu.Lock()
	g, ok := b.groups[pid]
	delete(b.groups, pid)
	b.mu.Unlock()
	if !ok {
		return nil
	}
	closeGroup(g)
	return nil
}

func closeGroup(g *group) {
	for _, fd := range g.fds {
		unix.Close(fd)
	}
	g.fds = nil
}

func bytesToUint64s(b []byte) []uint64 {
	out := make([]uint64, len(b)/8)
	for i := range out {
		out[i] = uint64(b[i*8]) | uint64(b[i*8+1])<<8 | uint64(b[i*8+2])<<16 | uint64(b[i*8+3])<<24 |
			uint64(b[i*8+4])<<32 | uint64(b[i*8+5])<<40 | uint64(b[i*8+6])<<48 | uint64(b[i*8+7])<<56
	}
	return out
}
