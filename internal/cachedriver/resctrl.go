package cachedriver

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// ResctrlDriver implements Driver against the Linux resctrl
// pseudo-filesystem, normally mounted at /sys/fs/resctrl. It models
// each class of service (COS) as a subdirectory holding a schemata
// file (the L3 cache bitmask), a cpus file (the CPU affinity mask) and
// a tasks file (the pinned PIDs), mirroring the layout read by
// original_source's cat-linux.cpp.
//
// COS 0 is the root directory and always exists; COS 1..MaxCOS-1 are
// created/removed by Reset.
type ResctrlDriver struct {
	root string
	info CacheInfo
	init bool
}

// NewResctrlDriver builds a driver rooted at the given resctrl mount
// point. Tests pass a temporary directory standing in for the kernel
// pseudo-filesystem; production wiring passes "/sys/fs/resctrl".
func NewResctrlDriver(root string) *ResctrlDriver {
	return &ResctrlDriver{root: root}
}

// cosDir names a non-root COS directory by its bare decimal id (e.g.
// "1", "2"), matching original_source's create_clos(std::to_string(i))
// -- real resctrl tooling (pqos) expects this naming, not a prefixed
// one.
func (d *ResctrlDriver) cosDir(cos int) string {
	if cos == 0 {
		return d.root
	}
	return filepath.Join(d.root, strconv.Itoa(cos))
}

func (d *ResctrlDriver) ioErr(path string, err error) error {
	return &DriverIOError{Path: path, Err: err}
}

// Init discovers the cache geometry from the info/L3 directory and
// validates the mount is usable.
func (d *ResctrlDriver) Init() error {
	infoDir := filepath.Join(d.root, "info", "L3")

	cbmPath := filepath.Join(infoDir, "cbm_mask")
	cbmRaw, err := os.ReadFile(cbmPath)
	if err != nil {
		return d.ioErr(cbmPath, err)
	}
	cbm, err := strconv.ParseUint(strings.TrimSpace(string(cbmRaw)), 16, 64)
	if err != nil {
		return d.ioErr(cbmPath, err)
	}

	minPath := filepath.Join(infoDir, "min_cbm_bits")
	minRaw, err := os.ReadFile(minPath)
	if err != nil {
		return d.ioErr(minPath, err)
	}
	minBits, err := strconv.ParseUint(strings.TrimSpace(string(minRaw)), 10, 32)
	if err != nil {
		return d.ioErr(minPath, err)
	}

	numPath := filepath.Join(infoDir, "num_closids")
	numRaw, err := os.ReadFile(numPath)
	if err != nil {
		return d.ioErr(numPath, err)
	}
	numClosids, err := strconv.ParseUint(strings.TrimSpace(string(numRaw)), 10, 32)
	if err != nil {
		return d.ioErr(numPath, err)
	}

	d.info = CacheInfo{
		CBMMask:    cbm,
		MinCBMBits: uint32(minBits),
		NumClosids: uint32(numClosids),
	}
	d.init = true
	return nil
}

// Reset snapshots the current COS directories, removes every
// non-root one and recreates them with the full cache mask, per
// spec.md §4.1's "snapshot, then delete, then recreate" teardown
// protocol.
func (d *ResctrlDriver) Reset() error {
	if !d.init {
		return ErrNotInitialized
	}
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return d.ioErr(d.root, err)
	}
	var cosIDs []int
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if id, err := strconv.Atoi(e.Name()); err == nil && id > 0 {
			cosIDs = append(cosIDs, id)
		}
	}
	sort.Ints(cosIDs)
	for _, id := range cosIDs {
		p := filepath.Join(d.root, strconv.Itoa(id))
		if err := os.RemoveAll(p); err != nil {
			return d.ioErr(p, err)
		}
	}
	for cos := 1; cos < int(d.info.NumClosids); cos++ {
		if err := d.createCOS(cos); err != nil {
			return err
		}
	}
	return d.SetWays(0, d.info.CBMMask)
}

func (d *ResctrlDriver) createCOS(cos int) error {
	p := d.cosDir(cos)
	if err := os.MkdirAll(p, 0755); err != nil {
		return d.ioErr(p, err)
	}
	return d.SetWays(cos, d.info.CBMMask)
}

// SetWays writes the schemata file for a COS. The mask is validated
// against the cache geometry before being written.
func (d *ResctrlDriver) SetWays(cos int, mask uint64) error {
	if !d.init {
		return ErrNotInitialized
	}
	if err := validateMask(mask, d.info.CBMMask, d.info.MinCBMBits); err != nil {
		return err
	}
	p := filepath.Join(d.cosDir(cos), "schemata")
	line := fmt.Sprintf("L3:0=%x\n", mask)
	if err := os.WriteFile(p, []byte(line), 0644); err != nil {
		return d.ioErr(p, err)
	}
	return nil
}

// GetWays reads back the schemata file and reports the mask currently
// assigned to a COS.
func (d *ResctrlDriver) GetWays(cos int) (uint64, error) {
	if !d.init {
		return 0, ErrNotInitialized
	}
	p := filepath.Join(d.cosDir(cos), "schemata")
	raw, err := os.ReadFile(p)
	if err != nil {
		return 0, d.ioErr(p, err)
	}
	return parseSchemata(string(raw))
}

// parseSchemata extracts the L3 mask from a line shaped like
// "L3:0=ffc00;1=003ff" (per-socket domains); this driver only tracks
// domain 0, matching a single-socket target machine.
func parseSchemata(raw string) (uint64, error) {
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "L3:") {
			continue
		}
		body := strings.TrimPrefix(line, "L3:")
		for _, domain := range strings.Split(body, ";") {
			kv := strings.SplitN(domain, "=", 2)
			if len(kv) != 2 {
				continue
			}
			if strings.TrimSpace(kv[0]) == "0" {
				return strconv.ParseUint(strings.TrimSpace(kv[1]), 16, 64)
			}
		}
	}
	return 0, fmt.Errorf("cache driver: no L3 domain 0 in schemata %q", raw)
}

// AssignCPU pins a CPU to a COS. Per spec.md §4.1 the cpus file holds a
// hex CPU bitmask, and a CPU belongs to exactly one COS at a time, so
// the bit is cleared from every other COS's mask before being set here
// -- the same move-on-write semantics the real resctrl cpus file
// enforces in the kernel, reproduced explicitly since this driver also
// runs against a plain-directory pseudo-FS in tests.
func (d *ResctrlDriver) AssignCPU(cos int, cpu int) error {
	if !d.init {
		return ErrNotInitialized
	}
	bit := uint64(1) << uint(cpu)
	for c := 0; c < int(d.info.NumClosids); c++ {
		mask, err := d.readCPUMask(c)
		if err != nil {
			return err
		}
		var want uint64
		if c == cos {
			want = mask | bit
		} else {
			want = mask &^ bit
		}
		if want == mask {
			continue
		}
		if err := d.writeCPUMask(c, want); err != nil {
			return err
		}
	}
	return nil
}

func (d *ResctrlDriver) readCPUMask(cos int) (uint64, error) {
	p := filepath.Join(d.cosDir(cos), "cpus")
	raw, err := os.ReadFile(p)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, d.ioErr(p, err)
	}
	s := strings.TrimSpace(string(raw))
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, d.ioErr(p, err)
	}
	return v, nil
}

func (d *ResctrlDriver) writeCPUMask(cos int, mask uint64) error {
	p := filepath.Join(d.cosDir(cos), "cpus")
	if err := os.WriteFile(p, []byte(fmt.Sprintf("%x\n", mask)), 0644); err != nil {
		return d.ioErr(p, err)
	}
	return nil
}

// AssignTask pins a PID to a COS. A PID is a member of exactly one COS
// at a time; per spec.md §4.1 a write to a tasks file moves the PID
// there, implicitly removing it from whatever COS previously owned it
// (spec.md §9's open question (b)) -- reproduced explicitly here for
// the same reason AssignCPU reproduces the cpus move semantics.
func (d *ResctrlDriver) AssignTask(cos int, pid int) error {
	if !d.init {
		return ErrNotInitialized
	}
	for c := 0; c < int(d.info.NumClosids); c++ {
		if c == cos {
			continue
		}
		if err := d.removeTaskFrom(c, pid); err != nil {
			return err
		}
	}
	p := filepath.Join(d.cosDir(cos), "tasks")
	pids, err := d.readTasks(cos)
	if err != nil {
		return err
	}
	for _, existing := range pids {
		if existing == pid {
			return nil
		}
	}
	pids = append(pids, pid)
	return d.writeTasks(p, pids)
}

func (d *ResctrlDriver) readTasks(cos int) ([]int, error) {
	p := filepath.Join(d.cosDir(cos), "tasks")
	raw, err := os.ReadFile(p)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, d.ioErr(p, err)
	}
	var pids []int
	for _, f := range strings.Fields(string(raw)) {
		v, err := strconv.Atoi(f)
		if err == nil {
			pids = append(pids, v)
		}
	}
	return pids, nil
}

func (d *ResctrlDriver) writeTasks(path string, pids []int) error {
	var sb strings.Builder
	for _, p := range pids {
		fmt.Fprintf(&sb, "%d\n", p)
	}
	if err := os.WriteFile(path, []byte(sb.String()), 0644); err != nil {
		return d.ioErr(path, err)
	}
	return nil
}

func (d *ResctrlDriver) removeTaskFrom(cos int, pid int) error {
	pids, err := d.readTasks(cos)
	if err != nil {
		return err
	}
	out := pids[:0]
	changed := false
	for _, p := range pids {
		if p == pid {
			changed = true
			continue
		}
		out = append(out, p)
	}
	if !changed {
		return nil
	}
	return d.writeTasks(filepath.Join(d.cosDir(cos), "tasks"), out)
}

// COSOfCPU scans every COS's cpus mask for the given CPU.
func (d *ResctrlDriver) COSOfCPU(cpu int) (int, error) {
	return d.scanCOS(func(cos int) (bool, error) {
		mask, err := d.readCPUMask(cos)
		if err != nil {
			return false, err
		}
		return mask&(uint64(1)<<uint(cpu)) != 0, nil
	})
}

// COSOfTask scans every COS's tasks file for the given PID.
func (d *ResctrlDriver) COSOfTask(pid int) (int, error) {
	return d.scanCOS(func(cos int) (bool, error) {
		pids, err := d.readTasks(cos)
		if err != nil {
			return false, err
		}
		for _, v := range pids {
			if v == pid {
				return true, nil
			}
		}
		return false, nil
	})
}

func (d *ResctrlDriver) scanCOS(match func(cos int) (bool, error)) (int, error) {
	if !d.init {
		return 0, ErrNotInitialized
	}
	for cos := 0; cos < int(d.info.NumClosids); cos++ {
		found, err := match(cos)
		if err != nil {
			return 0, err
		}
		if found {
			return cos, nil
		}
	}
	return 0, nil
}

// MaxCOS returns the number of class-of-service slots the hardware
// exposes.
func (d *ResctrlDriver) MaxCOS() int {
	return int(d.info.NumClosids)
}

// Info returns the cache geometry discovered at Init.
func (d *ResctrlDriver) Info() CacheInfo {
	return d.info
}

