// Package stats models the per-task hardware-counter bundle sampled
// every control interval, and a rolling/lifetime aggregator over it.
package stats

// Stats is one sampling window's worth of per-task hardware counters.
// Extensive counters (Microseconds, Instructions, Cycles,
// InvariantCycles, MemReadGB/MemWriteGB, ProcEnergyJ/DRAMEnergyJ) sum
// across windows; the derived rates (IPC, IPNC, RelFreq) are weighted
// means, weight = InvariantCycles, per spec.md §3.
type Stats struct {
	Microseconds    uint64
	Instructions    uint64
	Cycles          uint64
	InvariantCycles uint64
	IPC             float64
	IPNC            float64
	RelFreq         float64
	ActRelFreq      float64
	LLCOccupancyKB  uint64
	MemReadGB       float64
	MemWriteGB      float64
	ProcEnergyJ     float64
	DRAMEnergyJ     float64

	// Events holds named hardware-event running sums, e.g.
	// "CYCLE_ACTIVITY.STALLS_TOTAL" -> accumulated count.
	Events map[string]uint64
}

// Add combines two windows: extensive fields sum, rate fields take the
// invariant-cycle-weighted mean (falling back to a simple average when
// both windows have zero invariant cycles, e.g. before any sample has
// been taken).
func (s Stats) Add(o Stats) Stats {
	r := Stats{
		Microseconds:    s.Microseconds + o.Microseconds,
		Instructions:    s.Instructions + o.Instructions,
		Cycles:          s.Cycles + o.Cycles,
		InvariantCycles: s.InvariantCycles + o.InvariantCycles,
		LLCOccupancyKB:  s.LLCOccupancyKB + o.LLCOccupancyKB,
		MemReadGB:       s.MemReadGB + o.MemReadGB,
		MemWriteGB:      s.MemWriteGB + o.MemWriteGB,
		ProcEnergyJ:     s.ProcEnergyJ + o.ProcEnergyJ,
		DRAMEnergyJ:     s.DRAMEnergyJ + o.DRAMEnergyJ,
	}
	r.IPC = weightedMean(s.IPC, float64(s.InvariantCycles), o.IPC, float64(o.InvariantCycles))
	r.IPNC = weightedMean(s.IPNC, float64(s.InvariantCycles), o.IPNC, float64(o.InvariantCycles))
	r.RelFreq = weightedMean(s.RelFreq, float64(s.InvariantCycles), o.RelFreq, float64(o.InvariantCycles))
	r.ActRelFreq = weightedMean(s.ActRelFreq, float64(s.InvariantCycles), o.ActRelFreq, float64(o.InvariantCycles))

	if len(s.Events) > 0 || len(o.Events) > 0 {
		r.Events = make(map[string]uint64, len(s.Events)+len(o.Events))
		for k, v := range s.Events {
			r.Events[k] = v
		}
		for k, v := range o.Events {
			r.Events[k] += v
		}
	}
	return r
}

func weightedMean(a, wa, b, wb float64) float64 {
	if wa+wb == 0 {
		return (a + b) / 2
	}
	return (a*wa + b*wb) / (wa + wb)
}

// Event returns the running sum for a named hardware event, and
// whether it was present at all (distinguishing "not tracked" from
// "tracked, currently zero").
func (s Stats) Event(name string) (uint64, bool) {
	v, ok := s.Events[name]
	return v, ok
}
