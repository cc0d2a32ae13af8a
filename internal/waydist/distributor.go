package waydist

import "github.com/vtselfa/manager-sub000/internal/cluster"

// Distributor is the WayDistributor contract of spec.md §4.2: given
// clusters already sorted by descending weight (heaviest first) and
// the cache geometry, produce one mask per cluster plus any leftover
// COS slots, which get the full mask.
type Distributor interface {
	Distribute(clusters []cluster.Cluster, numCOS int, maxWays uint32) ([]uint64, error)
}

// Static always returns the same fixed set of masks, ignoring the
// clustering entirely; it models cat_policy.name == "none" from
// cat-policy.cpp, where set_masks is never called.
type Static struct {
	Masks []uint64
}

func (s Static) Distribute(clusters []cluster.Cluster, numCOS int, maxWays uint32) ([]uint64, error) {
	out := make([]uint64, numCOS)
	full := uint64(1)<<maxWays - 1
	for i := range out {
		if i < len(s.Masks) {
			out[i] = s.Masks[i]
		} else {
			out[i] = full
		}
	}
	return out, nil
}

// DivideN gives the N heaviest clusters the narrowest legal slice of
// cache (MinWays, the hardware's min_cbm_bits) each, anchored to the
// high-order bits; every other cluster and COS 0 get the full mask, per
// spec.md §4.3's Divide-N variant.
type DivideN struct {
	N       int
	MinWays uint32
}

func (d DivideN) Distribute(clusters []cluster.Cluster, numCOS int, maxWays uint32) ([]uint64, error) {
	out := make([]uint64, numCOS)
	full := uint64(1)<<maxWays - 1
	for i := range out {
		out[i] = full
	}
	n := d.N
	if n > len(clusters) {
		n = len(clusters)
	}
	if n > numCOS {
		n = numCOS
	}
	for c := 0; c < n; c++ {
		out[c] = Mask(d.MinWays, maxWays, true)
	}
	return out, nil
}

// Parametric distributes ways according to one of the named curve
// models, evaluated against each cluster's centroid relative to the
// heaviest cluster's centroid, exactly as
// SlowfirstClusteredOptimallyAdjusted::apply does. Masks are packed
// from the low-order bit ("from the right") unless AlternateSides is
// set, in which case odd-indexed clusters pack from the high-order bit
// instead, so adjacent partitions don't always overlap on the same
// edge of the cache.
type Parametric struct {
	Model          Model
	MinWays        uint32
	AlternateSides bool
}

func (p Parametric) Distribute(clusters []cluster.Cluster, numCOS int, maxWays uint32) ([]uint64, error) {
	out := make([]uint64, numCOS)
	full := uint64(1)<<maxWays - 1
	for i := range out {
		out[i] = full
	}
	if len(clusters) == 0 {
		return out, nil
	}
	heaviest := clusters[0].Centroid[0]

	for c, cl := range clusters {
		if c >= numCOS {
			break
		}
		x := 1.0
		if heaviest != 0 {
			x = cl.Centroid[0] / heaviest
		}
		ways, err := Ways(p.Model, x, p.MinWays, maxWays)
		if err != nil {
			return nil, err
		}
		fromLeft := p.AlternateSides && c%2 == 1
		out[c] = Mask(ways, maxWays, fromLeft)
	}
	return out, nil
}
