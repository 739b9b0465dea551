// ABOUTME: GraphOptions — the Graph-level configuration surface (§6)

package graph

// AdjacencyBackend selects whether edges are located only through IFA, or
// additionally mirrored into a B-tree index kept consistent with it (§4.6
// "Dual-mode invariant").
type AdjacencyBackend int

const (
	// IFAOnly uses index-free adjacency exclusively.
	IFAOnly AdjacencyBackend = iota
	// Dual additionally mirrors every edge into a B-tree keyed by
	// (src,type,dst,edge_id), checked against IFA by pkg/verify's Full level.
	Dual
)

// VacuumOptions configures the background vacuum worker (§4.8).
type VacuumOptions struct {
	Enabled           bool
	Interval          int // milliseconds
	RetentionWindow   uint64
	LogHighWaterBytes int64
	MaxPagesPerPass   int
	MaxMillisPerPass  int
	IndexCleanup      bool
}

// DefaultVacuumOptions returns a conservative, always-safe configuration.
func DefaultVacuumOptions() VacuumOptions {
	return VacuumOptions{
		Enabled:          true,
		Interval:         30_000,
		MaxPagesPerPass:  2000,
		MaxMillisPerPass: 100,
		IndexCleanup:     true,
	}
}

// Options configures a Graph (§6 "GraphOptions").
type Options struct {
	InlinePropBlob   uint32
	InlinePropValue  uint32
	DegreeCache      bool
	AdjacencyBackend AdjacencyBackend
	Vacuum           VacuumOptions
}

// DefaultOptions mirrors the Meta thresholds a fresh Pager.Create writes.
func DefaultOptions() Options {
	return Options{
		InlinePropBlob:   256,
		InlinePropValue:  4096,
		DegreeCache:      false,
		AdjacencyBackend: IFAOnly,
		Vacuum:           DefaultVacuumOptions(),
	}
}
