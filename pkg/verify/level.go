// ABOUTME: Verify levels and finding severities for the integrity-check
// ABOUTME: pass consumed by the out-of-scope admin `verify` surface (§4.9)

package verify

import "fmt"

// Level selects how deep a Verify pass digs.
type Level int

const (
	// ChecksumOnly verifies every page's CRC32 (§4.9).
	ChecksumOnly Level = iota
	// Structure additionally resolves every node and edge id's head
	// version and decodes its record under the snapshot. B-tree
	// invariants and the kind stamped on each page are not checked.
	Structure
	// Full additionally cross-checks adjacency against the edge table,
	// and (when the Graph was opened with the Dual adjacency backend) the
	// dual-mode B-tree mirror against IFA (§4.6 "dual mode invariant").
	Full
)

func (l Level) String() string {
	switch l {
	case ChecksumOnly:
		return "ChecksumOnly"
	case Structure:
		return "Structure"
	case Full:
		return "Full"
	default:
		return fmt.Sprintf("Level(%d)", int(l))
	}
}

// Severity classifies one Finding.
type Severity int

const (
	Info Severity = iota
	Warning
	Error
)

func (s Severity) String() string {
	switch s {
	case Info:
		return "Info"
	case Warning:
		return "Warning"
	case Error:
		return "Error"
	default:
		return fmt.Sprintf("Severity(%d)", int(s))
	}
}
