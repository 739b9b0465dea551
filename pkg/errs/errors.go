// Package errs defines the storage-core error taxonomy (§7): Io,
// Corruption, Invalid, NotFound, Conflict. Callers use errors.As to
// recover the Kind without string matching.
package errs

import "fmt"

// Kind classifies a storage-core failure.
type Kind int

const (
	// Io covers filesystem/OS failures: read, write, fsync, open.
	Io Kind = iota
	// Corruption covers CRC mismatches, bad magic/salt, and a poisoned
	// writer lock surfacing to subsequent callers after a panic mid-commit.
	Corruption
	// Invalid covers malformed requests: bad page size, out-of-range ids,
	// violated preconditions.
	Invalid
	// NotFound covers lookups that resolve to nothing under the caller's
	// snapshot.
	NotFound
	// Conflict is reserved for a future multi-writer mode; the single
	// writer model (§5) never produces it today.
	Conflict
)

func (k Kind) String() string {
	switch k {
	case Io:
		return "Io"
	case Corruption:
		return "Corruption"
	case Invalid:
		return "Invalid"
	case NotFound:
		return "NotFound"
	case Conflict:
		return "Conflict"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Error wraps an underlying cause with a taxonomy Kind.
type Error struct {
	Kind Kind
	Op   string // the operation that failed, e.g. "pager.Commit"
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an *Error of the given kind.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if ae, ok := err.(*Error); ok {
			e = ae
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return e != nil && e.Kind == kind
}
