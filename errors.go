package norstore

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies storage failures.
type Kind int

const (
	KindTransport   Kind = iota + 1 // SPI or chip-select failure
	KindTimeout                     // busy bit never cleared
	KindAlignment                   // misaligned address, length or record size
	KindRegionFull                  // region or descriptor array exhausted
	KindOutOfBounds                 // index or address outside the region
	KindBlank                       // block read back as erased flash
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport fault"
	case KindTimeout:
		return "busy timeout"
	case KindAlignment:
		return "alignment violation"
	case KindRegionFull:
		return "region full"
	case KindOutOfBounds:
		return "out of bounds"
	case KindBlank:
		return "blank block"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error lets a Kind be used as an errors.Is target.
func (k Kind) Error() string { return k.String() }

// Error is returned by every operation of this package.
type Error struct {
	Kind Kind
	Op   string
	Addr int // -1 if not applicable
	Err  error
}

func (e *Error) Error() string {
	s := e.Op + ": " + e.Kind.String()
	if e.Addr >= 0 {
		s += fmt.Sprintf(" at 0x%06X", e.Addr)
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the Kind of e.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

func newError(kind Kind, op string, addr int, err error) error {
	return &Error{Kind: kind, Op: op, Addr: addr, Err: err}
}

func errorf(kind Kind, op string, addr int, format string, a ...any) error {
	return &Error{Kind: kind, Op: op, Addr: addr, Err: errors.Errorf(format, a...)}
}

// IsKind reports whether err, or any error it wraps, carries kind.
func IsKind(err error, kind Kind) bool {
	return errors.Is(err, kind)
}

// KindOf returns the Kind of err, or 0 if err was not produced by this package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
