// Package errz defines the error taxonomy of the assembler.
//
// Every failure is local to one unit of assembly and none is retried:
//
//   - ErrSizeOverflow: the input is too large for the target format (too many
//     handler lists, an oversized try range, an unaddressable method).
//   - ErrChainExhausted: no wider encoding exists for an instruction.
//   - ErrInvariant: a programming error in the caller or the assembler. These
//     are raised with panic via Invariantf rather than returned.
//   - ErrDebugMismatch: the debug-info encoder produced a stream that does not
//     decode back to its input.
package errz

import (
	"bytes"
	"fmt"
)

// ErrorKind represents the category of an error.
type ErrorKind int

const (
	// ErrSizeOverflow indicates the input exceeds a field width of the format.
	ErrSizeOverflow ErrorKind = iota
	// ErrChainExhausted indicates an instruction has no wide enough encoding.
	ErrChainExhausted
	// ErrInvariant indicates a broken precondition or internal invariant.
	ErrInvariant
	// ErrDebugMismatch indicates a debug-info round trip failure.
	ErrDebugMismatch
)

// String returns the string representation of the error kind.
func (k ErrorKind) String() string {
	switch k {
	case ErrSizeOverflow:
		return "size overflow"
	case ErrChainExhausted:
		return "encoding chain exhausted"
	case ErrInvariant:
		return "invariant violation"
	case ErrDebugMismatch:
		return "debug info mismatch"
	default:
		return "error"
	}
}

// Location pins an error to a spot in a method body. Fields that do not
// apply are negative.
type Location struct {
	Address  int
	Line     int
	Register int
}

// NoLocation is the zero-information location.
var NoLocation = Location{Address: -1, Line: -1, Register: -1}

// IsZero returns true if no field of the location is set.
func (l Location) IsZero() bool {
	return l.Address < 0 && l.Line < 0 && l.Register < 0
}

func (l Location) String() string {
	var buf bytes.Buffer
	if l.Address >= 0 {
		fmt.Fprintf(&buf, "address %04x", l.Address)
	}
	if l.Line >= 0 {
		if buf.Len() > 0 {
			buf.WriteString(", ")
		}
		fmt.Fprintf(&buf, "line %d", l.Line)
	}
	if l.Register >= 0 {
		if buf.Len() > 0 {
			buf.WriteString(", ")
		}
		fmt.Fprintf(&buf, "v%d", l.Register)
	}
	return buf.String()
}

// AssemblyError is the error type returned by every assembler package.
type AssemblyError struct {
	Message  string
	Kind     ErrorKind
	Location Location
	// Method names the method being assembled, when known.
	Method string
	Cause  error
}

// Error implements the error interface.
func (e *AssemblyError) Error() string {
	var buf bytes.Buffer
	buf.WriteString(e.Kind.String())
	buf.WriteString(": ")
	buf.WriteString(e.Message)
	if !e.Location.IsZero() {
		fmt.Fprintf(&buf, " (%s)", e.Location)
	}
	if e.Method != "" {
		fmt.Fprintf(&buf, " in %s", e.Method)
	}
	if e.Cause != nil {
		fmt.Fprintf(&buf, ": %s", e.Cause)
	}
	return buf.String()
}

// Unwrap returns the underlying cause of the error.
func (e *AssemblyError) Unwrap() error {
	return e.Cause
}

// IsFatal returns whether the error is considered fatal (unrecoverable).
// Every assembly failure aborts the unit that raised it.
func (e *AssemblyError) IsFatal() bool {
	return true
}

// Is reports whether target is an *AssemblyError of the same kind, so that
// errors.Is(err, errz.New(errz.ErrSizeOverflow, "")) matches any overflow.
func (e *AssemblyError) Is(target error) bool {
	t, ok := target.(*AssemblyError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

// WithCause wraps the error with a cause.
func (e *AssemblyError) WithCause(cause error) *AssemblyError {
	e.Cause = cause
	return e
}

// WithLocation attaches a location to the error.
func (e *AssemblyError) WithLocation(loc Location) *AssemblyError {
	e.Location = loc
	return e
}

// WithAddress attaches an instruction address to the error.
func (e *AssemblyError) WithAddress(address int) *AssemblyError {
	e.Location.Address = address
	return e
}

// WithMethod records the method being assembled.
func (e *AssemblyError) WithMethod(method string) *AssemblyError {
	e.Method = method
	return e
}

// New creates a new AssemblyError.
func New(kind ErrorKind, message string) *AssemblyError {
	return &AssemblyError{
		Message:  message,
		Kind:     kind,
		Location: NoLocation,
	}
}

// Newf creates a new AssemblyError with a formatted message.
func Newf(kind ErrorKind, format string, args ...any) *AssemblyError {
	return New(kind, fmt.Sprintf(format, args...))
}

// Invariantf panics with an ErrInvariant error.
func Invariantf(format string, args ...any) {
	panic(Newf(ErrInvariant, format, args...))
}

// KindOf returns the kind of err if it is (or wraps) an *AssemblyError.
func KindOf(err error) (ErrorKind, bool) {
	for err != nil {
		if e, ok := err.(*AssemblyError); ok {
			return e.Kind, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return 0, false
		}
		err = u.Unwrap()
	}
	return 0, false
}
