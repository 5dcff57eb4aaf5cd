package engine

import (
	"errors"
	"fmt"
)

// Kind classifies per-record conversion failures.
type Kind int

const (
	KindUnsupportedType Kind = iota + 1 // source is not an image
	KindCorruptImage                    // decode failed
	KindEncodeRefused                   // codec declined the target format
	KindEncodeError                     // unexpected failure during render or encode
)

func (k Kind) String() string {
	switch k {
	case KindUnsupportedType:
		return "UnsupportedType"
	case KindCorruptImage:
		return "CorruptImage"
	case KindEncodeRefused:
		return "EncodeRefused"
	case KindEncodeError:
		return "EncodeError"
	}
	return "Unknown"
}

// Sentinels matched by errors.Is against any *Error of the same kind.
var (
	ErrUnsupportedType = errors.New("file is not an image")
	ErrCorruptImage    = errors.New("image data could not be decoded")
	ErrEncodeRefused   = errors.New("codec refused the target format")
	ErrEncodeError     = errors.New("conversion failed")

	// ErrReleased is wrapped when a handle is used after Release.
	ErrReleased = errors.New("handle already released")
)

func (k Kind) sentinel() error {
	switch k {
	case KindUnsupportedType:
		return ErrUnsupportedType
	case KindCorruptImage:
		return ErrCorruptImage
	case KindEncodeRefused:
		return ErrEncodeRefused
	case KindEncodeError:
		return ErrEncodeError
	}
	return nil
}

// Error is the typed failure returned by Decode and Convert.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Op, e.Kind.sentinel())
	}
	return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports a match against the sentinel for e.Kind.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the failure kind from err.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
