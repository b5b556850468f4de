package core

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration reports a bad input/output root or an invalid option. Fatal.
	ErrConfiguration = errors.New("configuration error")
	// ErrLoad reports an unreadable, malformed or unsupported input mesh.
	ErrLoad = errors.New("load error")
	// ErrDecimation reports a failure inside the decimation engine.
	ErrDecimation = errors.New("decimation error")
	// ErrWrite reports an I/O failure while writing or mirroring an output mesh.
	ErrWrite = errors.New("write error")
	// ErrIO reports a failure to create an output directory.
	ErrIO = errors.New("io error")
)

// PathError ties one of the error kinds above to the file being processed.
type PathError struct {
	Kind  error
	Path  string
	Stage string
	Err   error
}

func NewPathError(kind error, path string, err error) *PathError {
	return &PathError{Kind: kind, Path: path, Err: err}
}

func (e *PathError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%v: %s", e.Kind, e.Path)
	}
	return fmt.Sprintf("%v: %s: %v", e.Kind, e.Path, e.Err)
}

func (e *PathError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Configurationf builds an ErrConfiguration with a formatted reason.
func Configurationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// Kind returns the sentinel err belongs to, or nil if it matches none.
func Kind(err error) error {
	for _, k := range []error{ErrConfiguration, ErrLoad, ErrDecimation, ErrWrite, ErrIO} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
