package bindgen

import (
	"errors"
	"fmt"
)

// Failure kinds, matched with errors.Is. Both are fatal.
var (
	ErrParseFailed = errors.New("header parse failed")
	ErrWriteFailed = errors.New("binding write failed")
)

// Error reports a binding generation failure.
type Error struct {
	Kind error
	Path string
	Line int // 0 if unknown
	Err  error
}

func (e *Error) Error() string {
	loc := e.Path
	if e.Line > 0 {
		loc = fmt.Sprintf("%s:%d", e.Path, e.Line)
	}
	return fmt.Sprintf("bindgen: %v: %s: %v", e.Kind, loc, e.Err)
}

func (e *Error) Unwrap() []error { return []error{e.Kind, e.Err} }

func parseError(path string, line int, format string, args ...any) error {
	return &Error{Kind: ErrParseFailed, Path: path, Line: line, Err: fmt.Errorf(format, args...)}
}
