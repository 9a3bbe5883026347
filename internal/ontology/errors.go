package ontology

import (
	"errors"
	"fmt"
)

// Error codes of LoadError.
const (
	ErrCodeNotFound    = "E005" // input path or pattern matched nothing
	ErrCodeParse       = "E201" // YAML or CUE syntax error
	ErrCodeSchema      = "E202" // document shape error
	ErrCodeUnsupported = "E203" // unknown file extension
	ErrCodeWrite       = "E204" // store write failed
)

// LoadError is a problem with one ontology input.
type LoadError struct {
	Code    string
	Path    string
	Line    int
	Column  int
	Message string
	Err     error
}

func (e *LoadError) Error() string {
	loc := e.Path
	if e.Line > 0 {
		loc = fmt.Sprintf("%s:%d:%d", e.Path, e.Line, e.Column)
	}
	if loc != "" {
		return fmt.Sprintf("%s: %s: %s", loc, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *LoadError) Unwrap() error { return e.Err }

// withPath attaches path to err, turning foreign errors into a LoadError
// with the given code.
func withPath(path, code string, err error) error {
	var le *LoadError
	if errors.As(err, &le) {
		if le.Path == "" {
			le.Path = path
		}
		return le
	}
	return &LoadError{Code: code, Path: path, Message: err.Error(), Err: err}
}
