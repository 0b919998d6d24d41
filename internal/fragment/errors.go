package fragment

import (
	"errors"
	"fmt"
)

var (
	// ErrParse marks malformed fragment identifiers and view names.
	ErrParse = errors.New("fragment identifier parse error")
	// ErrDuplicatePair marks a child identifier that would repeat a pair key.
	ErrDuplicatePair = errors.New("duplicate fragment pair")
	// ErrNotFound is returned by repositories for unknown fragments.
	ErrNotFound = errors.New("fragment not found")
)

// ParseError reports the original string that failed to parse.
type ParseError struct {
	Input string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("could not parse fragment identifier %q", e.Input)
}

func (e *ParseError) Unwrap() error { return ErrParse }

// DuplicatePairError identifies the parent identifier and the colliding key.
type DuplicatePairError struct {
	ID  string
	Key string
}

func (e *DuplicatePairError) Error() string {
	return fmt.Sprintf("fragment %s already has a pair with key %q", e.ID, e.Key)
}

func (e *DuplicatePairError) Unwrap() error { return ErrDuplicatePair }
