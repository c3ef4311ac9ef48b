package catalog

import (
	"errors"
	"fmt"
)

var (
	ErrMissingKey    = errors.New("missing required key")
	ErrInvalidValue  = errors.New("invalid value")
	ErrEmptyVersions = errors.New("at least one version is required")
	ErrDuplicateApp  = errors.New("duplicate bundle identifier")
)

// DecodeError locates a decoding failure inside a catalog document. Path is a
// JSON-ish location such as "apps[2].versions[0]".
type DecodeError struct {
	Path   string
	Key    string
	Detail string
	Err    error
}

func (e *DecodeError) Error() string {
	loc := e.Location()
	if loc == "" {
		loc = "document"
	}
	if e.Detail != "" {
		return fmt.Sprintf("%s: %v: %s", loc, e.Err, e.Detail)
	}
	return fmt.Sprintf("%s: %v", loc, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Location is Path joined with Key.
func (e *DecodeError) Location() string {
	switch {
	case e.Path == "":
		return e.Key
	case e.Key == "":
		return e.Path
	default:
		return e.Path + "." + e.Key
	}
}

func missing(path, key string) error {
	return &DecodeError{Path: path, Key: key, Err: ErrMissingKey}
}

func invalid(path, key, format string, args ...any) error {
	return &DecodeError{Path: path, Key: key, Err: ErrInvalidValue, Detail: fmt.Sprintf(format, args...)}
}
