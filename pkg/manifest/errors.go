package manifest

import "fmt"

// ParseError records a malformed document. Parse errors are collected
// across the whole load rather than aborting on the first one.
type ParseError struct {
	// Source is the file path the document came from.
	Source string `json:"source"`

	// Line is the approximate line the document starts on.
	Line int `json:"line"`

	// Message describes what was wrong with the document.
	Message string `json:"message"`
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d: %s", e.Source, e.Line, e.Message)
}

// IOError records an unreadable source. It is fatal only when the load
// ends with zero resources.
type IOError struct {
	Source string `json:"source"`
	Err    error  `json:"-"`
}

func (e *IOError) Error() string {
	return fmt.Sprintf("unreadable source %s: %v", e.Source, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}
