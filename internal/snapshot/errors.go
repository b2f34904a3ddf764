package snapshot

import "fmt"

// MissingSnapshotError is returned when no usable file exists for a category.
type MissingSnapshotError struct {
	Folder   string
	Category Category
	Reason   string
}

// Error implements the error interface
func (e *MissingSnapshotError) Error() string {
	return fmt.Sprintf("no %s snapshot in %s: %s", e.Category, e.Folder, e.Reason)
}

// ParseError describes a row that could not be decoded.
type ParseError struct {
	File   string
	Line   int
	Column string
	Err    error
}

// Error implements the error interface
func (e *ParseError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("%s:%d: column %s: %v", e.File, e.Line, e.Column, e.Err)
	}
	return fmt.Sprintf("%s:%d: %v", e.File, e.Line, e.Err)
}

// Unwrap returns the underlying error
func (e *ParseError) Unwrap() error {
	return e.Err
}
