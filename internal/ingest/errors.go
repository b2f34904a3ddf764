package ingest

import "fmt"

// PersistenceError is a storage failure while writing one file.
type PersistenceError struct {
	Folder string
	File   string
	Err    error
}

// Error implements the error interface
func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s/%s: %v", e.Folder, e.File, e.Err)
}

// Unwrap returns the underlying error
func (e *PersistenceError) Unwrap() error {
	return e.Err
}
