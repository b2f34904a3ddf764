package outlier

import "fmt"

// UnknownSignalError reports a descriptor with no classification entry.
type UnknownSignalError struct {
	Descriptor Descriptor
	Label      string
}

// Error implements the error interface
func (e *UnknownSignalError) Error() string {
	if e.Label != "" {
		return fmt.Sprintf("unknown signal descriptor %q", e.Label)
	}
	return fmt.Sprintf("unknown signal descriptor %d", uint8(e.Descriptor))
}
