package job

import "fmt"

// ValidationError rejects a job at construction time, before any work
// has been scheduled.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string { return fmt.Sprintf("invalid job inputs: %v", e.Err) }
func (e *ValidationError) Unwrap() error { return e.Err }
