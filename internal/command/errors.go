package command

import (
	"fmt"
	"strings"
)

// ResponseValidationError rejects a whole response because one or more
// tasks returned an error code the task does not accept.
type ResponseValidationError struct {
	Offenders []string
}

func (e *ResponseValidationError) Error() string {
	return fmt.Sprintf("Encountered a failure running remote commands: %s",
		strings.Join(e.Offenders, "; "))
}

// CatalogPersistError wraps a failed write to the catalog store.
type CatalogPersistError struct {
	Source string
	Err    error
}

func (e *CatalogPersistError) Error() string {
	return fmt.Sprintf("failed to catalog %s output: %v", e.Source, e.Err)
}
func (e *CatalogPersistError) Unwrap() error { return e.Err }
