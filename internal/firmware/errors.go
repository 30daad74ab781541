package firmware

import "fmt"

// ModeValidationError means the translated mode code is not one the agent
// accepts for the given firmware type.
type ModeValidationError struct {
	Mode Mode
	Code string
	Type Type
}

func (e *ModeValidationError) Error() string {
	return fmt.Sprintf("mode %q translates to %q, which is not a valid %s code", e.Mode, e.Code, e.Type)
}

// UpdateProtocolError means the SPI update response did not confirm the
// staged image. The shape mismatch, a short result sequence and a wrong
// field value all collapse into this one kind; the underlying cause is
// kept for diagnostics.
type UpdateProtocolError struct {
	NodeID string
	Raw    []byte
	Cause  error
}

func (e *UpdateProtocolError) Error() string {
	return fmt.Sprintf("node %s: firmware update was not confirmed: %v", e.NodeID, e.Cause)
}
func (e *UpdateProtocolError) Unwrap() error { return e.Cause }

// ResetError wraps a failed post-update reset.
type ResetError struct {
	Kind string
	Err  error
}

func (e *ResetError) Error() string { return fmt.Sprintf("%s reset failed: %v", e.Kind, e.Err) }
func (e *ResetError) Unwrap() error { return e.Err }
