// Package models holds the wire envelopes shared between services.
package models

import (
	"encoding/json"

	"github.com/google/uuid"
)

type JobKind string

const (
	JobKindFirmware JobKind = "firmware-update"
	JobKindCommands JobKind = "remote-commands"
)

// JobRequest asks the dispatcher to run one job against one node. Options
// is the workflow-specific payload, decoded by the owning package.
type JobRequest struct {
	JobID   uuid.UUID       `json:"jobId"`
	Kind    JobKind         `json:"kind"`
	NodeID  string          `json:"nodeId"`
	NodeIP  string          `json:"nodeIp,omitempty"`
	Options json.RawMessage `json:"options"`
}

// JobAck is returned to the submitter once a request has been queued.
type JobAck struct {
	JobID uuid.UUID `json:"jobId"`
}
