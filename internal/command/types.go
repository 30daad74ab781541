// Package command implements the two-phase command dispatch protocol: a
// batch of remote commands is published to a node exactly once, the
// correlated response is validated per task, and selected results are
// cataloged.
package command

import (
	"encoding/json"
	"fmt"
)

// Spec is one command to run on the node. The catalog descriptor arrives
// either as a bare boolean or as an object carrying format and source, so
// decoding accepts both; a bare string is shorthand for just the command
// text.
type Spec struct {
	Command               string `validate:"required"`
	Catalog               bool
	Format                string
	Source                string
	AcceptedResponseCodes []int
}

func (s *Spec) UnmarshalJSON(b []byte) error {
	var cmd string
	if err := json.Unmarshal(b, &cmd); err == nil {
		*s = Spec{Command: cmd}
		return nil
	}

	var raw struct {
		Command               string          `json:"command"`
		Catalog               json.RawMessage `json:"catalog,omitempty"`
		AcceptedResponseCodes []int           `json:"acceptedResponseCodes,omitempty"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	s.Command = raw.Command
	s.AcceptedResponseCodes = raw.AcceptedResponseCodes

	if len(raw.Catalog) == 0 {
		return nil
	}
	var flag bool
	if err := json.Unmarshal(raw.Catalog, &flag); err == nil {
		s.Catalog = flag
		return nil
	}
	var desc struct {
		Format string `json:"format"`
		Source string `json:"source"`
	}
	if err := json.Unmarshal(raw.Catalog, &desc); err != nil {
		return fmt.Errorf("catalog must be a boolean or a descriptor object: %w", err)
	}
	s.Catalog = true
	s.Format = desc.Format
	s.Source = desc.Source
	return nil
}

// WireTask is the wire form of a Spec as published to the node.
type WireTask struct {
	Cmd                   string `json:"cmd"`
	Format                string `json:"format,omitempty"`
	Source                string `json:"source,omitempty"`
	Catalog               bool   `json:"catalog"`
	AcceptedResponseCodes []int  `json:"acceptedResponseCodes,omitempty"`
}

// buildBatch is the pure, order-preserving transform from specs to wire
// form.
func buildBatch(specs []Spec) []WireTask {
	tasks := make([]WireTask, len(specs))
	for i, s := range specs {
		tasks[i] = WireTask{
			Cmd:                   s.Command,
			Format:                s.Format,
			Source:                s.Source,
			Catalog:               s.Catalog,
			AcceptedResponseCodes: s.AcceptedResponseCodes,
		}
	}
	return tasks
}

// TaskError is the per-command failure reported by the node.
type TaskError struct {
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
}

// TaskResult is one command's outcome as reported by the node. The node
// echoes the catalog flag, source, format and accepted codes it was sent.
type TaskResult struct {
	Cmd                   string          `json:"cmd"`
	Error                 *TaskError      `json:"error,omitempty"`
	Catalog               bool            `json:"catalog"`
	Format                string          `json:"format,omitempty"`
	Source                string          `json:"source,omitempty"`
	Data                  json.RawMessage `json:"data,omitempty"`
	AcceptedResponseCodes []int           `json:"acceptedResponseCodes,omitempty"`
}

// Pull is a node asking whether work is pending for it.
type Pull struct {
	Identifier string `json:"identifier"`
}

// BatchEnvelope pairs a command batch with the node it is addressed to.
type BatchEnvelope struct {
	Identifier string     `json:"identifier"`
	Tasks      []WireTask `json:"tasks"`
}

// Response is the node's correlated answer to a published batch.
type Response struct {
	Identifier string       `json:"identifier"`
	Tasks      []TaskResult `json:"tasks"`
}
