// Package catalog persists selected command output, keyed by node and
// source label.
package catalog

import "context"

// Entry is one persisted record of command output. Source is never empty:
// producers default it before an Entry is built.
type Entry struct {
	NodeID string `json:"node" bson:"node"`
	Source string `json:"source" bson:"source"`
	Data   any    `json:"data" bson:"data"`
}

// Store is the persistence collaborator. Implementations must be safe for
// concurrent use by independent jobs.
type Store interface {
	Create(ctx context.Context, e Entry) error
}
