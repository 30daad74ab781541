// Package job defines the lifecycle contract shared by every
// long-running node operation.
package job

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Job is the contract a node operation satisfies. Run begins execution
// and returns when the job has reached its terminal outcome; callers that
// want asynchrony run it on their own goroutine. Completion is observed
// through Done and Err, never by polling internal state.
type Job interface {
	ID() uuid.UUID
	Node() string
	Run(ctx context.Context)
	Done() <-chan struct{}
	Err() error
}

// Lifecycle carries the single terminal completion signal of a job.
// Concrete jobs embed it and call Complete exactly once; later calls
// are no-ops, so a job cannot flip its outcome after the fact.
type Lifecycle struct {
	id   uuid.UUID
	node string
	once sync.Once
	done chan struct{}
	err  error
}

func NewLifecycle(id uuid.UUID, node string) Lifecycle {
	return Lifecycle{id: id, node: node, done: make(chan struct{})}
}

func (l *Lifecycle) ID() uuid.UUID { return l.id }

// Node returns the identifier of the target node.
func (l *Lifecycle) Node() string { return l.node }

// Complete records the terminal outcome and closes the Done channel.
// Only the first call has any effect.
func (l *Lifecycle) Complete(err error) {
	l.once.Do(func() {
		l.err = err
		close(l.done)
	})
}

// Done is closed once the job has completed.
func (l *Lifecycle) Done() <-chan struct{} { return l.done }

// Completed reports whether the terminal outcome has fired. Event-driven
// jobs use it to drop events delivered after completion.
func (l *Lifecycle) Completed() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

// Err reports the terminal outcome. It returns nil until Done is closed.
func (l *Lifecycle) Err() error {
	select {
	case <-l.done:
		return l.err
	default:
		return nil
	}
}
