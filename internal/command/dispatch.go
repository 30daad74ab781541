package command

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/andrej220/NTC/internal/catalog"
	"github.com/andrej220/NTC/internal/job"
	"github.com/andrej220/NTC/internal/lg"
)

// Options describe one command dispatch exchange.
type Options struct {
	Commands []Spec `json:"commands" validate:"required,min=1,dive"`
	// RunOnlyOnce defaults to true: the batch is published on the first
	// pull and never again. When false the batch is re-published on
	// every pull and the job only terminates on a failure.
	RunOnlyOnce *bool `json:"runOnlyOnce,omitempty"`
}

var validate = validator.New()

// DispatchJob owns one publish/respond exchange with a node. Pulls and
// responses are routed in by the Registry; the job completes once a
// response has been validated and cataloged, or fails on the first error.
type DispatchJob struct {
	job.Lifecycle
	specs   []Spec
	runOnce bool
	sent    atomic.Bool // publish latch
	mu      sync.Mutex  // serializes response handling against completion
	store   catalog.Store
	logger  lg.Logger
}

func NewDispatchJob(id uuid.UUID, nodeID string, opts Options, store catalog.Store, logger lg.Logger) (*DispatchJob, error) {
	if nodeID == "" {
		return nil, &job.ValidationError{Err: fmt.Errorf("target node identifier is required")}
	}
	if err := validate.Struct(opts); err != nil {
		return nil, &job.ValidationError{Err: err}
	}
	runOnce := true
	if opts.RunOnlyOnce != nil {
		runOnce = *opts.RunOnlyOnce
	}
	return &DispatchJob{
		Lifecycle: job.NewLifecycle(id, nodeID),
		specs:     opts.Commands,
		runOnce:   runOnce,
		store:     store,
		logger:    logger.With(lg.String("node", nodeID), lg.String("job", id.String())),
	}, nil
}

// Run blocks until the exchange reaches its terminal outcome. The job is
// event-driven: all work happens in HandlePull and HandleResponse.
func (j *DispatchJob) Run(_ context.Context) { <-j.Done() }

// HandlePull answers a node's pull for work. The first pull gets the wire
// batch; later pulls return nil. The latch is an atomic check-and-set so
// a re-delivering transport cannot double-publish, and a completed job
// never hands out work again.
func (j *DispatchJob) HandlePull() *BatchEnvelope {
	if j.Completed() {
		return nil
	}
	if j.runOnce && !j.sent.CompareAndSwap(false, true) {
		return nil
	}
	j.logger.Debug("publishing command batch", lg.Int("tasks", len(j.specs)))
	return &BatchEnvelope{Identifier: j.Node(), Tasks: buildBatch(j.specs)}
}

// RunsOnce reports whether the batch is published at most once. A repeating
// job survives a failed batch publish: the node simply pulls again.
func (j *DispatchJob) RunsOnce() bool { return j.runOnce }

// HandleResponse validates every task result, catalogs the flagged ones
// and fires the completion signal. One unaccepted error code rejects the
// whole response and nothing is cataloged from it. Responses arriving
// after the job completed are dropped, so an at-least-once transport
// re-delivering the same response cannot catalog it twice.
func (j *DispatchJob) HandleResponse(ctx context.Context, resp Response) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.Completed() {
		j.logger.Debug("dropping response for completed job")
		return
	}

	if err := ValidateResults(resp.Tasks); err != nil {
		j.logger.Error("command batch rejected", lg.Err(err))
		j.Complete(err)
		return
	}

	for _, e := range SelectCatalogEntries(j.Node(), resp.Tasks) {
		if err := j.store.Create(ctx, e); err != nil {
			j.Complete(&CatalogPersistError{Source: e.Source, Err: err})
			return
		}
	}

	if j.runOnce {
		j.Complete(nil)
	}
}

// ValidateResults checks every task's error code against the codes that
// task accepts. The default of no accepted codes means any error fails.
func ValidateResults(tasks []TaskResult) error {
	var offenders []string
	for i, t := range tasks {
		if t.Error == nil {
			continue
		}
		if slices.Contains(t.AcceptedResponseCodes, t.Error.Code) {
			continue
		}
		offenders = append(offenders, fmt.Sprintf("task %d (%s) returned code %d", i, t.Cmd, t.Error.Code))
	}
	if len(offenders) > 0 {
		return &ResponseValidationError{Offenders: offenders}
	}
	return nil
}
