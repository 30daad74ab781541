package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/andrej220/NTC/internal/agent"
	"github.com/andrej220/NTC/internal/catalog"
	"github.com/andrej220/NTC/internal/command"
	"github.com/andrej220/NTC/internal/firmware"
	"github.com/andrej220/NTC/internal/job"
	"github.com/andrej220/NTC/internal/lg"
	"github.com/andrej220/NTC/pkg/bus"
	"github.com/andrej220/NTC/pkg/models"
	"github.com/andrej220/NTC/pkg/workerpool"
)

// dispatcher ties the bus, the job registry and the worker pool together:
// job requests become running jobs, node pulls are answered with command
// batches, and node responses are routed back to their job.
type dispatcher struct {
	store     catalog.Store
	registry  *command.Registry
	pool      *workerpool.Pool[job.Job]
	requests  *bus.Consumer[models.JobRequest]
	pulls     *bus.Consumer[command.Pull]
	responses *bus.Consumer[command.Response]
	batches   *bus.Publisher[command.BatchEnvelope]
	logger    lg.Logger
}

func newDispatcher(cfg *DispatcherConfig, store catalog.Store, logger lg.Logger) *dispatcher {
	kafka := func(topic string) bus.Config {
		return bus.Config{Brokers: cfg.Kafka.Brokers, Topic: topic, GroupID: cfg.Kafka.GroupID}
	}
	return &dispatcher{
		store:     store,
		registry:  command.NewRegistry(),
		pool:      workerpool.NewPool[job.Job](workerpool.TotalMaxWorkers),
		requests:  bus.NewConsumer[models.JobRequest](kafka(cfg.Kafka.RequestTopic)),
		pulls:     bus.NewConsumer[command.Pull](kafka(cfg.Kafka.PullTopic)),
		responses: bus.NewConsumer[command.Response](kafka(cfg.Kafka.ResponseTopic)),
		batches:   bus.NewPublisher[command.BatchEnvelope](kafka(cfg.Kafka.BatchTopic)),
		logger:    logger,
	}
}

func (d *dispatcher) Close() {
	d.pool.Stop()
	d.requests.Close()
	d.pulls.Close()
	d.responses.Close()
	d.batches.Close()
}

func (d *dispatcher) consumeRequests(ctx context.Context) error {
	for {
		req, err := d.requests.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			d.logger.Error("failed to read job request", lg.Err(err))
			time.Sleep(time.Second)
			continue
		}
		if err := d.startJob(ctx, req); err != nil {
			d.logger.Error("rejected job request",
				lg.String("node", req.NodeID),
				lg.String("kind", string(req.Kind)),
				lg.Err(err))
		}
	}
}

func (d *dispatcher) startJob(ctx context.Context, req models.JobRequest) error {
	if req.JobID == uuid.Nil {
		req.JobID = uuid.New()
	}

	switch req.Kind {
	case models.JobKindFirmware:
		var opts firmware.Options
		if err := json.Unmarshal(req.Options, &opts); err != nil {
			return fmt.Errorf("decode firmware options: %w", err)
		}
		client := agent.NewHTTPClient(req.NodeIP, d.logger)
		node := firmware.NodeContext{NodeID: req.NodeID, NodeIP: req.NodeIP}
		jb, err := firmware.NewUpdateJob(req.JobID, opts, node, client, d.logger)
		if err != nil {
			return err
		}
		d.submit(ctx, jb, nil)

	case models.JobKindCommands:
		var opts command.Options
		if err := json.Unmarshal(req.Options, &opts); err != nil {
			return fmt.Errorf("decode command options: %w", err)
		}
		jb, err := command.NewDispatchJob(req.JobID, req.NodeID, opts, d.store, d.logger)
		if err != nil {
			return err
		}
		d.registry.Register(jb)
		d.submit(ctx, jb, func() { d.registry.Deregister(jb) })

	default:
		return fmt.Errorf("unknown job kind %q", req.Kind)
	}
	return nil
}

func (d *dispatcher) submit(ctx context.Context, jb job.Job, cleanup func()) {
	d.pool.Submit(workerpool.Job[job.Job]{
		Payload: jb,
		Fn: func(j job.Job) error {
			j.Run(ctx)
			return j.Err()
		},
		Ctx:         lg.Attach(ctx, d.logger.With(lg.String("job", jb.ID().String()))),
		CleanupFunc: cleanup,
	})
}

func (d *dispatcher) consumePulls(ctx context.Context) error {
	for {
		pull, err := d.pulls.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			d.logger.Error("failed to read pull", lg.Err(err))
			time.Sleep(time.Second)
			continue
		}

		jb, ok := d.registry.Lookup(pull.Identifier)
		if !ok {
			d.logger.Debug("pull from node with no pending work",
				lg.String("node", pull.Identifier))
			continue
		}

		envelope := jb.HandlePull()
		if envelope == nil {
			continue
		}
		if err := d.batches.Publish(ctx, envelope.Identifier, *envelope); err != nil {
			if jb.RunsOnce() {
				// The latch is already set; the batch cannot be re-sent,
				// so the job fails rather than hanging forever.
				jb.Complete(fmt.Errorf("failed to publish command batch: %w", err))
				continue
			}
			// A repeating job re-publishes on the node's next pull.
			d.logger.Error("failed to publish command batch",
				lg.String("node", envelope.Identifier),
				lg.Err(err))
		}
	}
}

func (d *dispatcher) consumeResponses(ctx context.Context) error {
	for {
		resp, err := d.responses.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			d.logger.Error("failed to read response", lg.Err(err))
			time.Sleep(time.Second)
			continue
		}

		jb, ok := d.registry.Lookup(resp.Identifier)
		if !ok {
			d.logger.Warn("response for unknown job",
				lg.String("node", resp.Identifier))
			continue
		}
		// Persistence runs off the consumer loop so one slow catalog
		// write cannot stall responses from other nodes. The job
		// serializes its own response handling.
		go jb.HandleResponse(ctx, resp)
	}
}
