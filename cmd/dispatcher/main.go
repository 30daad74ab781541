package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/andrej220/NTC/internal/catalog"
	"github.com/andrej220/NTC/internal/lg"
	"github.com/andrej220/NTC/internal/serverutil"
	"github.com/andrej220/NTC/pkg/bus"
	"github.com/andrej220/NTC/pkg/models"
)

const submitPath = "/jobs"

// submitHandler accepts job requests over HTTP and queues them on the
// request topic for the dispatcher loop to pick up.
type submitHandler struct {
	producer *bus.Publisher[models.JobRequest]
	logger   lg.Logger
}

func (h *submitHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	request, ok := serverutil.RequestFromContext[models.JobRequest](r.Context())
	if !ok {
		http.Error(rw, "Internal server error", http.StatusInternalServerError)
		return
	}

	request.JobID = uuid.New()

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	if err := h.producer.Publish(ctx, request.NodeID, request); err != nil {
		h.logger.Error("failed to queue job request",
			lg.String("node", request.NodeID),
			lg.Err(err))
		http.Error(rw, "Failed to process request", http.StatusInternalServerError)
		return
	}

	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(http.StatusAccepted)
	if err := json.NewEncoder(rw).Encode(models.JobAck{JobID: request.JobID}); err != nil {
		h.logger.Error("failed to encode ack", lg.Err(err))
	}
}

func main() {
	logCfg := lg.NewConfigFromFlags(serviceName)
	logger := lg.New(logCfg)
	defer logger.Sync()

	cfgPath := os.Getenv("NTC_CONFIG")
	if cfgPath == "" {
		cfgPath = configFileName
	}
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", lg.Err(err))
		os.Exit(1)
	}

	store, err := catalog.NewMongoStore(cfg.Catalog.MongoURI, cfg.Catalog.DBName, cfg.Catalog.Collection)
	if err != nil {
		logger.Error("failed to connect to catalog store", lg.Err(err))
		os.Exit(1)
	}

	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Close(ctx); err != nil {
			logger.Error("failed to close catalog store", lg.Err(err))
		}
	}()

	d := newDispatcher(cfg, store, logger)
	defer d.Close()

	producer := bus.NewPublisher[models.JobRequest](bus.Config{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.RequestTopic,
	})
	defer producer.Close()

	logger.Info("starting service",
		lg.String("name", serviceName),
		lg.String("port", cfg.Server.Port))

	ctx := lg.Attach(context.Background(), logger)
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return d.consumeRequests(ctx) })
	g.Go(func() error { return d.consumePulls(ctx) })
	g.Go(func() error { return d.consumeResponses(ctx) })
	g.Go(func() error {
		mux := http.NewServeMux()
		mux.Handle(submitPath, serverutil.NewValidationHandler[models.JobRequest](&submitHandler{
			producer: producer,
			logger:   logger,
		}))

		serverCfg := serverutil.DefaultServerConfig()
		serverCfg.Port = cfg.Server.Port
		serverCfg.Logger = logger
		return serverutil.RunServer(mux, serverCfg)
	})

	if err := g.Wait(); err != nil {
		logger.Error("dispatcher stopped", lg.Err(err))
		os.Exit(1)
	}
}
