// package service provides functions and methods
// for creating and running the api of the monitor service
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/observekit/api-monitor-service/clients/cache"
	"github.com/observekit/api-monitor-service/clients/database"
	"github.com/observekit/api-monitor-service/clients/database/noop"
	"github.com/observekit/api-monitor-service/clients/database/postgres"
	"github.com/observekit/api-monitor-service/clients/database/postgres/migrations"
	"github.com/observekit/api-monitor-service/config"
	"github.com/observekit/api-monitor-service/logging"
	"github.com/observekit/api-monitor-service/queue"
)

// MonitorService represents an instance of the monitor service API
type MonitorService struct {
	httpServer *http.Server

	Database  database.MonitorDatabase
	Cache     cache.Cache
	Queue     queue.Queue
	Evaluator *AlertEvaluator
	Realtime  *RealtimeView

	config config.Config

	*logging.ServiceLogger
}

// New returns a new MonitorService with the specified config and
// error (if any)
func New(ctx context.Context, config config.Config, serviceLogger *logging.ServiceLogger) (MonitorService, error) {
	service := MonitorService{
		config:        config,
		ServiceLogger: serviceLogger,
	}

	// create the database client the rollup processors and read
	// services will use
	db, err := createMonitorDatabase(ctx, config, serviceLogger)
	if err != nil {
		return MonitorService{}, err
	}
	service.Database = db

	// create the cache client backing the realtime view and
	// memoized read queries
	serviceCache, err := createServiceCache(config, serviceLogger)
	if err != nil {
		return MonitorService{}, err
	}
	service.Cache = serviceCache

	service.Evaluator = NewAlertEvaluator(db, serviceLogger)

	service.Realtime = NewRealtimeView(service.Cache, RealtimeViewConfig{
		RecentCallsTTL: config.RecentCallsCacheTTL,
		TrendBucketTTL: config.TrendBucketCacheTTL,
	}, serviceLogger)

	// create the queue that decouples event capture from the
	// durable rollup path
	jobQueue, err := createJobQueue(config, serviceLogger)
	if err != nil {
		return MonitorService{}, err
	}
	service.Queue = jobQueue

	service.registerProcessors()

	mux := createServiceMux(&service)

	// create an http server for the caller to start at their own
	// discretion; every route it serves outside the monitor namespace
	// is measured by the middleware
	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", config.MonitorServicePort),
		Handler: service.RequestMetricMiddleware(mux),
	}

	service.httpServer = server

	return service, nil
}

// createServiceMux creates an http router registering the monitor
// service's handlers for their routes
func createServiceMux(service *MonitorService) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc(MonitorPathPrefix+"/data", createMonitorDataHandler(service))
	mux.HandleFunc(MonitorPathPrefix+"/statistics", createStatisticsHandler(service))
	mux.HandleFunc(MonitorPathPrefix+"/performance", createPerformanceHandler(service))
	mux.HandleFunc(MonitorPathPrefix+"/realtime", createRealtimeHandler(service))
	mux.HandleFunc(MonitorPathPrefix+"/alerts", createAlertConfigsHandler(service))
	mux.HandleFunc(MonitorPathPrefix+"/export", createExportHandler(service))

	mux.HandleFunc("/healthcheck", createHealthcheckHandler(service))
	mux.HandleFunc("/servicecheck", createServicecheckHandler(service))

	return mux
}

// createMonitorDatabase creates the database client specified by the
// config, running migrations when enabled, and a no-op client when the
// database is disabled
func createMonitorDatabase(ctx context.Context, config config.Config, logger *logging.ServiceLogger) (database.MonitorDatabase, error) {
	if !config.DatabaseEnabled {
		logger.Info().Msg("database disabled, rollups and detail records will not be persisted")

		return noop.New(), nil
	}

	client, err := postgres.NewClient(postgres.DatabaseConfig{
		DatabaseName:                     config.DatabaseName,
		DatabaseEndpointURL:              config.DatabaseEndpointURL,
		DatabaseUsername:                 config.DatabaseUsername,
		DatabasePassword:                 config.DatabasePassword,
		ReadTimeoutSeconds:               config.DatabaseReadTimeoutSeconds,
		DatabaseMaxIdleConnections:       config.DatabaseMaxIdleConnections,
		DatabaseConnectionMaxIdleSeconds: config.DatabaseConnectionMaxIdleSeconds,
		DatabaseMaxOpenConnections:       config.DatabaseMaxOpenConnections,
		SSLEnabled:                       config.DatabaseSSLEnabled,
		QueryLoggingEnabled:              config.DatabaseQueryLoggingEnabled,
		RunDatabaseMigrations:            config.RunDatabaseMigrations,
		Logger:                           logger,
	})
	if err != nil {
		return nil, err
	}

	if config.RunDatabaseMigrations {
		applied, err := database.Migrate(ctx, client.DB(), *migrations.Migrations)
		if err != nil {
			return nil, err
		}

		logger.Debug().Msg(fmt.Sprintf("ran migrations %+v", applied))
	}

	return client, nil
}

// createServiceCache creates the cache client specified by the config,
// falling back to an in-process cache when redis is disabled
func createServiceCache(config config.Config, logger *logging.ServiceLogger) (cache.Cache, error) {
	if !config.CacheEnabled {
		logger.Info().Msg("redis disabled, using in-process cache for realtime view")

		return cache.NewInMemoryCache(), nil
	}

	return cache.NewRedisCache(&cache.RedisConfig{
		Address:  config.RedisEndpointURL,
		Password: config.RedisPassword,
	}, logger)
}

// createJobQueue creates the queue backend specified by the config
func createJobQueue(config config.Config, logger *logging.ServiceLogger) (queue.Queue, error) {
	switch config.QueueBackend {
	case "kafka":
		return queue.NewKafkaQueue(queue.KafkaQueueConfig{
			BrokerURLs:    config.KafkaBrokerURLs,
			ConsumerGroup: config.KafkaConsumerGroup,
			TopicPrefix:   config.KafkaTopicPrefix,
			Logger:        logger,
		})
	default:
		return queue.NewMemoryQueue(queue.MemoryQueueConfig{
			BufferSize:    int(config.QueueBufferSize),
			ConsumerCount: int(config.QueueConsumerCount),
			Logger:        logger,
		}), nil
	}
}

// recordEvent dispatches a captured event to the synchronous update
// path (realtime view and alert checks) and enqueues the durable
// rollup jobs. Every failure is logged and swallowed so telemetry never
// affects a measured request.
func (s *MonitorService) recordEvent(event Event) {
	ctx := context.Background()

	if err := s.Realtime.RecordEvent(ctx, event); err != nil {
		s.Error().Err(err).Msg("error updating realtime view")
	}

	s.Evaluator.CheckAlerts(ctx, event.Path, event.Method, event.ResponseTimeMs, event.IsError())

	rollup := RollupJob{
		Event:      event,
		IsError:    event.IsError(),
		BucketDate: event.BucketDate(),
	}

	payload, err := json.Marshal(rollup)
	if err != nil {
		s.Error().Err(err).Msg("error encoding rollup job")
		return
	}

	if err := s.Queue.Enqueue(ctx, queue.JobTypeRecordRollup, payload); err != nil {
		s.Error().
			Str("path", event.Path).
			Err(err).
			Msg("error enqueueing rollup job, event dropped from durable path")
	}

	if !shouldRecordDetail(event.StatusCode, s.config.DetailSuccessSampleRate) {
		return
	}

	detailPayload, err := json.Marshal(DetailJob{Event: event})
	if err != nil {
		s.Error().Err(err).Msg("error encoding detail job")
		return
	}

	if err := s.Queue.Enqueue(ctx, queue.JobTypeRecordDetail, detailPayload); err != nil {
		s.Error().
			Str("path", event.Path).
			Err(err).
			Msg("error enqueueing detail job")
	}
}

// Run runs the monitor service, starting the queue consumers and then
// serving http, returning error (if any) in the event the monitor
// service stops
func (s *MonitorService) Run() error {
	queueErrs, err := s.Queue.Run()
	if err != nil {
		return err
	}

	go func() {
		for queueErr := range queueErrs {
			s.Error().Err(queueErr).Msg("queue consumer error")
		}
	}()

	return s.httpServer.ListenAndServe()
}

// Shutdown stops the http server and drains the queue
func (s *MonitorService) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return err
	}

	return s.Queue.Shutdown(ctx)
}
