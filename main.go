// package main reads & validates configuration for the monitor service
// and if the config is valid starts and monitors an instance of the
// monitor service and its background routines
package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/joho/godotenv"

	"github.com/observekit/api-monitor-service/config"
	"github.com/observekit/api-monitor-service/logging"
	"github.com/observekit/api-monitor-service/routines"
	"github.com/observekit/api-monitor-service/service"
)

var (
	serviceConfig config.Config
	serviceLogger logging.ServiceLogger
)

func init() {
	// attempt to load a local dotenv, the environment takes
	// precedence when both are set
	godotenv.Load()

	serviceConfig = config.ReadConfig()

	err := config.Validate(serviceConfig)

	if err != nil {
		panic(err)
	}

	serviceLogger, err = logging.New(serviceConfig.LogLevel)

	if err != nil {
		panic(err)
	}
}

func startPruningRoutine(monitorService service.MonitorService) {
	pruningRoutine, err := routines.NewStatPruningRoutine(routines.StatPruningRoutineConfig{
		Interval:      serviceConfig.MetricPruningInterval,
		StartDelay:    serviceConfig.MetricPruningStartDelay,
		RetentionDays: serviceConfig.MetricRetentionDays,
		Database:      monitorService.Database,
		Logger:        serviceLogger,
	})

	if err != nil {
		serviceLogger.Error().Msg(fmt.Sprintf("error %s creating stat pruning routine with config %+v", err, serviceConfig))

		return
	}

	errChan, err := pruningRoutine.Run()

	if err != nil {
		serviceLogger.Error().Msg(fmt.Sprintf("error %s starting stat pruning routine with config %+v", err, serviceConfig))

		return
	}

	serviceLogger.Debug().Msg(fmt.Sprintf("started stat pruning routine with config %+v", serviceConfig))

	go func() {
		for routineErr := range errChan {
			serviceLogger.Error().Msg(fmt.Sprintf("stat pruning routine encountered error %s", routineErr))
		}
	}()
}

func main() {
	serviceLogger.Debug().Msg(fmt.Sprintf("initial config: %+v", serviceConfig))

	ctx := context.Background()

	monitorService, err := service.New(ctx, serviceConfig, &serviceLogger)

	if err != nil {
		serviceLogger.Panic().Msg(fmt.Sprintf("%v", errors.Unwrap(err)))
	}

	if serviceConfig.MetricPruningEnabled {
		go startPruningRoutine(monitorService)
	}

	monitorService.Run()
}
