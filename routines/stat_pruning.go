// package routines provides configuration and logic
// for running background routines such as stat pruning
// for expiring historical request telemetry
package routines

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/observekit/api-monitor-service/clients/database"
	"github.com/observekit/api-monitor-service/logging"
)

// StatPruningRoutineConfig wraps values used
// for creating a new stat pruning routine
type StatPruningRoutineConfig struct {
	Interval      time.Duration
	StartDelay    time.Duration
	RetentionDays int64
	Database      database.MonitorDatabase
	Logger        logging.ServiceLogger
}

// StatPruningRoutine can be used to
// run a background routine on a configurable interval
// to prune daily stats and detail records past their retention
type StatPruningRoutine struct {
	id            string
	interval      time.Duration
	startDelay    time.Duration
	retentionDays int64
	db            database.MonitorDatabase
	logging.ServiceLogger
}

// Run runs the stat pruning routine for expiring historical daily
// stats and request detail records, returning error (if any)
// from starting the routine and an error channel which any errors
// encountered during running will be sent on
func (spr *StatPruningRoutine) Run() (<-chan error, error) {
	errorChannel := make(chan error)

	time.Sleep(spr.startDelay)

	timer := time.Tick(spr.interval)

	go func() {
		for tick := range timer {
			spr.Trace().Msg(fmt.Sprintf("%s tick at %+v", spr.id, tick))

			ctx := context.Background()

			err := spr.db.DeleteDailyStatsOlderThanNDays(ctx, spr.retentionDays)
			if err != nil {
				errorChannel <- err
			}

			err = spr.db.DeleteRequestDetailRecordsOlderThanNDays(ctx, spr.retentionDays)
			if err != nil {
				errorChannel <- err
			}
		}
	}()

	return errorChannel, nil
}

// NewStatPruningRoutine creates a new stat pruning routine
// using the provided config, returning the routine and error (if any)
func NewStatPruningRoutine(config StatPruningRoutineConfig) (*StatPruningRoutine, error) {
	return &StatPruningRoutine{
		id:            uuid.New().String(),
		interval:      config.Interval,
		startDelay:    config.StartDelay,
		retentionDays: config.RetentionDays,
		db:            config.Database,
		ServiceLogger: config.Logger,
	}, nil
}
