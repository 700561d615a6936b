package scheduler

import (
	"fmt"
	"os"

	"github.com/hibiken/asynq"

	"github.com/jusmatch/jusmatch-backend/pkg/logger"
)

// NewPeriodic builds the cron-style scheduler that feeds the worker its
// recurring sweeps: match expiration every 10 minutes, orphan redistribution
// every 30.
func NewPeriodic(log *logger.Logger) (*asynq.Scheduler, error) {
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		return nil, fmt.Errorf("scheduler: REDIS_URL not configured")
	}

	opt, err := redisClientOpt(redisURL)
	if err != nil {
		return nil, err
	}

	queue := os.Getenv("ASYNQ_QUEUE")
	if queue == "" {
		queue = "default"
	}

	sched := asynq.NewScheduler(opt, nil)

	if _, err := sched.Register("@every 10m", NewExpireMatchesTask(), asynq.Queue(queue)); err != nil {
		return nil, err
	}
	if _, err := sched.Register("@every 30m", NewRedistributeOrphansTask(), asynq.Queue(queue)); err != nil {
		return nil, err
	}

	log.Info("periodic sweeps registered", "expire", "@every 10m", "redistribute", "@every 30m")
	return sched, nil
}
