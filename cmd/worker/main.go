package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/jusmatch/jusmatch-backend/internal/email"
	"github.com/jusmatch/jusmatch-backend/internal/matching"
	"github.com/jusmatch/jusmatch-backend/internal/scheduler"
	"github.com/jusmatch/jusmatch-backend/internal/settings"
	"github.com/jusmatch/jusmatch-backend/pkg/database"
	"github.com/jusmatch/jusmatch-backend/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	logg := logger.New(os.Getenv("APP_ENV")).WithComponent("worker")

	db := database.Init()

	store := settings.NewStore(db)
	scorer := matching.NewScorer(matching.DefaultWeights())
	quota := matching.NewQuotaGuard(db)
	lifecycle := matching.NewLifecycle(db, store, logg.WithComponent("lifecycle"))

	// The worker's own distributor never notifies through the queue again;
	// redistribution sweeps enqueue nothing to avoid a task loop.
	dist := matching.NewDistributor(db, store, scorer, quota, lifecycle, matching.NopNotifier{}, logg.WithComponent("distributor"))

	mailer := email.NewSender(logg.WithComponent("email"))

	worker, err := scheduler.NewWorker(db, lifecycle, dist, mailer, logg)
	if err != nil {
		log.Fatal("worker init failed:", err)
	}
	periodic, err := scheduler.NewPeriodic(logg)
	if err != nil {
		log.Fatal("periodic scheduler init failed:", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		periodic.Shutdown()
	}()
	go func() {
		if err := periodic.Run(); err != nil {
			logg.Error("periodic scheduler stopped", "error", err)
		}
	}()

	logg.Info("worker running")
	worker.Run(ctx)
}
