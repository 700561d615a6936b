package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"gorm.io/gorm"

	"github.com/jusmatch/jusmatch-backend/internal/email"
	"github.com/jusmatch/jusmatch-backend/internal/matching"
	"github.com/jusmatch/jusmatch-backend/pkg/logger"
	"github.com/jusmatch/jusmatch-backend/pkg/models"
)

// orphanGraceDefault is how long an open caso may sit without matches before
// the redistribution sweep picks it up.
const orphanGraceDefault = time.Hour

// Worker processes scheduled and enqueued tasks: match expiration, orphan
// redistribution and lawyer notification emails.
type Worker struct {
	server      *asynq.Server
	mux         *asynq.ServeMux
	db          *gorm.DB
	lifecycle   *matching.Lifecycle
	distributor *matching.Distributor
	mailer      *email.Sender
	log         *logger.Logger
}

func NewWorker(db *gorm.DB, lifecycle *matching.Lifecycle, distributor *matching.Distributor, mailer *email.Sender, log *logger.Logger) (*Worker, error) {
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
	concurrency, _ := strconv.Atoi(os.Getenv("ASYNQ_CONCURRENCY"))
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:      server,
		mux:         mux,
		db:          db,
		lifecycle:   lifecycle,
		distributor: distributor,
		mailer:      mailer,
		log:         log,
	}

	mux.HandleFunc(TaskExpireMatches, w.handleExpireMatches)
	mux.HandleFunc(TaskRedistributeOrphans, w.handleRedistributeOrphans)
	mux.HandleFunc(TaskNotifyMatch, w.handleNotifyMatch)

	return w, nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

func (w *Worker) handleExpireMatches(ctx context.Context, _ *asynq.Task) error {
	expired, err := w.lifecycle.ExpireStale(ctx)
	if err != nil {
		return err
	}
	if expired > 0 {
		w.log.Info("expiration sweep done", "expired", expired)
	}
	return nil
}

func (w *Worker) handleRedistributeOrphans(ctx context.Context, _ *asynq.Task) error {
	grace := orphanGraceDefault
	if raw := os.Getenv("ORPHAN_GRACE_MINUTES"); raw != "" {
		if minutes, err := strconv.Atoi(raw); err == nil && minutes > 0 {
			grace = time.Duration(minutes) * time.Minute
		}
	}
	_, err := w.distributor.RedistributeOrphans(ctx, grace)
	return err
}

func (w *Worker) handleNotifyMatch(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseNotifyMatchPayload(task)
	if err != nil {
		return err
	}
	matchID, err := uuid.Parse(payload.MatchID)
	if err != nil {
		return err
	}

	var m models.Match
	if err := w.db.WithContext(ctx).First(&m, "id = ?", matchID).Error; err != nil {
		// The match may have been rolled back after enqueue; not retryable.
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	// Offers that already moved past PENDENTE don't need the email anymore.
	if m.Status != models.MatchPendente {
		return nil
	}

	var profile models.LawyerProfile
	if err := w.db.WithContext(ctx).First(&profile, "id = ?", m.LawyerProfileID).Error; err != nil {
		return err
	}
	var user models.User
	if err := w.db.WithContext(ctx).First(&user, "id = ?", profile.UserID).Error; err != nil {
		return err
	}
	var caso models.Caso
	if err := w.db.WithContext(ctx).First(&caso, "id = ?", m.CasoID).Error; err != nil {
		return err
	}

	name := user.Name
	if name == "" {
		name = "advogado(a)"
	}
	return w.mailer.SendNewMatch(user.Email, name, caso.Title, m.Score, m.ExpiresAt)
}
