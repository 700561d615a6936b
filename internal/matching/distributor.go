package matching

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jusmatch/jusmatch-backend/internal/settings"
	"github.com/jusmatch/jusmatch-backend/pkg/logger"
	"github.com/jusmatch/jusmatch-backend/pkg/models"
)

// Notifier delivers "new match" notifications. Fire-and-forget: a delivery
// failure never rolls back match creation.
type Notifier interface {
	NotifyLawyerNewMatch(ctx context.Context, matchID uuid.UUID) error
}

// NopNotifier discards notifications (tests, worker-less deployments).
type NopNotifier struct{}

func (NopNotifier) NotifyLawyerNewMatch(context.Context, uuid.UUID) error { return nil }

// Distributor is the top-level entry point of case distribution: rank the
// candidate pool for a caso and offer it to the best eligible lawyers.
type Distributor struct {
	db        *gorm.DB
	settings  *settings.Store
	scorer    *Scorer
	quota     *QuotaGuard
	lifecycle *Lifecycle
	notifier  Notifier
	log       *logger.Logger
}

func NewDistributor(db *gorm.DB, store *settings.Store, scorer *Scorer, quota *QuotaGuard, lifecycle *Lifecycle, notifier Notifier, log *logger.Logger) *Distributor {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Distributor{
		db:        db,
		settings:  store,
		scorer:    scorer,
		quota:     quota,
		lifecycle: lifecycle,
		notifier:  notifier,
		log:       log,
	}
}

type scoredCandidate struct {
	profile models.LawyerProfile
	score   int
}

// DistributeCaso selects the best eligible lawyers for the caso, creates up
// to max_matches_per_caso PENDENTE matches above min_match_score and reports
// how many were created. Zero is not an error: the caller decides what "no
// lawyers available" means.
//
// Per-candidate failures (quota race lost, duplicate match) are logged and
// skipped; the run only fails when the caso or the candidate pool cannot be
// loaded at all.
func (d *Distributor) DistributeCaso(ctx context.Context, casoID uuid.UUID) (int, error) {
	var caso models.Caso
	if err := d.db.WithContext(ctx).First(&caso, "id = ?", casoID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrCasoNotFound
		}
		return 0, err
	}
	if caso.Status != models.CasoAberto {
		d.log.Debug("caso not eligible for distribution", "caso", casoID, "status", caso.Status)
		return 0, nil
	}

	candidates, err := d.loadCandidates(ctx, &caso)
	if err != nil {
		return 0, err
	}

	minScore := d.settings.GetNumber(ctx, settings.KeyMinMatchScore, settings.DefaultMinMatchScore)
	maxMatches := d.settings.GetNumber(ctx, settings.KeyMaxMatchesPerCaso, settings.DefaultMaxMatchesPerCaso)

	ranked := make([]scoredCandidate, 0, len(candidates))
	for i := range candidates {
		score, err := d.scorer.Score(&caso, &candidates[i])
		if err != nil {
			d.log.Warn("skipping unscorable candidate", "caso", casoID, "lawyer", candidates[i].ID, "error", err)
			continue
		}
		if score < minScore {
			continue
		}
		ranked = append(ranked, scoredCandidate{profile: candidates[i], score: score})
	}

	// Rank: score descending, lawyer ID ascending as the deterministic
	// tie-break. Candidate order never depends on map iteration or DB
	// row order.
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].profile.ID.String() < ranked[j].profile.ID.String()
	})

	created := 0
	for _, cand := range ranked {
		if created >= maxMatches {
			break
		}

		match, err := d.offerToCandidate(ctx, casoID, cand)
		if err != nil {
			switch {
			case errors.Is(err, ErrQuotaRaceLost):
				d.log.Debug("candidate at quota, skipping", "caso", casoID, "lawyer", cand.profile.ID)
			case errors.Is(err, ErrMatchDuplicate):
				d.log.Debug("match already exists, skipping", "caso", casoID, "lawyer", cand.profile.ID)
			default:
				d.log.Error("failed to create match, skipping candidate", "caso", casoID, "lawyer", cand.profile.ID, "error", err)
			}
			continue
		}
		created++

		if err := d.notifier.NotifyLawyerNewMatch(ctx, match.ID); err != nil {
			d.log.Warn("match notification failed", "match", match.ID, "error", err)
		}
	}

	d.log.Info("caso distributed", "caso", casoID, "candidates", len(candidates), "ranked", len(ranked), "created", created)
	return created, nil
}

// offerToCandidate consumes one lead and creates the match in a single
// transaction per candidate, so one candidate's failure never blocks the
// others and a duplicate match rolls the quota increment back.
func (d *Distributor) offerToCandidate(ctx context.Context, casoID uuid.UUID, cand scoredCandidate) (*models.Match, error) {
	var match *models.Match
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := d.quota.ConsumeLead(ctx, tx, cand.profile.ID); err != nil {
			return err
		}
		m, err := d.lifecycle.CreateMatch(ctx, tx, casoID, cand.profile.ID, cand.score)
		if err != nil {
			return err
		}
		match = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return match, nil
}

// loadCandidates queries approved, onboarded lawyers; when the caso carries
// a specialty tag only lawyers holding it qualify.
func (d *Distributor) loadCandidates(ctx context.Context, caso *models.Caso) ([]models.LawyerProfile, error) {
	q := d.db.WithContext(ctx).Model(&models.LawyerProfile{}).
		Where("approved AND onboarding_done").
		Preload("Specialties")

	if caso.Specialty != nil && *caso.Specialty != "" {
		q = q.Where(
			"id IN (?)",
			d.db.Model(&models.LawyerSpecialty{}).
				Select("lawyer_profile_id").
				Where("specialty = ?", *caso.Specialty),
		)
	}

	var candidates []models.LawyerProfile
	if err := q.Order("id").Find(&candidates).Error; err != nil {
		return nil, err
	}
	return candidates, nil
}

// RedistributeOrphans re-runs distribution for ABERTO cases that still have
// zero matches after the grace period. Invoked by the scheduled sweep or an
// admin action.
func (d *Distributor) RedistributeOrphans(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)

	var ids []uuid.UUID
	err := d.db.WithContext(ctx).Model(&models.Caso{}).
		Where("status = ? AND created_at <= ?", models.CasoAberto, cutoff).
		Where("NOT EXISTS (SELECT 1 FROM matches WHERE matches.caso_id = casos.id)").
		Order("created_at").
		Pluck("id", &ids).Error
	if err != nil {
		return 0, err
	}

	totalCreated := 0
	for _, id := range ids {
		created, err := d.DistributeCaso(ctx, id)
		if err != nil {
			d.log.Error("orphan redistribution failed for caso", "caso", id, "error", err)
			continue
		}
		totalCreated += created
	}

	if len(ids) > 0 {
		d.log.Info("orphan redistribution sweep done", "cases", len(ids), "matches_created", totalCreated)
	}
	return totalCreated, nil
}
