package matching

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jusmatch/jusmatch-backend/internal/settings"
	"github.com/jusmatch/jusmatch-backend/pkg/logger"
	"github.com/jusmatch/jusmatch-backend/pkg/models"
)

// expireChunkSize bounds one expiration UPDATE so the sweep never holds an
// unbounded transaction on a large backlog.
const expireChunkSize = 500

// legal transitions of the match state machine. Anything absent is rejected.
// RECUSADO, EXPIRADO and CONTRATADO are terminal.
var transitions = map[models.MatchStatus][]models.MatchStatus{
	models.MatchPendente:    {models.MatchVisualizado, models.MatchAceito, models.MatchRecusado, models.MatchExpirado},
	models.MatchVisualizado: {models.MatchAceito, models.MatchRecusado, models.MatchExpirado},
	models.MatchAceito:      {models.MatchContratado},
}

// CanTransition reports whether the state machine permits from → to.
func CanTransition(from, to models.MatchStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Lifecycle owns match creation and every subsequent state transition.
// No other component writes match rows.
type Lifecycle struct {
	db       *gorm.DB
	settings *settings.Store
	log      *logger.Logger
	now      func() time.Time
}

func NewLifecycle(db *gorm.DB, store *settings.Store, log *logger.Logger) *Lifecycle {
	return &Lifecycle{db: db, settings: store, log: log, now: time.Now}
}

// CreateMatch inserts a PENDENTE match inside the caller's transaction.
//
// Duplicate policy: the unique (caso, lawyer) index decides. On a duplicate
// the existing row is loaded and returned together with ErrMatchDuplicate,
// so callers can treat the call as an idempotent no-op.
func (m *Lifecycle) CreateMatch(ctx context.Context, tx *gorm.DB, casoID, lawyerID uuid.UUID, score int) (*models.Match, error) {
	if casoID == uuid.Nil || lawyerID == uuid.Nil {
		return nil, fmt.Errorf("%w: caso and lawyer ids are required", ErrInvalidInput)
	}
	if score < 0 || score > 100 {
		return nil, fmt.Errorf("%w: score %d out of range", ErrInvalidInput, score)
	}

	now := m.now()
	hours := m.settings.GetNumber(ctx, settings.KeyMatchExpirationHours, settings.DefaultMatchExpirationHours)

	match := models.Match{
		CasoID:          casoID,
		LawyerProfileID: lawyerID,
		Score:           score,
		Status:          models.MatchPendente,
		SentAt:          now,
		ExpiresAt:       now.Add(time.Duration(hours) * time.Hour),
	}
	if err := tx.WithContext(ctx).Create(&match).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// The caller's tx is aborted after the unique violation; the
			// existing row was committed earlier, so read it outside it.
			var existing models.Match
			if e := m.db.WithContext(ctx).First(&existing, "caso_id = ? AND lawyer_profile_id = ?", casoID, lawyerID).Error; e == nil {
				return &existing, ErrMatchDuplicate
			}
			return nil, ErrMatchDuplicate
		}
		return nil, err
	}
	return &match, nil
}

// MarkViewed transitions PENDENTE → VISUALIZADO. Calling it on a match that
// is already viewed, or past that point, is a no-op.
func (m *Lifecycle) MarkViewed(ctx context.Context, matchID uuid.UUID) (*models.Match, error) {
	now := m.now()
	res := m.db.WithContext(ctx).Model(&models.Match{}).
		Where("id = ? AND status = ?", matchID, models.MatchPendente).
		Updates(map[string]any{
			"status":    models.MatchVisualizado,
			"viewed_at": now,
		})
	if res.Error != nil {
		return nil, res.Error
	}

	var match models.Match
	if err := m.db.WithContext(ctx).First(&match, "id = ?", matchID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMatchNotFound
		}
		return nil, err
	}
	return &match, nil
}

// Respond transitions PENDENTE/VISUALIZADO → ACEITO (accepted) or RECUSADO.
// Any other current state yields ErrInvalidTransition; the conditional UPDATE
// keeps concurrent responses from double-transitioning.
func (m *Lifecycle) Respond(ctx context.Context, matchID uuid.UUID, accepted bool) (*models.Match, error) {
	target := models.MatchRecusado
	if accepted {
		target = models.MatchAceito
	}

	now := m.now()
	res := m.db.WithContext(ctx).Model(&models.Match{}).
		Where("id = ? AND status IN ?", matchID, []models.MatchStatus{models.MatchPendente, models.MatchVisualizado}).
		Updates(map[string]any{
			"status":       target,
			"responded_at": now,
		})
	if res.Error != nil {
		return nil, res.Error
	}

	var match models.Match
	if err := m.db.WithContext(ctx).First(&match, "id = ?", matchID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMatchNotFound
		}
		return nil, err
	}
	if res.RowsAffected == 0 {
		return &match, fmt.Errorf("%w: cannot respond from %s", ErrInvalidTransition, match.Status)
	}
	return &match, nil
}

// MarkContracted transitions ACEITO → CONTRATADO and moves the caso to
// EM_ANDAMENTO in the same transaction. Terminal for the match.
func (m *Lifecycle) MarkContracted(ctx context.Context, matchID uuid.UUID) (*models.Match, error) {
	var match models.Match
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Match{}).
			Where("id = ? AND status = ?", matchID, models.MatchAceito).
			Update("status", models.MatchContratado)
		if res.Error != nil {
			return res.Error
		}

		if err := tx.First(&match, "id = ?", matchID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrMatchNotFound
			}
			return err
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: cannot contract from %s", ErrInvalidTransition, match.Status)
		}

		return tx.Model(&models.Caso{}).
			Where("id = ? AND status = ?", match.CasoID, models.CasoAberto).
			Update("status", models.CasoEmAndamento).Error
	})
	if err != nil {
		return nil, err
	}
	return &match, nil
}

// ExpireStale transitions every PENDENTE/VISUALIZADO match whose expiration
// has passed into EXPIRADO, in bounded chunks. Gated by the
// auto_expire_matches flag. Idempotent: a second run finds nothing to do.
func (m *Lifecycle) ExpireStale(ctx context.Context) (int, error) {
	if !m.settings.GetBool(ctx, settings.KeyAutoExpireMatches, settings.DefaultAutoExpireMatches) {
		m.log.Debug("match auto-expiration disabled, skipping sweep")
		return 0, nil
	}

	open := []models.MatchStatus{models.MatchPendente, models.MatchVisualizado}
	total := 0
	for {
		now := m.now()

		var ids []uuid.UUID
		if err := m.db.WithContext(ctx).Model(&models.Match{}).
			Where("status IN ? AND expires_at <= ?", open, now).
			Order("expires_at").
			Limit(expireChunkSize).
			Pluck("id", &ids).Error; err != nil {
			return total, err
		}
		if len(ids) == 0 {
			break
		}

		// Status re-checked in the WHERE: a match accepted between the
		// SELECT and the UPDATE stays accepted.
		res := m.db.WithContext(ctx).Model(&models.Match{}).
			Where("id IN ? AND status IN ?", ids, open).
			Update("status", models.MatchExpirado)
		if res.Error != nil {
			return total, res.Error
		}
		total += int(res.RowsAffected)

		if len(ids) < expireChunkSize {
			break
		}
	}

	if total > 0 {
		m.log.Info("expired stale matches", "count", total)
	}
	return total, nil
}
