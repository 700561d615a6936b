package matching

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jusmatch/jusmatch-backend/pkg/models"
)

// Denial reasons reported by CanReceiveLead. These are expected, common
// conditions during distribution, never system faults.
const (
	DenyNotApproved          = "lawyer not approved"
	DenyOnboardingIncomplete = "onboarding incomplete"
	DenyPlanExpired          = "plan expired"
	DenyQuotaExhausted       = "monthly lead quota exhausted"
)

// Decision is the non-exceptional result of a quota check.
type Decision struct {
	Allowed bool
	Reason  string
}

// QuotaGuard owns the lead counter on lawyer profiles. All counter mutations
// in the system go through ConsumeLead; nothing else writes leads_received.
type QuotaGuard struct {
	db  *gorm.DB
	now func() time.Time
}

func NewQuotaGuard(db *gorm.DB) *QuotaGuard {
	return &QuotaGuard{db: db, now: time.Now}
}

// cycleStart is the UTC calendar-month boundary the quota cycle resets on.
func cycleStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// resetCycleIfDue zeroes the counter when the reset timestamp predates the
// current month. The conditional WHERE makes the reset idempotent and safe
// under concurrent runs: only one of them affects a row.
func (g *QuotaGuard) resetCycleIfDue(tx *gorm.DB, lawyerID uuid.UUID) error {
	now := g.now()
	return tx.Model(&models.LawyerProfile{}).
		Where("id = ? AND quota_reset_at < ?", lawyerID, cycleStart(now)).
		Updates(map[string]any{
			"leads_received": 0,
			"quota_reset_at": now,
		}).Error
}

// planCurrent reports whether the profile's plan is still usable: the free
// tier always is; a paid plan needs an active subscription whose period has
// not ended yet.
func (g *QuotaGuard) planCurrent(tx *gorm.DB, p *models.LawyerProfile) (bool, error) {
	if p.PlanCode == "" || p.PlanCode == models.FreePlanCode {
		return true, nil
	}
	var n int64
	err := tx.Model(&models.Subscription{}).
		Where("lawyer_profile_id = ? AND status = ? AND current_period_end > ?",
			p.ID, models.SubscriptionActive, g.now()).
		Count(&n).Error
	return n > 0, err
}

// CanReceiveLead reports whether the lawyer may receive one more lead this
// billing cycle. The cycle reset runs first, in the same transaction as the
// read, so the answer never reflects a stale counter.
func (g *QuotaGuard) CanReceiveLead(ctx context.Context, lawyerID uuid.UUID) (Decision, error) {
	var decision Decision
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := g.resetCycleIfDue(tx, lawyerID); err != nil {
			return err
		}

		var p models.LawyerProfile
		if err := tx.First(&p, "id = ?", lawyerID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrLawyerNotFound
			}
			return err
		}

		planOK, err := g.planCurrent(tx, &p)
		if err != nil {
			return err
		}

		switch {
		case !p.Approved:
			decision = Decision{Reason: DenyNotApproved}
		case !p.OnboardingDone:
			decision = Decision{Reason: DenyOnboardingIncomplete}
		case !planOK:
			decision = Decision{Reason: DenyPlanExpired}
		case p.MonthlyLeadQuota != models.QuotaUnlimited && p.LeadsReceived >= p.MonthlyLeadQuota:
			decision = Decision{Reason: DenyQuotaExhausted}
		default:
			decision = Decision{Allowed: true}
		}
		return nil
	})
	return decision, err
}

// ConsumeLead atomically increments the lead counter, bounded by the plan
// quota, inside the caller's transaction. The check and the increment are a
// single conditional UPDATE, so two concurrent distribution runs cannot
// overrun the quota: one of them simply affects zero rows and gets
// ErrQuotaRaceLost.
func (g *QuotaGuard) ConsumeLead(ctx context.Context, tx *gorm.DB, lawyerID uuid.UUID) error {
	if err := g.resetCycleIfDue(tx, lawyerID); err != nil {
		return err
	}

	// Eligibility, the quota bound and the paid-plan expiry are all part of
	// the one conditional UPDATE, so no separate check can go stale.
	now := g.now()
	res := tx.WithContext(ctx).Model(&models.LawyerProfile{}).
		Where("id = ? AND approved AND onboarding_done", lawyerID).
		Where("monthly_lead_quota = ? OR leads_received < monthly_lead_quota", models.QuotaUnlimited).
		Where(`plan_code = ? OR EXISTS (
			SELECT 1 FROM subscriptions s
			WHERE s.lawyer_profile_id = lawyer_profiles.id
			  AND s.status = ? AND s.current_period_end > ?)`,
			models.FreePlanCode, models.SubscriptionActive, now).
		Updates(map[string]any{
			"leads_received":  gorm.Expr("leads_received + 1"),
			"last_matched_at": now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrQuotaRaceLost
	}
	return nil
}
