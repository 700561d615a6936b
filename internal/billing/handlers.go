package billing

import (
	"encoding/json"
	"errors"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/webhook"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jusmatch/jusmatch-backend/internal/auth"
	"github.com/jusmatch/jusmatch-backend/pkg/logger"
	"github.com/jusmatch/jusmatch-backend/pkg/models"
)

// Handler sells lead-quota plans to advogados. It only moves subscription
// state and plan fields on the profile; lead counters stay owned by the
// matching quota guard.
type Handler struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewHandler(db *gorm.DB, log *logger.Logger) *Handler {
	return &Handler{db: db, log: log}
}

/* ================================ Plans ================================= */

// List Plans godoc
// @Summary      List subscription plans
// @Tags         billing
// @Produce      json
// @Success      200  {array}  models.Plan
// @Router       /plans [get]
func (h *Handler) ListPlans(c *fiber.Ctx) error {
	var plans []models.Plan
	if err := h.db.Order("price_cents").Find(&plans).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	return c.JSON(plans)
}

/* =============================== Checkout =============================== */

// Create Checkout godoc
// @Summary      Start plan checkout
// @Description  Advogado starts a subscription checkout (Stripe, or mock in dev)
// @Tags         billing
// @Security     BearerAuth
// @Produce      json
// @Param        planCode  path  string  true  "plan code"
// @Success      201  {object}  map[string]any  "subscription_id, redirect_url, provider"
// @Failure      404  {object}  models.ErrorResponse
// @Router       /billing/checkout/{planCode} [post]
func (h *Handler) CreateCheckout(c *fiber.Ctx) error {
	userID := auth.MustUserID(c)

	var profile models.LawyerProfile
	if err := h.db.First(&profile, "user_id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.ErrForbidden
		}
		return fiber.ErrInternalServerError
	}

	var plan models.Plan
	if err := h.db.First(&plan, "code = ?", c.Params("planCode")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "unknown plan")
		}
		return fiber.ErrInternalServerError
	}

	if os.Getenv("PAYMENT_PROVIDER") == "stripe" {
		return h.stripeCheckout(c, &profile, &plan)
	}
	return h.mockCheckout(c, &profile, &plan)
}

func (h *Handler) stripeCheckout(c *fiber.Ctx, profile *models.LawyerProfile, plan *models.Plan) error {
	stripe.Key = os.Getenv("STRIPE_SECRET_KEY")

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Price:    stripe.String(plan.StripePriceID),
			Quantity: stripe.Int64(1),
		}},
		SuccessURL:        stripe.String(os.Getenv("BILLING_SUCCESS_URL")),
		CancelURL:         stripe.String(os.Getenv("BILLING_CANCEL_URL")),
		ClientReferenceID: stripe.String(profile.ID.String()),
	}
	s, err := session.New(params)
	if err != nil {
		h.log.Error("stripe checkout session failed", "plan", plan.Code, "error", err)
		return fiber.ErrInternalServerError
	}

	sub := models.Subscription{
		LawyerProfileID: profile.ID,
		PlanCode:        plan.Code,
		Status:          models.SubscriptionPending,
		StripeSessionID: &s.ID,
	}
	if err := h.db.Create(&sub).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"subscription_id": sub.ID,
		"redirect_url":    s.URL,
		"provider":        "stripe",
	})
}

func (h *Handler) mockCheckout(c *fiber.Ctx, profile *models.LawyerProfile, plan *models.Plan) error {
	sessionID := "mock_" + uuid.NewString()
	sub := models.Subscription{
		LawyerProfileID: profile.ID,
		PlanCode:        plan.Code,
		Status:          models.SubscriptionPending,
		StripeSessionID: &sessionID,
	}
	if err := h.db.Create(&sub).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	// Fake checkout page; the frontend completes via /billing/mock/complete.
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"subscription_id": sub.ID,
		"redirect_url":    "mock://checkout?subscription_id=" + sub.ID.String(),
		"provider":        "mock",
	})
}

/* ================================ Cancel ================================ */

// Cancel Subscription godoc
// @Summary      Cancel my subscription
// @Description  Advogado cancels their active subscription and drops back to the free tier
// @Tags         billing
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  map[string]string
// @Failure      404  {object}  models.ErrorResponse
// @Router       /billing/subscription/cancel [post]
func (h *Handler) CancelSubscription(c *fiber.Ctx) error {
	userID := auth.MustUserID(c)

	var profile models.LawyerProfile
	if err := h.db.First(&profile, "user_id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.ErrForbidden
		}
		return fiber.ErrInternalServerError
	}

	err := h.db.Transaction(func(tx *gorm.DB) error {
		var sub models.Subscription
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("lawyer_profile_id = ? AND status = ?", profile.ID, models.SubscriptionActive).
			Order("created_at DESC").
			First(&sub).Error
		if err != nil {
			return err
		}

		if err := tx.Model(&sub).
			Update("status", models.SubscriptionCancelled).Error; err != nil {
			return err
		}

		// Back to the free tier immediately. Lead counters stay untouched;
		// the quota guard keeps owning them.
		return tx.Model(&models.LawyerProfile{}).
			Where("id = ?", profile.ID).
			Updates(map[string]any{
				"plan_code":          models.FreePlanCode,
				"monthly_lead_quota": models.FreeMonthlyLeadQuota,
			}).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "no active subscription")
		}
		h.log.Error("subscription cancellation failed", "profile", profile.ID, "error", err)
		return fiber.ErrInternalServerError
	}

	return c.JSON(fiber.Map{"status": string(models.SubscriptionCancelled)})
}

/* ============================ Stripe Webhook ============================ */

// Stripe Webhook godoc
// @Summary      Stripe webhook
// @Description  Activates the subscription when checkout completes
// @Tags         billing
// @Accept       json
// @Success      200
// @Router       /billing/stripe/webhook [post]
func (h *Handler) StripeWebhook(c *fiber.Ctx) error {
	event, err := webhook.ConstructEvent(
		c.Body(),
		c.Get("Stripe-Signature"),
		os.Getenv("STRIPE_WEBHOOK_SECRET"),
	)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid signature")
	}

	if event.Type != "checkout.session.completed" {
		return c.SendStatus(fiber.StatusOK)
	}

	var s stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &s); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
	}

	if err := h.activateBySession(c, s.ID); err != nil {
		h.log.Error("subscription activation failed", "session", s.ID, "error", err)
		return fiber.ErrInternalServerError
	}
	return c.SendStatus(fiber.StatusOK)
}

/* ========================= Mock Complete (dev) ========================== */

type mockCompleteReq struct {
	SubscriptionID string `json:"subscription_id"`
}

// MockComplete completes a mock checkout. Dev only, guarded by X-Dev-Secret.
func (h *Handler) MockComplete(c *fiber.Ctx) error {
	if os.Getenv("APP_ENV") != "dev" || os.Getenv("PAYMENT_PROVIDER") == "stripe" {
		return fiber.ErrNotFound
	}
	if c.Get("X-Dev-Secret") == "" || c.Get("X-Dev-Secret") != os.Getenv("DEV_PAYMENT_SECRET") {
		return fiber.NewError(fiber.StatusUnauthorized, "missing/invalid X-Dev-Secret")
	}

	var in mockCompleteReq
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	subID, err := uuid.Parse(in.SubscriptionID)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid subscription id")
	}

	var sub models.Subscription
	if err := h.db.First(&sub, "id = ?", subID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.ErrNotFound
		}
		return fiber.ErrInternalServerError
	}
	if sub.StripeSessionID == nil {
		return fiber.ErrConflict
	}
	if err := h.activateBySession(c, *sub.StripeSessionID); err != nil {
		return fiber.ErrInternalServerError
	}
	return c.JSON(fiber.Map{"status": "active"})
}

// activateBySession marks the subscription active and applies the plan's
// quota to the lawyer profile, atomically and idempotently (a replayed
// webhook finds the row already active and changes nothing).
func (h *Handler) activateBySession(c *fiber.Ctx, sessionID string) error {
	return h.db.Transaction(func(tx *gorm.DB) error {
		var sub models.Subscription
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&sub, "stripe_session_id = ?", sessionID).Error; err != nil {
			return err
		}
		if sub.Status == models.SubscriptionActive {
			return nil
		}

		var plan models.Plan
		if err := tx.First(&plan, "code = ?", sub.PlanCode).Error; err != nil {
			return err
		}

		periodEnd := time.Now().AddDate(0, 1, 0)
		if err := tx.Model(&sub).Updates(map[string]any{
			"status":             models.SubscriptionActive,
			"current_period_end": periodEnd,
		}).Error; err != nil {
			return err
		}

		return tx.Model(&models.LawyerProfile{}).
			Where("id = ?", sub.LawyerProfileID).
			Updates(map[string]any{
				"plan_code":          plan.Code,
				"monthly_lead_quota": plan.MonthlyLeadQuota,
			}).Error
	})
}
