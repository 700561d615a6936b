package lawyers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jusmatch/jusmatch-backend/internal/auth"
	"github.com/jusmatch/jusmatch-backend/internal/matching"
	"github.com/jusmatch/jusmatch-backend/pkg/models"
	"github.com/jusmatch/jusmatch-backend/pkg/validation"
)

type Handler struct {
	db    *gorm.DB
	quota *matching.QuotaGuard
}

func NewHandler(db *gorm.DB, quota *matching.QuotaGuard) *Handler {
	return &Handler{db: db, quota: quota}
}

/* ================================ DTOs ================================= */

type UpdateProfileRequest struct {
	City               string   `json:"city" validate:"omitempty,max=80"`
	State              string   `json:"state" validate:"omitempty,uf"`
	Specialties        []string `json:"specialties" validate:"omitempty,max=10,dive,min=2,max=60"`
	OnlineConsultation *bool    `json:"online_consultation"`
	HourlyPriceCents   *int     `json:"hourly_price_cents" validate:"omitempty,gte=0"`
}

type ProfileResponse struct {
	ID                 uuid.UUID `json:"id"`
	OABNumber          string    `json:"oab_number"`
	OABState           string    `json:"oab_state"`
	Verified           bool      `json:"verified"`
	Approved           bool      `json:"approved"`
	City               string    `json:"city"`
	State              string    `json:"state"`
	Specialties        []string  `json:"specialties"`
	OnboardingDone     bool      `json:"onboarding_done"`
	OnlineConsultation bool      `json:"online_consultation"`
	HourlyPriceCents   int       `json:"hourly_price_cents"`
	PlanCode           string    `json:"plan_code"`
	MonthlyLeadQuota   int       `json:"monthly_lead_quota"`
	LeadsReceived      int       `json:"leads_received"`
}

func toResponse(p *models.LawyerProfile) ProfileResponse {
	specialties := make([]string, 0, len(p.Specialties))
	for _, s := range p.Specialties {
		specialties = append(specialties, s.Specialty)
	}
	return ProfileResponse{
		ID:                 p.ID,
		OABNumber:          p.OABNumber,
		OABState:           p.OABState,
		Verified:           p.Verified,
		Approved:           p.Approved,
		City:               p.City,
		State:              p.State,
		Specialties:        specialties,
		OnboardingDone:     p.OnboardingDone,
		OnlineConsultation: p.OnlineConsultation,
		HourlyPriceCents:   p.HourlyPriceCents,
		PlanCode:           p.PlanCode,
		MonthlyLeadQuota:   p.MonthlyLeadQuota,
		LeadsReceived:      p.LeadsReceived,
	}
}

func (h *Handler) loadMine(c *fiber.Ctx) (*models.LawyerProfile, error) {
	userID := auth.MustUserID(c)
	var p models.LawyerProfile
	if err := h.db.Preload("Specialties").First(&p, "user_id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fiber.ErrNotFound
		}
		return nil, fiber.ErrInternalServerError
	}
	return &p, nil
}

/* =============================== Profile ================================ */

// Get Profile godoc
// @Summary      My lawyer profile
// @Tags         lawyers
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  ProfileResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /lawyers/me [get]
func (h *Handler) GetMine(c *fiber.Ctx) error {
	p, err := h.loadMine(c)
	if err != nil {
		return err
	}
	return c.JSON(toResponse(p))
}

// Update Profile godoc
// @Summary      Update my lawyer profile
// @Description  Onboarding is complete once city, state and at least one specialty are set
// @Tags         lawyers
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  UpdateProfileRequest  true  "Profile payload"
// @Success      200  {object}  ProfileResponse
// @Failure      400  {object}  models.ValidationErrorResponse
// @Router       /lawyers/me [put]
func (h *Handler) UpdateMine(c *fiber.Ctx) error {
	p, err := h.loadMine(c)
	if err != nil {
		return err
	}

	var in UpdateProfileRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	err = h.db.Transaction(func(tx *gorm.DB) error {
		updates := map[string]any{}
		if in.City != "" {
			updates["city"] = strings.TrimSpace(in.City)
		}
		if in.State != "" {
			updates["state"] = strings.ToUpper(strings.TrimSpace(in.State))
		}
		if in.OnlineConsultation != nil {
			updates["online_consultation"] = *in.OnlineConsultation
		}
		if in.HourlyPriceCents != nil {
			updates["hourly_price_cents"] = *in.HourlyPriceCents
		}
		if len(updates) > 0 {
			if err := tx.Model(p).Updates(updates).Error; err != nil {
				return err
			}
		}

		if in.Specialties != nil {
			if err := tx.Where("lawyer_profile_id = ?", p.ID).
				Delete(&models.LawyerSpecialty{}).Error; err != nil {
				return err
			}
			seen := map[string]bool{}
			for _, s := range in.Specialties {
				s = strings.TrimSpace(s)
				if s == "" || seen[strings.ToLower(s)] {
					continue
				}
				seen[strings.ToLower(s)] = true
				if err := tx.Create(&models.LawyerSpecialty{
					LawyerProfileID: p.ID,
					Specialty:       s,
				}).Error; err != nil {
					return err
				}
			}
		}

		// Recompute the onboarding flag from the fresh row.
		var fresh models.LawyerProfile
		if err := tx.Preload("Specialties").First(&fresh, "id = ?", p.ID).Error; err != nil {
			return err
		}
		done := fresh.City != "" && fresh.State != "" && len(fresh.Specialties) > 0 && fresh.OABNumber != ""
		if done != fresh.OnboardingDone {
			if err := tx.Model(&fresh).Update("onboarding_done", done).Error; err != nil {
				return err
			}
		}
		fresh.OnboardingDone = done
		*p = fresh
		return nil
	})
	if err != nil {
		return fiber.ErrInternalServerError
	}

	return c.JSON(toResponse(p))
}

// Quota godoc
// @Summary      My lead quota status
// @Description  Whether one more lead may be received this cycle, and why not
// @Tags         lawyers
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  map[string]any  "allowed, reason"
// @Router       /lawyers/me/quota [get]
func (h *Handler) Quota(c *fiber.Ctx) error {
	p, err := h.loadMine(c)
	if err != nil {
		return err
	}
	decision, err := h.quota.CanReceiveLead(c.Context(), p.ID)
	if err != nil {
		return fiber.ErrInternalServerError
	}
	return c.JSON(fiber.Map{"allowed": decision.Allowed, "reason": decision.Reason})
}

/* ============================= Admin actions ============================ */

type moderateReq struct {
	Approved *bool `json:"approved"`
	Verified *bool `json:"verified"`
}

// Moderate godoc
// @Summary      Approve/verify a lawyer (admin)
// @Tags         admin
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string       true  "lawyer profile id (uuid)"
// @Param        payload  body  moderateReq  true  "moderation flags"
// @Success      200  {object}  ProfileResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /admin/lawyers/{id} [patch]
func (h *Handler) Moderate(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid profile id")
	}

	var in moderateReq
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}

	var p models.LawyerProfile
	if err := h.db.Preload("Specialties").First(&p, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.ErrNotFound
		}
		return fiber.ErrInternalServerError
	}

	updates := map[string]any{}
	if in.Approved != nil {
		updates["approved"] = *in.Approved
		p.Approved = *in.Approved
	}
	if in.Verified != nil {
		updates["verified"] = *in.Verified
		p.Verified = *in.Verified
	}
	if len(updates) > 0 {
		if err := h.db.Model(&models.LawyerProfile{}).Where("id = ?", p.ID).Updates(updates).Error; err != nil {
			return fiber.ErrInternalServerError
		}
	}
	return c.JSON(toResponse(&p))
}
