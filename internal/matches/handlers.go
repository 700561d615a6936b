package matches

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jusmatch/jusmatch-backend/internal/auth"
	"github.com/jusmatch/jusmatch-backend/internal/matching"
	"github.com/jusmatch/jusmatch-backend/pkg/models"
	"github.com/jusmatch/jusmatch-backend/pkg/sanitize"
)

// Handler exposes match offers to advogados and the contract action to the
// caso owner. All state changes go through the matching lifecycle; handlers
// only do ownership checks and JSON shaping.
type Handler struct {
	db        *gorm.DB
	lifecycle *matching.Lifecycle
}

func NewHandler(db *gorm.DB, lifecycle *matching.Lifecycle) *Handler {
	return &Handler{db: db, lifecycle: lifecycle}
}

func parsePage(c *fiber.Ctx) (page, size int) {
	page, _ = strconv.Atoi(c.Query("page", "1"))
	size, _ = strconv.Atoi(c.Query("pageSize", "10"))
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 50 {
		size = 10
	}
	return
}

// profileID resolves the lawyer profile of the authenticated advogado.
func (h *Handler) profileID(c *fiber.Ctx) (uuid.UUID, error) {
	userID := auth.MustUserID(c)
	var p models.LawyerProfile
	if err := h.db.Select("id").First(&p, "user_id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return uuid.Nil, fiber.ErrForbidden
		}
		return uuid.Nil, fiber.ErrInternalServerError
	}
	return p.ID, nil
}

// loadOwned loads a match and verifies it belongs to the advogado.
func (h *Handler) loadOwned(c *fiber.Ctx) (*models.Match, error) {
	pid, err := h.profileID(c)
	if err != nil {
		return nil, err
	}
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "invalid match id")
	}

	var m models.Match
	if err := h.db.First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fiber.ErrNotFound
		}
		return nil, fiber.ErrInternalServerError
	}
	if m.LawyerProfileID != pid {
		return nil, fiber.ErrForbidden
	}
	return &m, nil
}

/* ============================ Lawyer listing ============================ */

type myMatchItem struct {
	ID          uuid.UUID          `json:"id"`
	CasoID      uuid.UUID          `json:"caso_id"`
	Title       string             `json:"title"`
	Preview     string             `json:"preview"`
	Specialty   *string            `json:"specialty"`
	Urgencia    models.Urgencia    `json:"urgencia"`
	Score       int                `json:"score"`
	Status      models.MatchStatus `json:"status"`
	SentAt      time.Time          `json:"sent_at"`
	ExpiresAt   time.Time          `json:"expires_at"`
	RespondedAt *time.Time         `json:"responded_at"`
}

// List My Matches godoc
// @Summary      List my match offers
// @Description  Advogado lists received offers; caso details stay redacted until accepted
// @Tags         matches
// @Security     BearerAuth
// @Produce      json
// @Param        page      query int    false "page"
// @Param        pageSize  query int    false "pageSize"
// @Param        status    query string false "status filter"
// @Success      200  {object}  map[string]any
// @Failure      401  {object}  models.ErrorResponse
// @Router       /matches/mine [get]
func (h *Handler) ListMine(c *fiber.Ctx) error {
	pid, err := h.profileID(c)
	if err != nil {
		return err
	}
	page, size := parsePage(c)
	status := strings.TrimSpace(c.Query("status"))

	q := h.db.Model(&models.Match{}).Where("lawyer_profile_id = ?", pid)
	if status != "" {
		switch models.MatchStatus(status) {
		case models.MatchPendente, models.MatchVisualizado, models.MatchAceito,
			models.MatchRecusado, models.MatchContratado, models.MatchExpirado:
			q = q.Where("status = ?", status)
		default:
			return fiber.NewError(fiber.StatusBadRequest, "invalid status filter")
		}
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	var rows []models.Match
	if err := q.Order("sent_at DESC").
		Offset((page - 1) * size).Limit(size).
		Find(&rows).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	// Fetch the referenced cases in one query (no N+1).
	casoIDs := make([]uuid.UUID, 0, len(rows))
	for _, m := range rows {
		casoIDs = append(casoIDs, m.CasoID)
	}
	casoByID := map[uuid.UUID]models.Caso{}
	if len(casoIDs) > 0 {
		var casos []models.Caso
		if err := h.db.Where("id IN ?", casoIDs).Find(&casos).Error; err != nil {
			return fiber.ErrInternalServerError
		}
		for _, cs := range casos {
			casoByID[cs.ID] = cs
		}
	}

	items := make([]myMatchItem, 0, len(rows))
	for _, m := range rows {
		cs := casoByID[m.CasoID]

		// Contact details stay hidden until the lawyer accepts.
		desc := cs.Description
		if m.Status == models.MatchPendente || m.Status == models.MatchVisualizado {
			desc = sanitize.RedactPII(desc)
		}

		items = append(items, myMatchItem{
			ID:          m.ID,
			CasoID:      m.CasoID,
			Title:       cs.Title,
			Preview:     sanitize.Summary(desc, 240),
			Specialty:   cs.Specialty,
			Urgencia:    cs.Urgencia,
			Score:       m.Score,
			Status:      m.Status,
			SentAt:      m.SentAt,
			ExpiresAt:   m.ExpiresAt,
			RespondedAt: m.RespondedAt,
		})
	}

	return c.JSON(fiber.Map{
		"page": page, "pageSize": size, "total": total,
		"pages": int(math.Ceil(float64(total) / float64(size))),
		"items": items,
	})
}

/* ============================ State changes ============================= */

// Mark Viewed godoc
// @Summary      Mark match viewed
// @Tags         matches
// @Security     BearerAuth
// @Produce      json
// @Param        id  path  string  true  "match id (uuid)"
// @Success      200  {object}  models.Match
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /matches/{id}/viewed [post]
func (h *Handler) MarkViewed(c *fiber.Ctx) error {
	m, err := h.loadOwned(c)
	if err != nil {
		return err
	}

	updated, err := h.lifecycle.MarkViewed(c.Context(), m.ID)
	if err != nil {
		if errors.Is(err, matching.ErrMatchNotFound) {
			return fiber.ErrNotFound
		}
		return fiber.ErrInternalServerError
	}
	return c.JSON(updated)
}

type respondReq struct {
	Accepted bool `json:"accepted"`
}

// Respond godoc
// @Summary      Accept or reject a match
// @Description  Valid only while the match is PENDENTE or VISUALIZADO
// @Tags         matches
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string      true  "match id (uuid)"
// @Param        payload  body  respondReq  true  "response"
// @Success      200  {object}  models.Match
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse  "not respondable in current state"
// @Router       /matches/{id}/respond [post]
func (h *Handler) Respond(c *fiber.Ctx) error {
	m, err := h.loadOwned(c)
	if err != nil {
		return err
	}

	var in respondReq
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}

	updated, err := h.lifecycle.Respond(c.Context(), m.ID, in.Accepted)
	if err != nil {
		switch {
		case errors.Is(err, matching.ErrMatchNotFound):
			return fiber.ErrNotFound
		case errors.Is(err, matching.ErrInvalidTransition):
			return fiber.NewError(fiber.StatusConflict, "match can no longer be responded to")
		default:
			return fiber.ErrInternalServerError
		}
	}
	return c.JSON(updated)
}

// Contract godoc
// @Summary      Mark lawyer as contracted
// @Description  Caso owner confirms the engagement of an accepted match
// @Tags         matches
// @Security     BearerAuth
// @Produce      json
// @Param        id  path  string  true  "match id (uuid)"
// @Success      200  {object}  models.Match
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse
// @Router       /matches/{id}/contract [post]
func (h *Handler) Contract(c *fiber.Ctx) error {
	cidadaoID := auth.MustUserID(c)
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid match id")
	}

	// Only the caso owner can contract.
	var m models.Match
	if err := h.db.First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.ErrNotFound
		}
		return fiber.ErrInternalServerError
	}
	var cnt int64
	if err := h.db.Model(&models.Caso{}).
		Where("id = ? AND cidadao_id = ?", m.CasoID, cidadaoID).
		Count(&cnt).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	if cnt == 0 {
		return fiber.ErrForbidden
	}

	updated, err := h.lifecycle.MarkContracted(c.Context(), m.ID)
	if err != nil {
		switch {
		case errors.Is(err, matching.ErrMatchNotFound):
			return fiber.ErrNotFound
		case errors.Is(err, matching.ErrInvalidTransition):
			return fiber.NewError(fiber.StatusConflict, "match is not accepted")
		default:
			return fiber.ErrInternalServerError
		}
	}
	return c.JSON(updated)
}
