package cases

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
	"github.com/jusmatch/jusmatch-backend/pkg/logger"
	"github.com/jusmatch/jusmatch-backend/pkg/models"
	"github.com/jusmatch/jusmatch-backend/pkg/utils"
	"github.com/jusmatch/jusmatch-backend/pkg/validation"
)

// ===== DTOs =====

type CreateCasoRequest struct {
	Title       string `json:"title" validate:"required,max=120"`
	Description string `json:"description" validate:"required,max=4000"`
	Specialty   string `json:"specialty" validate:"omitempty,max=60"`
	Urgencia    string `json:"urgencia" validate:"omitempty,oneof=BAIXA NORMAL ALTA URGENTE"`
	City        string `json:"city" validate:"omitempty,max=80"`
	State       string `json:"state" validate:"omitempty,uf"`
}

type ConvertChatRequest struct {
	Title        string `json:"title" validate:"required,max=120"`
	Conversation string `json:"conversation" validate:"required"`
	AISummary    string `json:"ai_summary" validate:"omitempty,max=4000"`
	Specialty    string `json:"specialty" validate:"omitempty,max=60"`
	Urgencia     string `json:"urgencia" validate:"omitempty,oneof=BAIXA NORMAL ALTA URGENTE"`
}

type Handler struct {
	db   *gorm.DB
	dist *matching.Distributor
	log  *logger.Logger
}

func NewHandler(db *gorm.DB, dist *matching.Distributor, log *logger.Logger) *Handler {
	return &Handler{db: db, dist: dist, log: log}
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

// Create Caso godoc
// @Summary      Create caso
// @Description  Cidadão submits a new legal problem; distribution runs immediately
// @Tags         cases
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  CreateCasoRequest  true  "Caso payload"
// @Success      201  {object}  map[string]any  "id, matches_created"
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      401  {object}  models.ErrorResponse
// @Router       /cases [post]
func (h *Handler) Create(c *fiber.Ctx) error {
	var in CreateCasoRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	cidadaoID, _ := uuid.Parse(auth.MustUserID(c))

	urg := models.UrgenciaNormal
	if in.Urgencia != "" {
		urg = models.Urgencia(in.Urgencia)
	}

	cs := models.Caso{
		CidadaoID:   cidadaoID,
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		Urgencia:    urg,
		Status:      models.CasoAberto,
		City:        strings.TrimSpace(in.City),
		State:       strings.ToUpper(strings.TrimSpace(in.State)),
	}
	if s := strings.TrimSpace(in.Specialty); s != "" {
		cs.Specialty = &s
	}
	// Fall back to the citizen's registered location when the caso has none.
	if cs.City == "" {
		var u models.User
		if err := h.db.First(&u, "id = ?", cidadaoID).Error; err == nil {
			cs.City, cs.State = u.City, u.State
		}
	}

	if err := h.db.Create(&cs).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	utils.LogCasoEvent(c.Context(), h.db, cs.ID, cidadaoID, "created", "", string(cs.Status), "")

	// Distribution runs synchronously with the request; a failed run does not
	// fail the creation (the orphan sweep will retry later), but it is logged.
	created, err := h.dist.DistributeCaso(c.Context(), cs.ID)
	if err != nil {
		h.log.Error("distribution failed", "caso", cs.ID, "error", err)
		created = 0
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id":              cs.ID,
		"matches_created": created,
	})
}

// Convert Chat godoc
// @Summary      Convert anonymous chat into a caso
// @Description  Creates a PENDENTE_ATIVACAO caso from an anonymous-chat conversation; it enters distribution on activation
// @Tags         cases
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  ConvertChatRequest  true  "Conversation payload"
// @Success      201  {object}  map[string]string  "id"
// @Failure      400  {object}  models.ValidationErrorResponse
// @Router       /cases/convert-chat [post]
func (h *Handler) ConvertChat(c *fiber.Ctx) error {
	var in ConvertChatRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	cidadaoID, _ := uuid.Parse(auth.MustUserID(c))

	urg := models.UrgenciaNormal
	if in.Urgencia != "" {
		urg = models.Urgencia(in.Urgencia)
	}

	cs := models.Caso{
		CidadaoID:    cidadaoID,
		Title:        strings.TrimSpace(in.Title),
		Description:  strings.TrimSpace(in.AISummary),
		AISummary:    strings.TrimSpace(in.AISummary),
		Conversation: in.Conversation,
		Urgencia:     urg,
		Status:       models.CasoPendenteAtivacao,
	}
	if s := strings.TrimSpace(in.Specialty); s != "" {
		cs.Specialty = &s
	}
	if err := h.db.Create(&cs).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	utils.LogCasoEvent(c.Context(), h.db, cs.ID, cidadaoID, "converted_from_chat", "", string(cs.Status), "")

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": cs.ID})
}

// Activate godoc
// @Summary      Activate caso
// @Description  Moves a PENDENTE_ATIVACAO caso to ABERTO and distributes it
// @Tags         cases
// @Security     BearerAuth
// @Produce      json
// @Param        id  path  string  true  "caso id (uuid)"
// @Success      200  {object}  map[string]any  "id, matches_created"
// @Failure      404  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse
// @Router       /cases/{id}/activate [post]
func (h *Handler) Activate(c *fiber.Ctx) error {
	cidadaoID := auth.MustUserID(c)
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid caso id")
	}

	var cs models.Caso
	if err := h.db.First(&cs, "id = ? AND cidadao_id = ?", id, cidadaoID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.ErrNotFound
		}
		return fiber.ErrInternalServerError
	}
	if cs.Status != models.CasoPendenteAtivacao {
		return fiber.NewError(fiber.StatusConflict, "caso is not pending activation")
	}

	if err := h.db.Model(&cs).Update("status", models.CasoAberto).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	actorID, _ := uuid.Parse(cidadaoID)
	utils.LogCasoEvent(c.Context(), h.db, cs.ID, actorID, "activated",
		string(models.CasoPendenteAtivacao), string(models.CasoAberto), "")

	created, err := h.dist.DistributeCaso(c.Context(), cs.ID)
	if err != nil {
		h.log.Error("distribution failed", "caso", cs.ID, "error", err)
		created = 0
	}
	return c.JSON(fiber.Map{"id": cs.ID, "matches_created": created})
}

type casoWithCounts struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	Specialty *string   `json:"specialty"`
	Urgencia  string    `json:"urgencia"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	Matches   int64     `json:"matches"`
}

// List My Cases godoc
// @Summary      List my cases
// @Description  Cidadão lists their own cases with match counts (paginated)
// @Tags         cases
// @Security     BearerAuth
// @Produce      json
// @Param        page      query int false "page"
// @Param        pageSize  query int false "pageSize"
// @Success      200  {object}  map[string]any
// @Failure      401  {object}  models.ErrorResponse
// @Router       /cases/mine [get]
func (h *Handler) ListMine(c *fiber.Ctx) error {
	cidadaoID := auth.MustUserID(c)
	page, size := parsePage(c)

	var total int64
	if err := h.db.Model(&models.Caso{}).
		Where("cidadao_id = ?", cidadaoID).
		Count(&total).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	rows := make([]casoWithCounts, 0, size)
	if err := h.db.
		Table("casos").
		Select(`casos.id, casos.title, casos.specialty, casos.urgencia, casos.status, casos.created_at,
          COUNT(matches.id) AS matches`).
		Joins("LEFT JOIN matches ON matches.caso_id = casos.id").
		Where("casos.cidadao_id = ?", cidadaoID).
		Group("casos.id").
		Order("casos.created_at DESC").
		Offset((page - 1) * size).Limit(size).
		Scan(&rows).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	if rows == nil {
		rows = []casoWithCounts{}
	}

	return c.JSON(fiber.Map{
		"page": page, "pageSize": size, "total": total,
		"pages": int(math.Ceil(float64(total) / float64(size))),
		"items": rows,
	})
}

// Get caso detail for owner
// @Summary      Caso detail (owner)
// @Description  Cidadão gets their caso detail with matches
// @Tags         cases
// @Security     BearerAuth
// @Produce      json
// @Param        id   path string true "caso id (uuid)"
// @Success      200  {object}  models.Caso
// @Failure      401  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /cases/{id} [get]
func (h *Handler) GetDetail(c *fiber.Ctx) error {
	cidadaoID := auth.MustUserID(c)
	id := c.Params("id")

	var cs models.Caso
	err := h.db.
		Where("id = ? AND cidadao_id = ?", id, cidadaoID).
		Preload("Matches", func(db *gorm.DB) *gorm.DB { return db.Order("score DESC") }).
		First(&cs).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.ErrNotFound
		}
		return fiber.ErrInternalServerError
	}

	if cs.Matches == nil {
		cs.Matches = []models.Match{}
	}
	return c.JSON(cs)
}

// Cancel godoc
// @Summary      Cancel caso
// @Description  Owner cancels a caso; open matches stop being actionable
// @Tags         cases
// @Security     BearerAuth
// @Produce      json
// @Param        id  path  string  true  "caso id (uuid)"
// @Success      200  {object}  map[string]string
// @Failure      404  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse
// @Router       /cases/{id}/cancel [post]
func (h *Handler) Cancel(c *fiber.Ctx) error {
	cidadaoID := auth.MustUserID(c)
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid caso id")
	}

	var cs models.Caso
	if err := h.db.First(&cs, "id = ? AND cidadao_id = ?", id, cidadaoID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.ErrNotFound
		}
		return fiber.ErrInternalServerError
	}
	switch cs.Status {
	case models.CasoFechado, models.CasoCancelado:
		return fiber.NewError(fiber.StatusConflict, "caso is already closed")
	}

	oldStatus := cs.Status
	if err := h.db.Model(&cs).Update("status", models.CasoCancelado).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	actorID, _ := uuid.Parse(cidadaoID)
	utils.LogCasoEvent(c.Context(), h.db, cs.ID, actorID, "cancelled", string(oldStatus), string(models.CasoCancelado), "")

	return c.JSON(fiber.Map{"status": string(models.CasoCancelado)})
}
