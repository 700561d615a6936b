package chat

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jusmatch/jusmatch-backend/internal/auth"
	"github.com/jusmatch/jusmatch-backend/internal/settings"
	"github.com/jusmatch/jusmatch-backend/pkg/models"
	"github.com/jusmatch/jusmatch-backend/pkg/sanitize"
	"github.com/jusmatch/jusmatch-backend/pkg/validation"
)

// Handler is the per-match message thread between the cidadão who owns the
// caso and the advogado the match was offered to. Access is tied to the
// match state, not to the caso, so two lawyers on the same caso never see
// each other's thread.
type Handler struct {
	db       *gorm.DB
	settings *settings.Store
}

func NewHandler(db *gorm.DB, store *settings.Store) *Handler {
	return &Handler{db: db, settings: store}
}

// participants of a match thread: the caso owner and the matched lawyer's user.
type thread struct {
	match     models.Match
	cidadaoID uuid.UUID
	lawyerUID uuid.UUID
}

// userID parses the authenticated user's UUID out of the request context.
func userID(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(auth.MustUserID(c))
	if err != nil {
		return uuid.Nil, fiber.ErrUnauthorized
	}
	return id, nil
}

// loadThread resolves the match and checks the requester is one of the two
// participants and the match state allows chatting.
func (h *Handler) loadThread(c *fiber.Ctx) (*thread, error) {
	uid, err := userID(c)
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

	var caso models.Caso
	if err := h.db.Select("id", "cidadao_id").First(&caso, "id = ?", m.CasoID).Error; err != nil {
		return nil, fiber.ErrInternalServerError
	}
	var profile models.LawyerProfile
	if err := h.db.Select("id", "user_id").First(&profile, "id = ?", m.LawyerProfileID).Error; err != nil {
		return nil, fiber.ErrInternalServerError
	}

	if uid != caso.CidadaoID && uid != profile.UserID {
		return nil, fiber.ErrForbidden
	}

	if !h.chatOpen(c, &m) {
		return nil, fiber.NewError(fiber.StatusConflict, "chat is not open for this match")
	}

	return &thread{match: m, cidadaoID: caso.CidadaoID, lawyerUID: profile.UserID}, nil
}

// chatOpen applies the chat_only_after_accept setting: when on, messages flow
// only once the lawyer accepted (or was contracted); when off, any live offer
// can chat. Rejected and expired matches are always closed.
func (h *Handler) chatOpen(c *fiber.Ctx, m *models.Match) bool {
	switch m.Status {
	case models.MatchRecusado, models.MatchExpirado:
		return false
	case models.MatchAceito, models.MatchContratado:
		return true
	}
	return !h.settings.GetBool(c.Context(), settings.KeyChatOnlyAfterAccept, settings.DefaultChatOnlyAfterAccept)
}

/* ================================ Send ================================== */

type sendReq struct {
	Body string `json:"body" validate:"required,min=1,max=4000"`
}

// Send Message godoc
// @Summary      Send a chat message
// @Description  Only the caso owner and the matched advogado may write
// @Tags         chat
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string   true  "match id (uuid)"
// @Param        payload  body  sendReq  true  "message"
// @Success      201  {object}  models.ChatMessage
// @Failure      403  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse  "chat not open"
// @Router       /matches/{id}/messages [post]
func (h *Handler) Send(c *fiber.Ctx) error {
	t, err := h.loadThread(c)
	if err != nil {
		return err
	}

	var in sendReq
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	in.Body = strings.TrimSpace(in.Body)
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	uid, err := userID(c)
	if err != nil {
		return err
	}
	msg := models.ChatMessage{
		MatchID:  t.match.ID,
		SenderID: uid,
		Body:     in.Body,
	}
	if err := h.db.Create(&msg).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

/* ================================ List ================================== */

type messageItem struct {
	ID        uuid.UUID `json:"id"`
	SenderID  uuid.UUID `json:"sender_id"`
	Mine      bool      `json:"mine"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// List Messages godoc
// @Summary      List chat messages for a match
// @Tags         chat
// @Security     BearerAuth
// @Produce      json
// @Param        id  path  string  true  "match id (uuid)"
// @Success      200  {array}   messageItem
// @Failure      403  {object}  models.ErrorResponse
// @Router       /matches/{id}/messages [get]
func (h *Handler) List(c *fiber.Ctx) error {
	t, err := h.loadThread(c)
	if err != nil {
		return err
	}
	uid, err := userID(c)
	if err != nil {
		return err
	}

	var rows []models.ChatMessage
	if err := h.db.Where("match_id = ?", t.match.ID).
		Order("created_at").Limit(500).
		Find(&rows).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	// Before acceptance the lawyer sees citizen messages with contact
	// details stripped, matching the redaction on the caso preview.
	redactForLawyer := uid == t.lawyerUID &&
		(t.match.Status == models.MatchPendente || t.match.Status == models.MatchVisualizado)

	items := make([]messageItem, 0, len(rows))
	for _, m := range rows {
		body := m.Body
		if redactForLawyer && m.SenderID == t.cidadaoID {
			body = sanitize.RedactPII(body)
		}
		items = append(items, messageItem{
			ID:        m.ID,
			SenderID:  m.SenderID,
			Mine:      m.SenderID == uid,
			Body:      body,
			CreatedAt: m.CreatedAt,
		})
	}
	return c.JSON(items)
}
