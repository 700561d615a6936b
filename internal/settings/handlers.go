package settings

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/jusmatch/jusmatch-backend/pkg/models"
	"github.com/jusmatch/jusmatch-backend/pkg/validation"
)

// Handler exposes admin CRUD over system settings.
type Handler struct {
	db    *gorm.DB
	store *Store
}

func NewHandler(db *gorm.DB, store *Store) *Handler {
	return &Handler{db: db, store: store}
}

// @Summary      List settings
// @Tags         admin
// @Security     BearerAuth
// @Produce      json
// @Success      200  {array}  models.SystemSetting
// @Router       /admin/settings [get]
func (h *Handler) List(c *fiber.Ctx) error {
	var rows []models.SystemSetting
	q := h.db.Order("category, key")
	if cat := strings.TrimSpace(c.Query("category")); cat != "" {
		q = q.Where("category = ?", cat)
	}
	if err := q.Find(&rows).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	return c.JSON(rows)
}

type upsertSettingReq struct {
	Value       string `json:"value" validate:"required,max=500"`
	Type        string `json:"type" validate:"required,oneof=STRING NUMBER BOOLEAN"`
	Category    string `json:"category" validate:"omitempty,max=40"`
	Description string `json:"description" validate:"omitempty,max=500"`
}

// @Summary      Upsert setting
// @Tags         admin
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        key      path  string            true  "setting key"
// @Param        payload  body  upsertSettingReq  true  "Setting"
// @Success      200  {object}  models.SystemSetting
// @Failure      400  {object}  models.ValidationErrorResponse
// @Router       /admin/settings/{key} [put]
func (h *Handler) Upsert(c *fiber.Ctx) error {
	key := strings.TrimSpace(c.Params("key"))
	if key == "" || len(key) > 80 {
		return validation.Respond(c, map[string][]string{"key": {"Must be 1-80 characters"}})
	}

	var in upsertSettingReq
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	in.Value = strings.TrimSpace(in.Value)

	// Typed values must parse before they are stored.
	switch models.SettingType(in.Type) {
	case models.SettingNumber:
		if _, err := strconv.Atoi(in.Value); err != nil {
			return validation.Respond(c, map[string][]string{"value": {"Must be a number"}})
		}
	case models.SettingBoolean:
		if _, err := strconv.ParseBool(in.Value); err != nil {
			return validation.Respond(c, map[string][]string{"value": {"Must be a boolean"}})
		}
	}

	var row models.SystemSetting
	err := h.db.Where("key = ?", key).First(&row).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		row = models.SystemSetting{
			Key:         key,
			Value:       in.Value,
			Type:        models.SettingType(in.Type),
			Category:    in.Category,
			Description: in.Description,
		}
		if err := h.db.Create(&row).Error; err != nil {
			return fiber.ErrInternalServerError
		}
	case err == nil:
		if err := h.db.Model(&row).Updates(map[string]any{
			"value":       in.Value,
			"type":        in.Type,
			"category":    in.Category,
			"description": in.Description,
		}).Error; err != nil {
			return fiber.ErrInternalServerError
		}
	default:
		return fiber.ErrInternalServerError
	}

	h.store.Invalidate(key)
	return c.JSON(row)
}

// @Summary      Delete setting
// @Tags         admin
// @Security     BearerAuth
// @Param        key  path  string  true  "setting key"
// @Success      204
// @Router       /admin/settings/{key} [delete]
func (h *Handler) Delete(c *fiber.Ctx) error {
	key := c.Params("key")
	if err := h.db.Where("key = ?", key).Delete(&models.SystemSetting{}).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	h.store.Invalidate(key)
	return c.SendStatus(fiber.StatusNoContent)
}
