package utils

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jusmatch/jusmatch-backend/pkg/models"
)

// LogCasoEvent inserts an audit record into caso_events.
// Used to track important status changes and actions on a caso.
// Errors are ignored on purpose (best-effort logging).
func LogCasoEvent(
	ctx context.Context,
	db *gorm.DB,
	casoID, actorID uuid.UUID,
	action string,
	oldStatus, newStatus string,
	reason string,
) {
	_ = db.WithContext(ctx).Create(&models.CasoEvent{
		CasoID:    casoID,
		ActorID:   actorID,
		Action:    action,
		OldStatus: oldStatus,
		NewStatus: newStatus,
		Reason:    reason,
		CreatedAt: time.Now(),
	}).Error
}
