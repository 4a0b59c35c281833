package notifier

import (
	"context"
	"errors"
	"fmt"

	"labslot/pkg/kafka"
	"labslot/pkg/logger"
	"labslot/pkg/model"
)

var errMissingID = errors.New("event has no id")

type Handler struct {
	store Store
	log   *logger.Logger
}

func NewHandler(store Store, log *logger.Logger) *Handler {
	return &Handler{store: store, log: log}
}

// HandleNotification stores one in-app notification. Undecodable payloads are
// permanent failures; store failures are retried.
func (h *Handler) HandleNotification(ctx context.Context, msg kafka.Message) error {
	var n model.Notification
	if err := msg.DecodeValue(&n); err != nil {
		return err
	}
	if n.ID == "" {
		n.ID = msg.GetEventID()
	}
	if n.ID == "" || n.UserID == "" {
		return kafka.NewPermanentError("invalid notification", fmt.Errorf("%w or recipient", errMissingID))
	}

	if err := h.store.SaveNotification(ctx, n); err != nil {
		return kafka.NewTransientError("failed to store notification", err)
	}
	source, _ := msg.GetHeader(kafka.HeaderSource)
	h.log.Debug("notification stored", "notification_id", n.ID, "user_id", n.UserID, "kind", n.Kind, "source", source)
	return nil
}

// HandleAudit stores one audit record.
func (h *Handler) HandleAudit(ctx context.Context, msg kafka.Message) error {
	var rec model.AuditRecord
	if err := msg.DecodeValue(&rec); err != nil {
		return err
	}
	if rec.ID == "" {
		rec.ID = msg.GetEventID()
	}
	if rec.ID == "" {
		return kafka.NewPermanentError("invalid audit record", errMissingID)
	}

	if err := h.store.SaveAudit(ctx, rec); err != nil {
		return kafka.NewTransientError("failed to store audit record", err)
	}
	h.log.Debug("audit record stored", "audit_id", rec.ID, "action", rec.Action, "entity_ref", rec.EntityRef)
	return nil
}
