package worker

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/contacts-service/internal/events"
	"github.com/spec-kit/contacts-service/internal/observability"
	"github.com/spec-kit/contacts-service/internal/service"
)

// auditedEvents are the security-relevant types the audit sink records.
var auditedEvents = []events.EventType{
	events.EventTokenReuseDetected,
	events.EventTokenRevokedAll,
	events.EventUserRoleChanged,
	events.EventPasswordReset,
	events.EventPasswordResetRequested,
}

// StartAuditWorker subscribes the structured audit sink to security
// events. Emission is fire-and-forget; handlers never fail the publisher.
func StartAuditWorker(dispatcher events.Dispatcher, metrics *observability.Metrics, logger *zap.Logger) {
	if dispatcher == nil {
		return
	}
	audit := logger.Named("audit")
	handler := func(_ context.Context, event events.Event) error {
		audit.Info(string(event.Type),
			zap.String("event_id", event.ID),
			zap.String("user_id", event.UserID),
			zap.Time("timestamp", event.Timestamp),
			zap.Any("payload", event.Payload))
		if metrics != nil {
			metrics.RecordAuthEvent(string(event.Type))
		}
		return nil
	}
	for _, eventType := range auditedEvents {
		dispatcher.Subscribe(eventType, handler)
	}
}

// StartNotificationWorker registers notification handlers.
func StartNotificationWorker(notificationService *service.NotificationService) {
	if notificationService == nil {
		return
	}
	notificationService.RegisterHandlers()
}
