package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/contacts-service/internal/config"
	"github.com/spec-kit/contacts-service/internal/events"
)

// Mailer is the narrow outbound-mail contract. Actual transport lives
// outside this service; the default implementation only logs.
type Mailer interface {
	Send(ctx context.Context, to, username, link, template string) error
}

// LogMailer writes would-be emails to the log instead of sending them.
type LogMailer struct {
	logger *zap.Logger
	from   string
}

// NewLogMailer builds the logging mailer.
func NewLogMailer(logger *zap.Logger, from string) *LogMailer {
	return &LogMailer{logger: logger, from: from}
}

// Send logs the mail instead of delivering it.
func (m *LogMailer) Send(_ context.Context, to, username, link, template string) error {
	m.logger.Info("outbound mail",
		zap.String("from", m.from),
		zap.String("to", to),
		zap.String("username", username),
		zap.String("template", template),
		zap.String("link", link))
	return nil
}

// NotificationService turns auth events into outbound notifications.
type NotificationService struct {
	dispatcher events.Dispatcher
	mailer     Mailer
	logger     *zap.Logger
	cfg        config.NotificationConfig
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, mailer Mailer, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		mailer:     mailer,
		logger:     logger,
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventEmailConfirmRequested, n.handleMailRequest)
	n.dispatcher.Subscribe(events.EventPasswordResetRequested, n.handleMailRequest)
}

func (n *NotificationService) handleMailRequest(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.MailRequestPayload)
	if !ok {
		n.logger.Warn("mail event without mail payload", zap.String("event_type", string(event.Type)))
		return nil
	}
	if strings.TrimSpace(n.cfg.EmailFrom) == "" {
		return nil
	}
	if err := n.mailer.Send(ctx, payload.Email, payload.Username, payload.Link, payload.Template); err != nil {
		n.logger.Error("mail delivery failed",
			zap.String("event_type", string(event.Type)),
			zap.String("user_id", event.UserID),
			zap.Error(err))
	}
	return nil
}
