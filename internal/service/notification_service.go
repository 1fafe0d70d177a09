package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/booking-service/internal/config"
	"github.com/spec-kit/booking-service/internal/domain"
	"github.com/spec-kit/booking-service/internal/events"
)

// NotificationPublisher pushes committed notifications to live subscribers.
type NotificationPublisher interface {
	PublishNotification(ctx context.Context, n domain.Notification) error
}

// NotificationService fans committed notifications out to delivery channels.
type NotificationService struct {
	dispatcher events.Dispatcher
	publisher  NotificationPublisher
	logger     *zap.Logger
	cfg        config.NotificationConfig
}

// NewNotificationService creates the service. publisher may be nil.
func NewNotificationService(dispatcher events.Dispatcher, publisher NotificationPublisher, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		publisher:  publisher,
		logger:     logger,
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventAppointmentBooked, n.handleAppointmentEvent)
	n.dispatcher.Subscribe(events.EventAppointmentStatusChanged, n.handleAppointmentEvent)
	n.dispatcher.Subscribe(events.EventAppointmentCancelled, n.handleAppointmentEvent)
	n.dispatcher.Subscribe(events.EventPractitionerApplied, n.handleOnboardingEvent)
	n.dispatcher.Subscribe(events.EventPractitionerApproved, n.handleOnboardingEvent)
	n.dispatcher.Subscribe(events.EventPractitionerRejected, n.handleOnboardingEvent)
}

func (n *NotificationService) handleAppointmentEvent(ctx context.Context, event events.Event) error {
	n.logger.Info(string(event.Type), zap.String("appointment_id", event.SubjectID), zap.Any("payload", event.Payload))
	n.sendEmailNotificationStub(ctx, event)
	n.sendWebhookNotificationStub(ctx, event)
	return n.push(ctx, event)
}

func (n *NotificationService) handleOnboardingEvent(ctx context.Context, event events.Event) error {
	n.logger.Info(string(event.Type), zap.String("profile_id", event.SubjectID), zap.Any("payload", event.Payload))
	n.sendEmailNotificationStub(ctx, event)
	return n.push(ctx, event)
}

func (n *NotificationService) push(ctx context.Context, event events.Event) error {
	if n.publisher == nil || event.Notification == nil {
		return nil
	}
	return n.publisher.PublishNotification(ctx, *event.Notification)
}

func (n *NotificationService) sendEmailNotificationStub(ctx context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.EmailFrom) == "" || event.Notification == nil {
		return
	}
	n.logger.Debug("sendEmailNotificationStub",
		zap.String("from", n.cfg.EmailFrom),
		zap.String("identity_id", event.Notification.IdentityID),
		zap.String("kind", string(event.Notification.Kind)))
}

func (n *NotificationService) sendWebhookNotificationStub(ctx context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		return
	}
	n.logger.Debug("sendWebhookNotificationStub",
		zap.String("url", n.cfg.WebhookURL),
		zap.String("subject_id", event.SubjectID),
		zap.String("event_type", string(event.Type)))
}
