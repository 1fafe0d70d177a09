package service

import (
	"context"
	"errors"

	"github.com/spec-kit/booking-service/internal/domain"
	"github.com/spec-kit/booking-service/internal/repository"
	apperrors "github.com/spec-kit/booking-service/pkg/util/errorutil"
)

// NotificationSink owns each identity's bounded notification log.
type NotificationSink struct {
	repo   repository.NotificationRepository
	retain int
}

// NewNotificationSink constructs the sink. retain caps entries kept per identity.
func NewNotificationSink(repo repository.NotificationRepository, retain int) *NotificationSink {
	return &NotificationSink{repo: repo, retain: retain}
}

// Append adds an entry to identityID's log. It joins the transaction carried by ctx.
func (s *NotificationSink) Append(ctx context.Context, identityID string, kind domain.NotificationKind, message string, payload map[string]any) (*domain.Notification, error) {
	n := &domain.Notification{
		IdentityID: identityID,
		Kind:       kind,
		Message:    message,
		Payload:    payload,
	}
	if err := s.repo.Append(ctx, n, s.retain); err != nil {
		return nil, err
	}
	return n, nil
}

// ListFor returns identityID's notifications, newest first.
func (s *NotificationSink) ListFor(ctx context.Context, identityID string, page repository.Page) ([]domain.Notification, error) {
	items, err := s.repo.ListByIdentity(ctx, identityID, page)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if items == nil {
		items = []domain.Notification{}
	}
	return items, nil
}

// MarkRead flags one of identityID's notifications as read.
func (s *NotificationSink) MarkRead(ctx context.Context, identityID, notificationID string) error {
	if err := s.repo.MarkRead(ctx, identityID, notificationID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewNotFound("notification", map[string]any{"notification_id": notificationID})
		}
		return apperrors.MapError(err)
	}
	return nil
}

// MarkAllRead flags every unread notification of identityID.
func (s *NotificationSink) MarkAllRead(ctx context.Context, identityID string) (int64, error) {
	n, err := s.repo.MarkAllRead(ctx, identityID)
	if err != nil {
		return 0, apperrors.MapError(err)
	}
	return n, nil
}

// UnreadCount returns how many notifications identityID has not read.
func (s *NotificationSink) UnreadCount(ctx context.Context, identityID string) (int, error) {
	n, err := s.repo.CountUnread(ctx, identityID)
	if err != nil {
		return 0, apperrors.MapError(err)
	}
	return n, nil
}

// Sweep trims every log to the retention cap.
func (s *NotificationSink) Sweep(ctx context.Context) (int64, error) {
	return s.repo.Trim(ctx, s.retain)
}
