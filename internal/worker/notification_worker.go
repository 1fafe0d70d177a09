package worker

import (
	"context"

	"github.com/spec-kit/booking-service/internal/events"
	"github.com/spec-kit/booking-service/internal/service"
)

// StartNotificationWorker registers notification handlers and delivers queued events in
// the background until ctx is cancelled. Wait on dispatcher.Done() to drain on shutdown.
func StartNotificationWorker(ctx context.Context, dispatcher *events.AsyncDispatcher, notificationService *service.NotificationService) {
	if notificationService == nil || dispatcher == nil {
		return
	}
	notificationService.RegisterHandlers()
	go dispatcher.Run(ctx)
}
