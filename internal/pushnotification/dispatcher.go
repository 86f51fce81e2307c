package pushnotification

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kazz187/appbuilder/internal/eventbus"
)

type Dispatcher struct {
	eventBus *eventbus.Bus
	notifier Notifier
}

func NewDispatcher(eventBus *eventbus.Bus, notifier Notifier) *Dispatcher {
	return &Dispatcher{
		eventBus: eventBus,
		notifier: notifier,
	}
}

// Start forwards escalation and budget events until ctx is done.
func (d *Dispatcher) Start(ctx context.Context) {
	subID, ch := d.eventBus.Subscribe(256)
	defer d.eventBus.Unsubscribe(subID)

	slog.InfoContext(ctx, "push notification dispatcher started")
	for {
		select {
		case <-ctx.Done():
			slog.Info("push notification dispatcher stopped")
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			if payload := payloadFor(event); payload != nil {
				d.notifier.SendToAll(ctx, payload)
			}
		}
	}
}

func payloadFor(event *eventbus.Event) *NotificationPayload {
	var title string
	switch event.Type {
	case eventbus.EscalationRequired:
		title = "Human intervention required"
	case eventbus.BudgetExhausted:
		title = "LLM budget exhausted"
	default:
		return nil
	}
	body := event.Payload
	if body == "" {
		body = title
	}
	return &NotificationPayload{
		Title: fmt.Sprintf("%s: %s", event.ProjectID, title),
		Body:  body,
		URL:   fmt.Sprintf("/api/projects/%s/status", event.ProjectID),
		Tag:   fmt.Sprintf("%s-%s", event.Type, event.ProjectID),
	}
}
