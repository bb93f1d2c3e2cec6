package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-core/internal/events"
	"github.com/spec-kit/helpdesk-core/internal/notify"
	"github.com/spec-kit/helpdesk-core/internal/repository"
)

// allEventTypes is the subscription list for the webhook sink.
var allEventTypes = []events.EventType{
	events.EventTicketCreated,
	events.EventStatusChanged,
	events.EventPriorityChanged,
	events.EventTicketAssigned,
	events.EventReplyAdded,
	events.EventSlaBreached,
	events.EventSlaWarning,
	events.EventTicketEscalated,
	events.EventDepartmentChanged,
}

// NotificationService consumes committed domain events and fans them out to
// the configured sinks. Both sinks are best effort and independently
// failable: a sink error is logged and never reaches the service that
// produced the event.
type NotificationService struct {
	followers repository.FollowerRepository
	webhook   *notify.WebhookSender
	channel   notify.ChannelNotifier
	logger    *zap.Logger
}

// NotificationDeps bundles dependencies for the notification service.
type NotificationDeps struct {
	Followers repository.FollowerRepository
	Webhook   *notify.WebhookSender
	Channel   notify.ChannelNotifier
	Logger    *zap.Logger
}

// NewNotificationService constructs the service.
func NewNotificationService(deps NotificationDeps) *NotificationService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	channel := deps.Channel
	if channel == nil {
		channel = notify.NewLogChannel(logger)
	}
	return &NotificationService{
		followers: deps.Followers,
		webhook:   deps.Webhook,
		channel:   channel,
		logger:    logger,
	}
}

// Register wires the service into the dispatcher for every event type.
func (s *NotificationService) Register(dispatcher events.Dispatcher) {
	for _, t := range allEventTypes {
		dispatcher.Subscribe(t, s.Handle)
	}
}

// Handle is the dispatcher entry point.
func (s *NotificationService) Handle(ctx context.Context, event events.Event) error {
	if s.webhook != nil && s.webhook.Enabled() {
		s.webhook.Send(string(event.Type), event.Timestamp, event)
	}
	if event.Type.TicketScoped() {
		s.notifyFollowers(ctx, event)
	}
	return nil
}

// notifyFollowers sends a channel notification to each follower of the
// ticket, skipping participants who already receive a primary notification:
// the actor, the reply author, the current assignee and the requester. A
// failure for one follower does not stop delivery to the rest.
func (s *NotificationService) notifyFollowers(ctx context.Context, event events.Event) {
	if s.followers == nil {
		return
	}
	followerIDs, err := s.followers.ListFollowerIDs(ctx, event.Ticket.ID)
	if err != nil {
		s.logger.Warn("follower lookup failed",
			zap.String("ticket_id", event.Ticket.ID),
			zap.Error(err))
		return
	}
	if len(followerIDs) == 0 {
		return
	}

	excluded := s.excludedRecipients(event)
	subject := fmt.Sprintf("[%s] %s", event.Ticket.Reference, event.Ticket.Subject)

	for _, followerID := range followerIDs {
		if excluded[followerID] {
			continue
		}
		msg := notify.Message{
			RecipientID: followerID,
			Event:       string(event.Type),
			Subject:     subject,
			Body:        followerBody(event),
		}
		if err := s.channel.Notify(ctx, msg); err != nil {
			s.logger.Warn("follower notification failed",
				zap.String("ticket_id", event.Ticket.ID),
				zap.String("recipient_id", followerID),
				zap.Error(err))
		}
	}
}

func (s *NotificationService) excludedRecipients(event events.Event) map[string]bool {
	excluded := make(map[string]bool, 4)
	if event.ActorID != nil {
		excluded[*event.ActorID] = true
	}
	if event.Ticket.AssignedTo != nil {
		excluded[*event.Ticket.AssignedTo] = true
	}
	if event.Ticket.RequesterID != nil {
		excluded[*event.Ticket.RequesterID] = true
	}
	if p, ok := event.Payload.(events.ReplyAddedPayload); ok && p.AuthorID != nil {
		excluded[*p.AuthorID] = true
	}
	return excluded
}

func followerBody(event events.Event) string {
	switch p := event.Payload.(type) {
	case events.StatusChangedPayload:
		return fmt.Sprintf("Status changed from %s to %s", p.From, p.To)
	case events.PriorityChangedPayload:
		return fmt.Sprintf("Priority changed from %s to %s", p.From, p.To)
	case events.TicketAssignedPayload:
		if p.ToAgentID == nil {
			return "Ticket unassigned"
		}
		return "Ticket assigned"
	case events.ReplyAddedPayload:
		return "A new reply was posted"
	}
	return fmt.Sprintf("Ticket updated (%s)", event.Type)
}
