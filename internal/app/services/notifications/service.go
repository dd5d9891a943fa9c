package notifications

import (
	"context"
	"fmt"
	"strings"

	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/domain/feedback"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/domain/subscription"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/domain/user"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/platform/email"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/pkg/logger"
)

// Service sends transactional emails. Without a sender every call is a no-op.
type Service struct {
	sender email.Sender
	log    *logger.Logger
}

// New constructs a notification service. sender may be nil.
func New(sender email.Sender, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("notifications")
	}
	return &Service{sender: sender, log: log}
}

// Enabled reports whether emails are actually delivered.
func (s *Service) Enabled() bool { return s.sender != nil }

// Welcome greets a newly registered user.
func (s *Service) Welcome(ctx context.Context, u user.User) error {
	body := fmt.Sprintf("Hi %s,\n\n"+
		"Welcome to Case Mentor. Start with a drill to warm up, then try the ecosystem simulation "+
		"to practise structured problem solving under time pressure.\n\n"+
		"Good luck with your interviews!\n", greetingName(u))
	return s.send(ctx, "welcome", u, "Welcome to Case Mentor", body)
}

// FeedbackReady tells the user a critique is available.
func (s *Service) FeedbackReady(ctx context.Context, u user.User, f feedback.Feedback) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\nYour %s feedback is ready. Score: %d/100.\n\n%s\n", greetingName(u), f.TargetType, f.Score, f.Summary)
	if len(f.Improvements) > 0 {
		b.WriteString("\nFocus next on:\n")
		for _, item := range f.Improvements {
			fmt.Fprintf(&b, "- %s\n", item)
		}
	}
	return s.send(ctx, "feedback_ready", u, "Your feedback is ready", b.String())
}

// SubscriptionChanged confirms a plan or status change.
func (s *Service) SubscriptionChanged(ctx context.Context, u user.User, sub subscription.Subscription) error {
	body := fmt.Sprintf("Hi %s,\n\nYour subscription is now %s on the %s plan.\n", greetingName(u), sub.Status, sub.Plan)
	if sub.CancelAtPeriodEnd && sub.CurrentPeriodEnd != nil {
		body += fmt.Sprintf("It will end on %s.\n", sub.CurrentPeriodEnd.Format("January 2, 2006"))
	}
	return s.send(ctx, "subscription_changed", u, "Your subscription was updated", body)
}

func (s *Service) send(ctx context.Context, kind string, u user.User, subject, body string) error {
	entry := s.log.WithField("notification", kind).WithField("user_id", u.ID)
	if s.sender == nil {
		entry.Debug("email disabled; notification skipped")
		return nil
	}
	if strings.TrimSpace(u.Email) == "" {
		entry.Warn("user has no email address; notification skipped")
		return nil
	}
	id, err := s.sender.Send(ctx, email.Message{To: u.Email, Subject: subject, Text: body})
	if err != nil {
		entry.WithError(err).Warn("send notification failed")
		return err
	}
	entry.WithField("message_id", id).Info("notification sent")
	return nil
}

func greetingName(u user.User) string {
	if name := strings.TrimSpace(u.DisplayName); name != "" {
		return name
	}
	if at := strings.Index(u.Email, "@"); at > 0 {
		return u.Email[:at]
	}
	return "there"
}
