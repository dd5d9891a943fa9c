package notifications

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/domain/feedback"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/domain/subscription"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/domain/user"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/platform/email"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/pkg/logger"
)

type fakeSender struct {
	sent []email.Message
	err  error
}

func (f *fakeSender) Send(_ context.Context, msg email.Message) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, msg)
	return "msg-1", nil
}

func TestDisabledIsNoop(t *testing.T) {
	svc := New(nil, logger.Discard())
	if svc.Enabled() {
		t.Fatalf("expected disabled service")
	}
	if err := svc.Welcome(context.Background(), user.User{ID: "u", Email: "a@b.c"}); err != nil {
		t.Fatalf("welcome: %v", err)
	}
}

func TestWelcome(t *testing.T) {
	sender := &fakeSender{}
	svc := New(sender, logger.Discard())

	if err := svc.Welcome(context.Background(), user.User{ID: "u", Email: "ada@example.com"}); err != nil {
		t.Fatalf("welcome: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected one email, got %d", len(sender.sent))
	}
	msg := sender.sent[0]
	if msg.To != "ada@example.com" || !strings.HasPrefix(msg.Text, "Hi ada,") {
		t.Fatalf("unexpected message %+v", msg)
	}
}

func TestFeedbackReadyListsImprovements(t *testing.T) {
	sender := &fakeSender{}
	svc := New(sender, logger.Discard())

	f := feedback.Feedback{TargetType: feedback.TargetDrill, Score: 64, Summary: "Decent structure.", Improvements: []string{"Quantify the market", "Summarize earlier"}}
	if err := svc.FeedbackReady(context.Background(), user.User{ID: "u", Email: "a@b.c", DisplayName: "Grace"}, f); err != nil {
		t.Fatalf("feedback ready: %v", err)
	}
	text := sender.sent[0].Text
	for _, want := range []string{"Hi Grace", "Score: 64/100", "- Quantify the market", "- Summarize earlier"} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected %q in %q", want, text)
		}
	}
}

func TestSubscriptionChangedMentionsEndDate(t *testing.T) {
	sender := &fakeSender{}
	svc := New(sender, logger.Discard())
	end := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	sub := subscription.Subscription{Plan: user.PlanPro, Status: subscription.StatusActive, CancelAtPeriodEnd: true, CurrentPeriodEnd: &end}
	if err := svc.SubscriptionChanged(context.Background(), user.User{ID: "u", Email: "a@b.c"}, sub); err != nil {
		t.Fatalf("subscription changed: %v", err)
	}
	if !strings.Contains(sender.sent[0].Text, "March 1, 2025") {
		t.Fatalf("expected end date in %q", sender.sent[0].Text)
	}
}

func TestSkipsUsersWithoutEmailAndReportsErrors(t *testing.T) {
	sender := &fakeSender{}
	svc := New(sender, logger.Discard())
	if err := svc.Welcome(context.Background(), user.User{ID: "u"}); err != nil {
		t.Fatalf("welcome without email: %v", err)
	}
	if len(sender.sent) != 0 {
		t.Fatalf("expected no email")
	}

	sender.err = errors.New("down")
	if err := svc.Welcome(context.Background(), user.User{ID: "u", Email: "a@b.c"}); err == nil {
		t.Fatalf("expected send error")
	}
}
