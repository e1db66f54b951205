package service

import (
	"context"
	"errors"
	"testing"

	"github.com/vanguard-ai/vanguard/internal/port/notifier"
)

func TestNotifyFansOutToAllProviders(t *testing.T) {
	a := &mockNotifier{name: "slack"}
	b := &mockNotifier{name: "webhook"}
	svc := NewNotificationService([]notifier.Notifier{a, b}, nil)

	svc.Notify(context.Background(), notifier.Notification{
		Title:  "test",
		Source: "budget.alert",
	})
	if a.sentCount() != 1 || b.sentCount() != 1 {
		t.Errorf("sends = %d/%d, want 1/1", a.sentCount(), b.sentCount())
	}
}

func TestNotifyFiltersDisabledSources(t *testing.T) {
	n := &mockNotifier{}
	svc := NewNotificationService([]notifier.Notifier{n}, []string{"budget.alert"})

	svc.Notify(context.Background(), notifier.Notification{Source: "trigger.fired"})
	if n.sentCount() != 0 {
		t.Error("disabled source should be dropped")
	}

	svc.Notify(context.Background(), notifier.Notification{Source: "budget.alert"})
	if n.sentCount() != 1 {
		t.Error("enabled source should be delivered")
	}
}

func TestNotifyContinuesPastFailures(t *testing.T) {
	broken := &mockNotifier{name: "broken", sendErr: errors.New("webhook 500")}
	healthy := &mockNotifier{name: "healthy"}
	svc := NewNotificationService([]notifier.Notifier{broken, healthy}, nil)

	svc.Notify(context.Background(), notifier.Notification{Title: "x", Source: "budget.alert"})
	if healthy.sentCount() != 1 {
		t.Error("one failing provider must not block the others")
	}
}
