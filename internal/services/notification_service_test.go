package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type captureNotificationPublisher struct {
	messages []NotificationMessage
	err      error
}

func (c *captureNotificationPublisher) PublishNotification(_ context.Context, msg NotificationMessage) (string, error) {
	if c.err != nil {
		return "", c.err
	}
	c.messages = append(c.messages, msg)
	return "m1", nil
}

func TestNotificationServiceEnqueuesOrderNotification(t *testing.T) {
	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	publisher := &captureNotificationPublisher{}

	svc, err := NewNotificationService(NotificationServiceDeps{
		Publisher:        publisher,
		DefaultLocale:    "en",
		SupportedLocales: []string{"ja", "de"},
		Clock:            func() time.Time { return now },
		IDGenerator:      func() string { return "TESTID" },
	})
	if err != nil {
		t.Fatalf("new notification service: %v", err)
	}

	message, err := svc.EnqueueOrderNotification(context.Background(), OrderNotificationCommand{
		Order:    Order{ID: "ord_1", UserID: "user_1"},
		Template: "order.paid",
		Locale:   "ja",
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if message.NotificationID != "ntf_TESTID" {
		t.Fatalf("unexpected notification id %q", message.NotificationID)
	}
	if message.Locale != "ja" {
		t.Fatalf("expected locale ja, got %q", message.Locale)
	}
	if !message.QueuedAt.Equal(now) {
		t.Fatalf("expected clock timestamp, got %v", message.QueuedAt)
	}
	if len(publisher.messages) != 1 || publisher.messages[0].Template != "order.paid" {
		t.Fatalf("unexpected published messages %+v", publisher.messages)
	}
}

func TestNotificationServiceNegotiatesLocale(t *testing.T) {
	publisher := &captureNotificationPublisher{}
	svc, err := NewNotificationService(NotificationServiceDeps{
		Publisher:        publisher,
		DefaultLocale:    "en",
		SupportedLocales: []string{"ja", "de"},
	})
	if err != nil {
		t.Fatalf("new notification service: %v", err)
	}

	cases := []struct {
		name      string
		requested string
		want      string
	}{
		{name: "exact", requested: "de", want: "de"},
		{name: "regional variant", requested: "de-AT", want: "de"},
		{name: "unsupported", requested: "fr", want: "en"},
		{name: "garbage", requested: "not a locale!!", want: "en"},
		{name: "empty", requested: "", want: "en"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			message, err := svc.EnqueueOrderNotification(context.Background(), OrderNotificationCommand{
				Order:    Order{ID: "ord_1", UserID: "user_1"},
				Template: "order.created",
				Locale:   tc.requested,
			})
			if err != nil {
				t.Fatalf("enqueue: %v", err)
			}
			if message.Locale != tc.want {
				t.Fatalf("requested %q: expected %q, got %q", tc.requested, tc.want, message.Locale)
			}
		})
	}
}

func TestNotificationServiceReadsLocaleFromOrderMetadata(t *testing.T) {
	publisher := &captureNotificationPublisher{}
	svc, err := NewNotificationService(NotificationServiceDeps{
		Publisher:        publisher,
		DefaultLocale:    "en",
		SupportedLocales: []string{"ja"},
	})
	if err != nil {
		t.Fatalf("new notification service: %v", err)
	}

	message, err := svc.EnqueueOrderNotification(context.Background(), OrderNotificationCommand{
		Order: Order{
			ID:       "ord_1",
			UserID:   "user_1",
			Metadata: map[string]any{"locale": "ja"},
		},
		Template: "order.cancelled",
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if message.Locale != "ja" {
		t.Fatalf("expected metadata locale ja, got %q", message.Locale)
	}
}

func TestNotificationServiceValidatesCommand(t *testing.T) {
	svc, err := NewNotificationService(NotificationServiceDeps{Publisher: &captureNotificationPublisher{}})
	if err != nil {
		t.Fatalf("new notification service: %v", err)
	}

	if _, err := svc.EnqueueOrderNotification(context.Background(), OrderNotificationCommand{
		Order: Order{ID: "ord_1", UserID: "user_1"},
	}); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected invalid input for missing template, got %v", err)
	}
	if _, err := svc.EnqueueOrderNotification(context.Background(), OrderNotificationCommand{
		Order:    Order{ID: "ord_1"},
		Template: "order.created",
	}); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected invalid input for missing user, got %v", err)
	}
}

func TestNotificationServicePropagatesPublishError(t *testing.T) {
	publisher := &captureNotificationPublisher{err: errors.New("queue full")}
	svc, err := NewNotificationService(NotificationServiceDeps{Publisher: publisher})
	if err != nil {
		t.Fatalf("new notification service: %v", err)
	}

	_, err = svc.EnqueueOrderNotification(context.Background(), OrderNotificationCommand{
		Order:    Order{ID: "ord_1", UserID: "user_1"},
		Template: "order.created",
	})
	if err == nil || !strings.Contains(err.Error(), "queue full") {
		t.Fatalf("expected publish error, got %v", err)
	}
}

func TestNotificationServiceRejectsUnparseableConfiguredLocale(t *testing.T) {
	_, err := NewNotificationService(NotificationServiceDeps{
		Publisher:        &captureNotificationPublisher{},
		SupportedLocales: []string{"zz zz zz"},
	})
	if err == nil || !strings.Contains(err.Error(), "unsupported locale") {
		t.Fatalf("expected constructor error, got %v", err)
	}
}
