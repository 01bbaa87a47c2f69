package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/text/language"
)

const eventNotificationEnqueued = "notifications.enqueued"

// NotificationServiceDeps enumerates collaborators required to construct the
// notification service. SupportedLocales are BCP 47 tags; DefaultLocale always
// participates in matching and wins when nothing else does.
type NotificationServiceDeps struct {
	Publisher        NotificationPublisher
	DefaultLocale    string
	SupportedLocales []string
	Clock            func() time.Time
	IDGenerator      func() string
	Logger           Logger
}

type notificationService struct {
	publisher NotificationPublisher
	matcher   language.Matcher
	locales   []string
	fallback  string
	clock     func() time.Time
	newID     func() string
	logger    Logger
}

// NewNotificationService wires the queue publisher and locale negotiation.
func NewNotificationService(deps NotificationServiceDeps) (NotificationService, error) {
	if deps.Publisher == nil {
		return nil, errors.New("notification service: publisher is required")
	}

	fallback := strings.TrimSpace(deps.DefaultLocale)
	if fallback == "" {
		fallback = "en"
	}

	locales := make([]string, 0, len(deps.SupportedLocales)+1)
	tags := make([]language.Tag, 0, len(deps.SupportedLocales)+1)
	seen := make(map[string]bool, len(deps.SupportedLocales)+1)
	for _, locale := range append([]string{fallback}, deps.SupportedLocales...) {
		locale = strings.TrimSpace(locale)
		if locale == "" || seen[strings.ToLower(locale)] {
			continue
		}
		tag, err := language.Parse(locale)
		if err != nil {
			return nil, fmt.Errorf("notification service: unsupported locale %q: %w", locale, err)
		}
		seen[strings.ToLower(locale)] = true
		locales = append(locales, locale)
		tags = append(tags, tag)
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &notificationService{
		publisher: deps.Publisher,
		matcher:   language.NewMatcher(tags),
		locales:   locales,
		fallback:  fallback,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// EnqueueOrderNotification mints a notification for the order's owner and
// hands it to the delivery queue.
func (s *notificationService) EnqueueOrderNotification(ctx context.Context, cmd OrderNotificationCommand) (NotificationMessage, error) {
	template := strings.TrimSpace(cmd.Template)
	if template == "" {
		return NotificationMessage{}, fmt.Errorf("%w: template is required", ErrOrderInvalidInput)
	}
	userID := strings.TrimSpace(cmd.Order.UserID)
	if userID == "" {
		return NotificationMessage{}, fmt.Errorf("%w: order user id is required", ErrOrderInvalidInput)
	}

	requested := strings.TrimSpace(cmd.Locale)
	if requested == "" {
		requested = localeFromMetadata(cmd.Order.Metadata)
	}

	message := NotificationMessage{
		NotificationID: "ntf_" + s.newID(),
		UserID:         userID,
		OrderID:        cmd.Order.ID,
		Template:       template,
		Locale:         s.negotiateLocale(requested),
		QueuedAt:       s.clock(),
	}

	if _, err := s.publisher.PublishNotification(ctx, message); err != nil {
		return NotificationMessage{}, fmt.Errorf("enqueue notification: %w", err)
	}

	s.logger(ctx, eventNotificationEnqueued, map[string]any{
		"notificationId": message.NotificationID,
		"orderId":        message.OrderID,
		"template":       message.Template,
		"locale":         message.Locale,
	})

	return message, nil
}

// negotiateLocale picks the closest supported locale for the requested one and
// falls back to the default when nothing matches.
func (s *notificationService) negotiateLocale(requested string) string {
	requested = strings.TrimSpace(requested)
	if requested == "" {
		return s.fallback
	}
	desired, err := language.Parse(requested)
	if err != nil {
		return s.fallback
	}
	_, index, confidence := s.matcher.Match(desired)
	if confidence == language.No || index < 0 || index >= len(s.locales) {
		return s.fallback
	}
	return s.locales[index]
}

func localeFromMetadata(metadata map[string]any) string {
	if metadata == nil {
		return ""
	}
	if locale, ok := metadata["locale"].(string); ok {
		return strings.TrimSpace(locale)
	}
	return ""
}
