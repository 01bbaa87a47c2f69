package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/maplecart/orders/internal/domain"
	"github.com/maplecart/orders/internal/repositories"
)

type stubAuditRepo struct {
	entries   []domain.AuditLogEntry
	appendErr error

	listFilter repositories.AuditLogFilter
	listResp   domain.CursorPage[domain.AuditLogEntry]
	listErr    error
}

func (s *stubAuditRepo) Append(_ context.Context, entry domain.AuditLogEntry) error {
	s.entries = append(s.entries, entry)
	return s.appendErr
}

func (s *stubAuditRepo) List(_ context.Context, filter repositories.AuditLogFilter) (domain.CursorPage[domain.AuditLogEntry], error) {
	s.listFilter = filter
	return s.listResp, s.listErr
}

func TestAuditLogServiceRecordSanitizesFields(t *testing.T) {
	repo := &stubAuditRepo{}
	fixed := time.Date(2025, 5, 5, 12, 0, 0, 0, time.UTC)

	svc, err := NewAuditLogService(AuditLogServiceDeps{
		Repository:  repo,
		Clock:       func() time.Time { return fixed },
		IDGenerator: func() string { return "TESTID" },
	})
	if err != nil {
		t.Fatalf("new audit log service: %v", err)
	}

	svc.Record(context.Background(), AuditLogRecord{
		Actor:      "  user:42  ",
		Action:     " order.status_changed ",
		TargetRef:  " /orders/ord_1 ",
		Severity:   "Warn",
		RequestID:  " req-123 ",
		OccurredAt: fixed.Add(-time.Minute),
		Metadata: map[string]any{
			"reason": "customer request\x00\x01",
			"":       "dropped",
		},
	})

	if len(repo.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(repo.entries))
	}
	entry := repo.entries[0]

	if entry.ID != "aud_TESTID" {
		t.Fatalf("unexpected id %q", entry.ID)
	}
	if entry.Actor != "user:42" {
		t.Fatalf("unexpected actor: %q", entry.Actor)
	}
	if entry.ActorType != "user" {
		t.Fatalf("expected inferred actor type user, got %q", entry.ActorType)
	}
	if entry.Action != "order.status_changed" {
		t.Fatalf("unexpected action: %q", entry.Action)
	}
	if entry.TargetRef != "/orders/ord_1" {
		t.Fatalf("unexpected target ref: %q", entry.TargetRef)
	}
	if entry.Severity != "warn" {
		t.Fatalf("unexpected severity: %q", entry.Severity)
	}
	if entry.RequestID != "req-123" {
		t.Fatalf("expected trimmed request id, got %q", entry.RequestID)
	}
	expectedTime := fixed.Add(-time.Minute)
	if !entry.CreatedAt.Equal(expectedTime) {
		t.Fatalf("expected CreatedAt %s, got %s", expectedTime.Format(time.RFC3339Nano), entry.CreatedAt.Format(time.RFC3339Nano))
	}
	if reason, ok := entry.Metadata["reason"].(string); !ok || reason != "customer request" {
		t.Fatalf("expected control characters stripped, got %#v", entry.Metadata["reason"])
	}
	if _, ok := entry.Metadata[""]; ok {
		t.Fatal("expected blank metadata key dropped")
	}
}

func TestAuditLogServiceRecordAppliesDefaults(t *testing.T) {
	repo := &stubAuditRepo{}
	fixed := time.Date(2025, 5, 5, 12, 0, 0, 0, time.UTC)

	svc, err := NewAuditLogService(AuditLogServiceDeps{
		Repository: repo,
		Clock:      func() time.Time { return fixed },
	})
	if err != nil {
		t.Fatalf("new audit log service: %v", err)
	}

	svc.Record(context.Background(), AuditLogRecord{Action: "orders.sweep"})

	if len(repo.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(repo.entries))
	}
	entry := repo.entries[0]
	if entry.Actor != "system" {
		t.Fatalf("expected default actor system, got %q", entry.Actor)
	}
	if entry.ActorType != "system" {
		t.Fatalf("expected inferred actor type system, got %q", entry.ActorType)
	}
	if entry.Severity != "info" {
		t.Fatalf("expected default severity info, got %q", entry.Severity)
	}
	if !entry.CreatedAt.Equal(fixed) {
		t.Fatalf("expected clock timestamp, got %v", entry.CreatedAt)
	}
	if entry.Metadata != nil {
		t.Fatalf("expected nil metadata, got %#v", entry.Metadata)
	}
}

func TestAuditLogServiceRecordLogsOnFailure(t *testing.T) {
	repo := &stubAuditRepo{appendErr: errors.New("boom")}

	var loggedEvent string
	var loggedFields map[string]any
	svc, err := NewAuditLogService(AuditLogServiceDeps{
		Repository: repo,
		Logger: func(_ context.Context, event string, fields map[string]any) {
			loggedEvent = event
			loggedFields = fields
		},
	})
	if err != nil {
		t.Fatalf("new audit log service: %v", err)
	}

	svc.Record(context.Background(), AuditLogRecord{
		Actor:     "system",
		Action:    "test.action",
		TargetRef: "/orders/ord_1",
	})

	if loggedEvent != eventAuditAppendFailed {
		t.Fatalf("expected append failure event, got %q", loggedEvent)
	}
	if loggedFields["targetRef"] != "/orders/ord_1" {
		t.Fatalf("expected target ref in fields, got %#v", loggedFields)
	}
	if len(repo.entries) != 1 {
		t.Fatalf("expected append invoked once, got %d", len(repo.entries))
	}
}

func TestAuditLogServiceListDelegates(t *testing.T) {
	repo := &stubAuditRepo{
		listResp: domain.CursorPage[domain.AuditLogEntry]{
			Items:         []domain.AuditLogEntry{{ID: "aud_1"}},
			NextPageToken: "next-token",
		},
	}

	svc, err := NewAuditLogService(AuditLogServiceDeps{Repository: repo})
	if err != nil {
		t.Fatalf("new audit log service: %v", err)
	}

	page, err := svc.List(context.Background(), AuditLogFilter{
		TargetRef:  " /orders/ord_1 ",
		Actor:      " user:1 ",
		Action:     " order.status_changed ",
		Pagination: Pagination{PageSize: 25, PageToken: "token"},
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	if page.NextPageToken != "next-token" || len(page.Items) != 1 || page.Items[0].ID != "aud_1" {
		t.Fatalf("unexpected page response: %#v", page)
	}
	if repo.listFilter.TargetRef != "/orders/ord_1" {
		t.Fatalf("expected trimmed target ref, got %q", repo.listFilter.TargetRef)
	}
	if repo.listFilter.Actor != "user:1" {
		t.Fatalf("expected trimmed actor, got %q", repo.listFilter.Actor)
	}
	if repo.listFilter.Action != "order.status_changed" {
		t.Fatalf("expected trimmed action, got %q", repo.listFilter.Action)
	}
	if repo.listFilter.Pagination.PageSize != 25 || repo.listFilter.Pagination.PageToken != "token" {
		t.Fatalf("expected pagination forwarded, got %+v", repo.listFilter.Pagination)
	}
}

func TestNormalizeActorType(t *testing.T) {
	cases := []struct {
		name      string
		actorType string
		actor     string
		want      string
	}{
		{name: "explicit service", actorType: " Service ", actor: "worker-1", want: "service"},
		{name: "explicit user", actorType: "USER", actor: "anything", want: "user"},
		{name: "inferred user prefix", actorType: "", actor: "user:42", want: "user"},
		{name: "inferred system", actorType: "", actor: "system", want: "system"},
		{name: "inferred system prefix", actorType: "", actor: "system:sweeper", want: "system"},
		{name: "unknown", actorType: "robot", actor: "anonymous", want: "unknown"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := normalizeActorType(tc.actorType, tc.actor); got != tc.want {
				t.Fatalf("normalizeActorType(%q, %q) = %q, want %q", tc.actorType, tc.actor, got, tc.want)
			}
		})
	}
}
