package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/maplecart/orders/internal/domain"
	pfirestore "github.com/maplecart/orders/internal/platform/firestore"
	"github.com/maplecart/orders/internal/platform/pagination"
	"github.com/maplecart/orders/internal/repositories"
)

const auditLogsCollection = "auditLogs"

// AuditLogRepository persists immutable audit trail entries.
type AuditLogRepository struct {
	base *pfirestore.BaseRepository[auditLogDocument]
}

// NewAuditLogRepository constructs a Firestore-backed audit log repository.
func NewAuditLogRepository(provider *pfirestore.Provider) (*AuditLogRepository, error) {
	if provider == nil {
		return nil, errors.New("audit log repository: firestore provider is required")
	}
	base := pfirestore.NewBaseRepository[auditLogDocument](provider, auditLogsCollection, nil, nil)
	return &AuditLogRepository{base: base}, nil
}

// Append stores a new audit entry. Entries are never updated or deleted.
func (r *AuditLogRepository) Append(ctx context.Context, entry domain.AuditLogEntry) error {
	if r == nil || r.base == nil {
		return errors.New("audit log repository not initialised")
	}
	entryID := strings.TrimSpace(entry.ID)
	if entryID == "" {
		return errors.New("audit log repository: entry id is required")
	}
	doc := auditLogDocument{
		Actor:     strings.TrimSpace(entry.Actor),
		ActorType: strings.TrimSpace(entry.ActorType),
		Action:    strings.TrimSpace(entry.Action),
		TargetRef: strings.TrimSpace(entry.TargetRef),
		Metadata:  cloneMap(entry.Metadata),
		Severity:  strings.TrimSpace(entry.Severity),
		RequestID: strings.TrimSpace(entry.RequestID),
		CreatedAt: entry.CreatedAt.UTC(),
	}
	if _, err := r.base.Create(ctx, entryID, doc); err != nil {
		return err
	}
	return nil
}

// List returns audit entries matching the filter ordered by most recent first.
func (r *AuditLogRepository) List(ctx context.Context, filter repositories.AuditLogFilter) (domain.CursorPage[domain.AuditLogEntry], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.AuditLogEntry]{}, errors.New("audit log repository not initialised")
	}

	limit := filter.Pagination.PageSize
	if limit < 0 {
		limit = 0
	}
	fetchLimit := limit
	if limit > 0 {
		fetchLimit = limit + 1
	}

	var startAfter []any
	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		tokenTime, tokenID, err := decodeAuditListToken(token)
		if err != nil {
			return domain.CursorPage[domain.AuditLogEntry]{}, fmt.Errorf("audit log repository: invalid page token: %w", err)
		}
		startAfter = []any{tokenTime, tokenID}
	}

	targetRef := strings.TrimSpace(filter.TargetRef)
	actor := strings.TrimSpace(filter.Actor)
	action := strings.TrimSpace(filter.Action)

	var createdAfter, createdBefore *time.Time
	if filter.DateRange.From != nil {
		value := filter.DateRange.From.UTC()
		if !value.IsZero() {
			createdAfter = &value
		}
	}
	if filter.DateRange.To != nil {
		value := filter.DateRange.To.UTC()
		if !value.IsZero() {
			createdBefore = &value
		}
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if targetRef != "" {
			q = q.Where("targetRef", "==", targetRef)
		}
		if actor != "" {
			q = q.Where("actor", "==", actor)
		}
		if action != "" {
			q = q.Where("action", "==", action)
		}
		if createdAfter != nil {
			q = q.Where("createdAt", ">=", *createdAfter)
		}
		if createdBefore != nil {
			q = q.Where("createdAt", "<=", *createdBefore)
		}

		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if len(startAfter) == 2 {
			q = q.StartAfter(startAfter...)
		}
		if fetchLimit > 0 {
			q = q.Limit(fetchLimit)
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.AuditLogEntry]{}, err
	}

	valueDocs := docs
	nextToken := ""
	if limit > 0 && len(valueDocs) == fetchLimit {
		last := valueDocs[len(valueDocs)-1]
		tokenTime := last.Data.CreatedAt
		if tokenTime.IsZero() {
			tokenTime = last.CreateTime
		}
		nextToken = encodeAuditListToken(tokenTime, last.ID)
		valueDocs = valueDocs[:len(valueDocs)-1]
	}

	items := make([]domain.AuditLogEntry, 0, len(valueDocs))
	for _, doc := range valueDocs {
		items = append(items, doc.Data.toDomain(doc.ID, doc.CreateTime))
	}

	return domain.CursorPage[domain.AuditLogEntry]{
		Items:         items,
		NextPageToken: nextToken,
	}, nil
}

type auditLogDocument struct {
	Actor     string         `firestore:"actor"`
	ActorType string         `firestore:"actorType"`
	Action    string         `firestore:"action"`
	TargetRef string         `firestore:"targetRef"`
	Metadata  map[string]any `firestore:"metadata,omitempty"`
	Severity  string         `firestore:"severity"`
	RequestID string         `firestore:"requestId,omitempty"`
	CreatedAt time.Time      `firestore:"createdAt"`
}

func (d auditLogDocument) toDomain(id string, createdAt time.Time) domain.AuditLogEntry {
	return domain.AuditLogEntry{
		ID:        strings.TrimSpace(id),
		Actor:     strings.TrimSpace(d.Actor),
		ActorType: strings.TrimSpace(d.ActorType),
		Action:    strings.TrimSpace(d.Action),
		TargetRef: strings.TrimSpace(d.TargetRef),
		Metadata:  cloneMap(d.Metadata),
		Severity:  strings.TrimSpace(d.Severity),
		RequestID: strings.TrimSpace(d.RequestID),
		CreatedAt: chooseTime(d.CreatedAt, createdAt),
	}
}

func encodeAuditListToken(createdAt time.Time, docID string) string {
	token, err := pagination.EncodeToken(pagination.Cursor{
		StartAfter: []any{createdAt.UTC().Format(time.RFC3339Nano), docID},
	})
	if err != nil {
		return ""
	}
	return token
}

func decodeAuditListToken(token string) (time.Time, string, error) {
	cursor, err := pagination.DecodeToken(token)
	if err != nil {
		return time.Time{}, "", err
	}
	if len(cursor.StartAfter) != 2 {
		return time.Time{}, "", errors.New("invalid token structure")
	}
	rawTime, ok := cursor.StartAfter[0].(string)
	if !ok {
		return time.Time{}, "", errors.New("invalid token timestamp")
	}
	ts, err := time.Parse(time.RFC3339Nano, rawTime)
	if err != nil {
		return time.Time{}, "", err
	}
	docID, ok := cursor.StartAfter[1].(string)
	if !ok {
		return time.Time{}, "", errors.New("invalid token document id")
	}
	return ts, docID, nil
}
