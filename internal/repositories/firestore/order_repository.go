package firestore

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/maplecart/orders/internal/domain"
	pfirestore "github.com/maplecart/orders/internal/platform/firestore"
	"github.com/maplecart/orders/internal/platform/pagination"
	"github.com/maplecart/orders/internal/repositories"
)

const ordersCollection = "orders"

// OrderRepository persists order documents with their embedded lines.
type OrderRepository struct {
	base *pfirestore.BaseRepository[orderDocument]
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository: firestore provider is required")
	}
	base := pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil, nil)
	return &OrderRepository{base: base}, nil
}

// Insert stores a new order document. The ID must be unique.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(order.ID)
	if orderID == "" {
		return errors.New("order repository: order id is required")
	}
	doc := encodeOrderDocument(order)
	if _, err := r.base.Create(ctx, orderID, doc); err != nil {
		return err
	}
	return nil
}

// Update replaces the persisted order state with the provided snapshot.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(order.ID)
	if orderID == "" {
		return errors.New("order repository: order id is required")
	}
	doc := encodeOrderDocument(order)
	if _, err := r.base.Set(ctx, orderID, doc); err != nil {
		return err
	}
	return nil
}

// FindByID fetches a single order.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}
	doc, err := r.base.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return decodeOrderDocument(orderID, doc.Data, doc.CreateTime, doc.UpdateTime), nil
}

// List returns orders matching the filter ordered by most recent creation.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
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
		tokenTime, tokenID, err := decodeOrderListToken(token)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, fmt.Errorf("order repository: invalid page token: %w", err)
		}
		startAfter = []any{tokenTime, tokenID}
	}

	userID := strings.TrimSpace(filter.UserID)
	statusFilters := normaliseStatuses(filter.Status)

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
		if userID != "" {
			q = q.Where("userId", "==", userID)
		}

		if len(statusFilters) == 1 {
			q = q.Where("status", "==", statusFilters[0])
		} else if len(statusFilters) > 1 {
			// Firestore in clause supports up to 10 values.
			if len(statusFilters) > 10 {
				statusFilters = statusFilters[:10]
			}
			q = q.Where("status", "in", statusFilters)
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
		return domain.CursorPage[domain.Order]{}, err
	}

	valueDocs := docs
	nextToken := ""
	if limit > 0 && len(valueDocs) == fetchLimit {
		last := valueDocs[len(valueDocs)-1]
		tokenTime := last.Data.CreatedAt
		if tokenTime.IsZero() {
			tokenTime = last.CreateTime
		}
		nextToken = encodeOrderListToken(tokenTime, last.ID)
		valueDocs = valueDocs[:len(valueDocs)-1]
	}

	items := make([]domain.Order, 0, len(valueDocs))
	for _, doc := range valueDocs {
		items = append(items, decodeOrderDocument(doc.ID, doc.Data, doc.CreateTime, doc.UpdateTime))
	}

	return domain.CursorPage[domain.Order]{
		Items:         items,
		NextPageToken: nextToken,
	}, nil
}

type orderDocument struct {
	OrderNumber  string              `firestore:"orderNumber"`
	UserID       string              `firestore:"userId"`
	Status       string              `firestore:"status"`
	Currency     string              `firestore:"currency"`
	Total        int64               `firestore:"total"`
	Lines        []orderLineDocument `firestore:"lines"`
	CancelReason string              `firestore:"cancelReason,omitempty"`
	CreatedBy    string              `firestore:"createdBy,omitempty"`
	UpdatedBy    string              `firestore:"updatedBy,omitempty"`
	Metadata     map[string]any      `firestore:"metadata,omitempty"`
	CreatedAt    time.Time           `firestore:"createdAt"`
	UpdatedAt    time.Time           `firestore:"updatedAt"`
	PaidAt       *time.Time          `firestore:"paidAt,omitempty"`
	CancelledAt  *time.Time          `firestore:"cancelledAt,omitempty"`
}

type orderLineDocument struct {
	ProductID string `firestore:"productId"`
	Name      string `firestore:"name"`
	Quantity  int    `firestore:"qty"`
	UnitPrice int64  `firestore:"unitPrice"`
	Total     int64  `firestore:"total"`
}

func encodeOrderDocument(order domain.Order) orderDocument {
	lines := make([]orderLineDocument, len(order.Lines))
	for i, line := range order.Lines {
		lines[i] = orderLineDocument{
			ProductID: strings.TrimSpace(line.ProductID),
			Name:      strings.TrimSpace(line.Name),
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			Total:     line.Total,
		}
	}
	doc := orderDocument{
		OrderNumber: strings.TrimSpace(order.OrderNumber),
		UserID:      strings.TrimSpace(order.UserID),
		Status:      strings.TrimSpace(string(order.Status)),
		Currency:    strings.TrimSpace(order.Currency),
		Total:       order.Total,
		Lines:       lines,
		Metadata:    cloneMap(order.Metadata),
		CreatedAt:   order.CreatedAt.UTC(),
		UpdatedAt:   order.UpdatedAt.UTC(),
		PaidAt:      normalizeTimePointer(order.PaidAt),
		CancelledAt: normalizeTimePointer(order.CancelledAt),
	}
	if order.CancelReason != nil {
		doc.CancelReason = strings.TrimSpace(*order.CancelReason)
	}
	if order.Audit.CreatedBy != nil {
		doc.CreatedBy = strings.TrimSpace(*order.Audit.CreatedBy)
	}
	if order.Audit.UpdatedBy != nil {
		doc.UpdatedBy = strings.TrimSpace(*order.Audit.UpdatedBy)
	}
	return doc
}

func decodeOrderDocument(id string, doc orderDocument, createdAt, updatedAt time.Time) domain.Order {
	lines := make([]domain.OrderLine, len(doc.Lines))
	for i, line := range doc.Lines {
		lines[i] = domain.OrderLine{
			ProductID: strings.TrimSpace(line.ProductID),
			Name:      strings.TrimSpace(line.Name),
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			Total:     line.Total,
		}
	}
	order := domain.Order{
		ID:          strings.TrimSpace(id),
		OrderNumber: strings.TrimSpace(doc.OrderNumber),
		UserID:      strings.TrimSpace(doc.UserID),
		Status:      domain.OrderStatus(strings.TrimSpace(doc.Status)),
		Currency:    strings.TrimSpace(doc.Currency),
		Total:       doc.Total,
		Lines:       lines,
		Metadata:    cloneMap(doc.Metadata),
		CreatedAt:   chooseTime(doc.CreatedAt, createdAt),
		UpdatedAt:   chooseTime(doc.UpdatedAt, updatedAt),
		PaidAt:      normalizeTimePointer(doc.PaidAt),
		CancelledAt: normalizeTimePointer(doc.CancelledAt),
	}
	if reason := strings.TrimSpace(doc.CancelReason); reason != "" {
		order.CancelReason = &reason
	}
	if createdBy := strings.TrimSpace(doc.CreatedBy); createdBy != "" {
		order.Audit.CreatedBy = &createdBy
	}
	if updatedBy := strings.TrimSpace(doc.UpdatedBy); updatedBy != "" {
		order.Audit.UpdatedBy = &updatedBy
	}
	return order
}

func cloneMap(src map[string]any) map[string]any {
	if len(src) == 0 {
		return nil
	}
	return maps.Clone(src)
}

func chooseTime(primary time.Time, fallback time.Time) time.Time {
	if !primary.IsZero() {
		return primary.UTC()
	}
	if !fallback.IsZero() {
		return fallback.UTC()
	}
	return time.Time{}
}

func normalizeTimePointer(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	if value.IsZero() {
		return nil
	}
	ts := value.UTC()
	return &ts
}

func encodeOrderListToken(createdAt time.Time, docID string) string {
	token, err := pagination.EncodeToken(pagination.Cursor{
		StartAfter: []any{createdAt.UTC().Format(time.RFC3339Nano), docID},
	})
	if err != nil {
		return ""
	}
	return token
}

func decodeOrderListToken(token string) (time.Time, string, error) {
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

func normaliseStatuses(statuses []string) []string {
	if len(statuses) == 0 {
		return nil
	}
	normalized := make([]string, 0, len(statuses))
	seen := make(map[string]struct{})
	for _, status := range statuses {
		trimmed := strings.ToLower(strings.TrimSpace(status))
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		normalized = append(normalized, trimmed)
	}
	return normalized
}
