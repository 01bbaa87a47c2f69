package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/maplecart/orders/internal/domain"
	pfirestore "github.com/maplecart/orders/internal/platform/firestore"
	"github.com/maplecart/orders/internal/platform/pagination"
	"github.com/maplecart/orders/internal/repositories"
)

const inventoryCollection = "inventory"

type InventoryRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[inventoryDocument]
}

func NewInventoryRepository(provider *pfirestore.Provider) (*InventoryRepository, error) {
	if provider == nil {
		return nil, errors.New("inventory repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[inventoryDocument](provider, inventoryCollection, nil, nil)
	return &InventoryRepository{provider: provider, base: base}, nil
}

// Reserve deducts units from a single product record. The read, floor check and
// write happen inside one transaction so concurrent reservations for the same
// product are serialized by Firestore.
func (r *InventoryRepository) Reserve(ctx context.Context, adj repositories.InventoryAdjustment) (domain.InventoryRecord, error) {
	if r == nil || r.provider == nil {
		return domain.InventoryRecord{}, errors.New("inventory repository not initialised")
	}
	productID := strings.TrimSpace(adj.ProductID)
	if productID == "" {
		return domain.InventoryRecord{}, repositories.NewInventoryError(repositories.InventoryErrorRecordNotFound, "inventory reserve: product id is required", nil)
	}
	if adj.Quantity <= 0 {
		return domain.InventoryRecord{}, repositories.NewInventoryError(repositories.InventoryErrorInvalidQuantity, fmt.Sprintf("inventory reserve: quantity for %s must be > 0", productID), nil)
	}

	now := adj.Now.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var updated domain.InventoryRecord
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		docRef, err := r.base.DocumentRef(ctx, productID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(docRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return repositories.NewInventoryError(repositories.InventoryErrorRecordNotFound, fmt.Sprintf("inventory record %s not found", productID), err)
			}
			return err
		}
		var doc inventoryDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode inventory record %s: %w", productID, err)
		}
		if doc.Available < adj.Quantity {
			invErr := repositories.NewInventoryError(repositories.InventoryErrorInsufficientStock, fmt.Sprintf("insufficient stock for %s", productID), nil)
			invErr.Requested = adj.Quantity
			invErr.Available = doc.Available
			return invErr
		}
		doc.ProductID = productID
		doc.Available -= adj.Quantity
		doc.UpdatedAt = now
		doc.recalculate()
		if err := tx.Set(docRef, doc); err != nil {
			return err
		}
		updated = doc.toDomain(productID)
		return nil
	})
	if err != nil {
		return domain.InventoryRecord{}, wrapInventoryError("inventory.reserve", err)
	}
	return updated, nil
}

// Release returns units to a single product record. Compensation only returns
// what a reservation previously deducted, so a missing record is an error
// rather than an implicit create.
func (r *InventoryRepository) Release(ctx context.Context, adj repositories.InventoryAdjustment) (domain.InventoryRecord, error) {
	if r == nil || r.provider == nil {
		return domain.InventoryRecord{}, errors.New("inventory repository not initialised")
	}
	productID := strings.TrimSpace(adj.ProductID)
	if productID == "" {
		return domain.InventoryRecord{}, repositories.NewInventoryError(repositories.InventoryErrorRecordNotFound, "inventory release: product id is required", nil)
	}
	if adj.Quantity <= 0 {
		return domain.InventoryRecord{}, repositories.NewInventoryError(repositories.InventoryErrorInvalidQuantity, fmt.Sprintf("inventory release: quantity for %s must be > 0", productID), nil)
	}

	now := adj.Now.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var updated domain.InventoryRecord
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		docRef, err := r.base.DocumentRef(ctx, productID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(docRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return repositories.NewInventoryError(repositories.InventoryErrorRecordNotFound, fmt.Sprintf("inventory record %s not found", productID), err)
			}
			return err
		}
		var doc inventoryDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode inventory record %s: %w", productID, err)
		}
		doc.ProductID = productID
		doc.Available += adj.Quantity
		doc.UpdatedAt = now
		doc.recalculate()
		if err := tx.Set(docRef, doc); err != nil {
			return err
		}
		updated = doc.toDomain(productID)
		return nil
	})
	if err != nil {
		return domain.InventoryRecord{}, wrapInventoryError("inventory.release", err)
	}
	return updated, nil
}

func (r *InventoryRepository) Find(ctx context.Context, productID string) (domain.InventoryRecord, error) {
	if r == nil || r.base == nil {
		return domain.InventoryRecord{}, errors.New("inventory repository not initialised")
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.InventoryRecord{}, errors.New("inventory find: product id is required")
	}

	doc, err := r.base.Get(ctx, productID)
	if err != nil {
		if repoErr, ok := err.(*pfirestore.Error); ok && repoErr.IsNotFound() {
			return domain.InventoryRecord{}, repositories.NewInventoryError(repositories.InventoryErrorRecordNotFound, fmt.Sprintf("inventory record %s not found", productID), err)
		}
		return domain.InventoryRecord{}, wrapInventoryError("inventory.find", err)
	}

	return doc.Data.toDomain(doc.ID), nil
}

// Save upserts the full record, recomputing the stored stock delta used by the
// low stock query.
func (r *InventoryRepository) Save(ctx context.Context, record domain.InventoryRecord) (domain.InventoryRecord, error) {
	if r == nil || r.base == nil {
		return domain.InventoryRecord{}, errors.New("inventory repository not initialised")
	}
	productID := strings.TrimSpace(record.ProductID)
	if productID == "" {
		return domain.InventoryRecord{}, errors.New("inventory save: product id is required")
	}
	if record.Available < 0 {
		return domain.InventoryRecord{}, repositories.NewInventoryError(repositories.InventoryErrorInvalidQuantity, fmt.Sprintf("inventory save: available for %s must be >= 0", productID), nil)
	}
	if record.LowStockThreshold < 0 {
		return domain.InventoryRecord{}, repositories.NewInventoryError(repositories.InventoryErrorInvalidQuantity, fmt.Sprintf("inventory save: low stock threshold for %s must be >= 0", productID), nil)
	}

	now := record.UpdatedAt.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}

	doc := inventoryDocument{
		ProductID:         productID,
		Available:         record.Available,
		LowStockThreshold: record.LowStockThreshold,
		UpdatedAt:         now,
	}
	doc.recalculate()

	if _, err := r.base.Set(ctx, productID, doc); err != nil {
		return domain.InventoryRecord{}, wrapInventoryError("inventory.save", err)
	}
	return doc.toDomain(productID), nil
}

// ListLowStock pages through records whose availability sits at or below their
// threshold. The comparison is precomputed into the stockDelta field on every
// write because Firestore cannot compare two fields of the same document.
func (r *InventoryRepository) ListLowStock(ctx context.Context, query repositories.InventoryLowStockQuery) (domain.CursorPage[domain.InventoryRecord], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.InventoryRecord]{}, errors.New("inventory repository not initialised")
	}

	pageSize := query.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 200 {
		pageSize = 200
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.InventoryRecord]{}, wrapInventoryError("inventory.lowStock", err)
	}

	firestoreQuery := client.Collection(inventoryCollection).Query.
		Where("stockDelta", "<=", 0).
		OrderBy("stockDelta", firestore.Asc).
		OrderBy("productId", firestore.Asc).
		Limit(pageSize + 1)

	if token := strings.TrimSpace(query.PageToken); token != "" {
		decoded, err := decodeInventoryPageToken(token)
		if err != nil {
			return domain.CursorPage[domain.InventoryRecord]{}, wrapInventoryError("inventory.lowStock", err)
		}
		firestoreQuery = firestoreQuery.StartAfter(decoded.StockDelta, decoded.ProductID)
	}

	iter := firestoreQuery.Documents(ctx)
	defer iter.Stop()

	var records []domain.InventoryRecord
	var deltas []int64
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.InventoryRecord]{}, wrapInventoryError("inventory.lowStock", err)
		}
		var doc inventoryDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.InventoryRecord]{}, fmt.Errorf("decode inventory record %s: %w", snap.Ref.ID, err)
		}
		records = append(records, doc.toDomain(snap.Ref.ID))
		deltas = append(deltas, doc.StockDelta)
	}

	hasMore := len(records) > pageSize
	if hasMore {
		records = records[:pageSize]
		deltas = deltas[:pageSize]
	}
	var nextToken string
	if hasMore && len(records) > 0 {
		last := records[len(records)-1]
		encoded, err := encodeInventoryPageToken(inventoryPageToken{ProductID: last.ProductID, StockDelta: deltas[len(deltas)-1]})
		if err != nil {
			return domain.CursorPage[domain.InventoryRecord]{}, wrapInventoryError("inventory.lowStock", err)
		}
		nextToken = encoded
	}

	return domain.CursorPage[domain.InventoryRecord]{
		Items:         records,
		NextPageToken: nextToken,
	}, nil
}

// Helper structures ---------------------------------------------------------

type inventoryDocument struct {
	ProductID         string    `firestore:"productId"`
	Available         int64     `firestore:"available"`
	LowStockThreshold int64     `firestore:"lowStockThreshold"`
	StockDelta        int64     `firestore:"stockDelta"`
	UpdatedAt         time.Time `firestore:"updatedAt"`
}

func (d *inventoryDocument) recalculate() {
	d.StockDelta = d.Available - d.LowStockThreshold
}

func (d inventoryDocument) toDomain(id string) domain.InventoryRecord {
	return domain.InventoryRecord{
		ProductID:         id,
		Available:         d.Available,
		LowStockThreshold: d.LowStockThreshold,
		UpdatedAt:         d.UpdatedAt,
	}
}

type inventoryPageToken struct {
	ProductID  string
	StockDelta int64
}

func encodeInventoryPageToken(token inventoryPageToken) (string, error) {
	encoded, err := pagination.EncodeToken(pagination.Cursor{
		StartAfter: []any{token.StockDelta, token.ProductID},
	})
	if err != nil {
		return "", fmt.Errorf("encode inventory page token: %w", err)
	}
	return encoded, nil
}

func decodeInventoryPageToken(encoded string) (*inventoryPageToken, error) {
	cursor, err := pagination.DecodeToken(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode inventory page token: %w", err)
	}
	if len(cursor.StartAfter) != 2 {
		return nil, errors.New("decode inventory page token: invalid cursor")
	}
	delta, ok := cursor.StartAfter[0].(float64)
	if !ok {
		return nil, errors.New("decode inventory page token: invalid stock delta")
	}
	productID, ok := cursor.StartAfter[1].(string)
	if !ok {
		return nil, errors.New("decode inventory page token: invalid product id")
	}
	return &inventoryPageToken{ProductID: productID, StockDelta: int64(delta)}, nil
}

func wrapInventoryError(op string, err error) error {
	if err == nil {
		return nil
	}
	var invErr *repositories.InventoryError
	if errors.As(err, &invErr) {
		if invErr.Op == "" {
			invErr.Op = op
		}
		return invErr
	}
	return pfirestore.WrapError(op, err)
}
