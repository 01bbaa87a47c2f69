package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/maplecart/orders/internal/domain"
	pfirestore "github.com/maplecart/orders/internal/platform/firestore"
)

const paymentRecordsCollection = "paymentRecords"

// PaymentRecordRepository stores gateway charge and refund records.
type PaymentRecordRepository struct {
	base *pfirestore.BaseRepository[paymentRecordDocument]
}

// NewPaymentRecordRepository constructs a Firestore-backed payment record repository.
func NewPaymentRecordRepository(provider *pfirestore.Provider) (*PaymentRecordRepository, error) {
	if provider == nil {
		return nil, errors.New("payment record repository: firestore provider is required")
	}
	base := pfirestore.NewBaseRepository[paymentRecordDocument](provider, paymentRecordsCollection, nil, nil)
	return &PaymentRecordRepository{base: base}, nil
}

// Insert stores a new payment record. The ID must be unique.
func (r *PaymentRecordRepository) Insert(ctx context.Context, record domain.PaymentRecord) error {
	if r == nil || r.base == nil {
		return errors.New("payment record repository not initialised")
	}
	recordID := strings.TrimSpace(record.ID)
	if recordID == "" {
		return errors.New("payment record repository: record id is required")
	}
	if strings.TrimSpace(record.OrderID) == "" {
		return errors.New("payment record repository: order id is required")
	}
	doc := paymentRecordDocument{
		OrderID:     strings.TrimSpace(record.OrderID),
		Kind:        strings.TrimSpace(string(record.Kind)),
		Provider:    strings.TrimSpace(record.Provider),
		ProviderRef: strings.TrimSpace(record.ProviderRef),
		Amount:      record.Amount,
		Currency:    strings.TrimSpace(record.Currency),
		CreatedAt:   record.CreatedAt.UTC(),
	}
	if _, err := r.base.Create(ctx, recordID, doc); err != nil {
		return err
	}
	return nil
}

// List returns all payment records for an order in capture order.
func (r *PaymentRecordRepository) List(ctx context.Context, orderID string) ([]domain.PaymentRecord, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("payment record repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, errors.New("payment record repository: order id is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("orderId", "==", orderID).OrderBy("createdAt", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}

	records := make([]domain.PaymentRecord, 0, len(docs))
	for _, doc := range docs {
		records = append(records, doc.Data.toDomain(doc.ID, doc.CreateTime))
	}
	return records, nil
}

type paymentRecordDocument struct {
	OrderID     string    `firestore:"orderId"`
	Kind        string    `firestore:"kind"`
	Provider    string    `firestore:"provider"`
	ProviderRef string    `firestore:"providerRef"`
	Amount      int64     `firestore:"amount"`
	Currency    string    `firestore:"currency"`
	CreatedAt   time.Time `firestore:"createdAt"`
}

func (d paymentRecordDocument) toDomain(id string, createdAt time.Time) domain.PaymentRecord {
	return domain.PaymentRecord{
		ID:          strings.TrimSpace(id),
		OrderID:     strings.TrimSpace(d.OrderID),
		Kind:        domain.PaymentKind(strings.TrimSpace(d.Kind)),
		Provider:    strings.TrimSpace(d.Provider),
		ProviderRef: strings.TrimSpace(d.ProviderRef),
		Amount:      d.Amount,
		Currency:    strings.TrimSpace(d.Currency),
		CreatedAt:   chooseTime(d.CreatedAt, createdAt),
	}
}
