package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/maplecart/orders/internal/domain"
	pfirestore "github.com/maplecart/orders/internal/platform/firestore"
)

const (
	loyaltyAccountsCollection = "loyaltyAccounts"
	loyaltyEntriesCollection  = "loyaltyEntries"
)

// LoyaltyRepository keeps per-user point balances consistent with the entry
// log. Apply writes the entry and the updated balance in one transaction.
type LoyaltyRepository struct {
	provider *pfirestore.Provider
	accounts *pfirestore.BaseRepository[loyaltyAccountDocument]
	entries  *pfirestore.BaseRepository[loyaltyEntryDocument]
}

// NewLoyaltyRepository constructs a Firestore-backed loyalty repository.
func NewLoyaltyRepository(provider *pfirestore.Provider) (*LoyaltyRepository, error) {
	if provider == nil {
		return nil, errors.New("loyalty repository requires firestore provider")
	}
	accounts := pfirestore.NewBaseRepository[loyaltyAccountDocument](provider, loyaltyAccountsCollection, nil, nil)
	entries := pfirestore.NewBaseRepository[loyaltyEntryDocument](provider, loyaltyEntriesCollection, nil, nil)
	return &LoyaltyRepository{provider: provider, accounts: accounts, entries: entries}, nil
}

// Apply records one point movement and folds it into the user's balance.
// Awards add the entry's points, reversals subtract them.
func (r *LoyaltyRepository) Apply(ctx context.Context, entry domain.LoyaltyEntry) (domain.LoyaltyAccount, error) {
	if r == nil || r.provider == nil {
		return domain.LoyaltyAccount{}, errors.New("loyalty repository not initialised")
	}
	entryID := strings.TrimSpace(entry.ID)
	if entryID == "" {
		return domain.LoyaltyAccount{}, errors.New("loyalty apply: entry id is required")
	}
	userID := strings.TrimSpace(entry.UserID)
	if userID == "" {
		return domain.LoyaltyAccount{}, errors.New("loyalty apply: user id is required")
	}
	if entry.Points < 0 {
		return domain.LoyaltyAccount{}, fmt.Errorf("loyalty apply: points for %s must be >= 0", entryID)
	}

	delta := entry.Points
	if entry.Kind == domain.LoyaltyEntryReversal {
		delta = -delta
	}

	now := entry.CreatedAt.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var updated domain.LoyaltyAccount
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		entryRef, err := r.entries.DocumentRef(ctx, entryID)
		if err != nil {
			return err
		}
		accountRef, err := r.accounts.DocumentRef(ctx, userID)
		if err != nil {
			return err
		}

		var account loyaltyAccountDocument
		snap, err := tx.Get(accountRef)
		if err != nil {
			if status.Code(err) != codes.NotFound {
				return err
			}
			account = loyaltyAccountDocument{}
		} else if err := snap.DataTo(&account); err != nil {
			return fmt.Errorf("decode loyalty account %s: %w", userID, err)
		}

		entryDoc := loyaltyEntryDocument{
			UserID:    userID,
			OrderID:   strings.TrimSpace(entry.OrderID),
			Kind:      strings.TrimSpace(string(entry.Kind)),
			Points:    entry.Points,
			CreatedAt: now,
		}
		if err := tx.Create(entryRef, entryDoc); err != nil {
			return err
		}

		account.Balance += delta
		account.UpdatedAt = now
		if err := tx.Set(accountRef, account); err != nil {
			return err
		}

		updated = account.toDomain(userID)
		return nil
	})
	if err != nil {
		return domain.LoyaltyAccount{}, pfirestore.WrapError("loyalty.apply", err)
	}
	return updated, nil
}

// Account returns the user's balance. Users without any entries hold a zero
// balance rather than an error.
func (r *LoyaltyRepository) Account(ctx context.Context, userID string) (domain.LoyaltyAccount, error) {
	if r == nil || r.accounts == nil {
		return domain.LoyaltyAccount{}, errors.New("loyalty repository not initialised")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.LoyaltyAccount{}, errors.New("loyalty account: user id is required")
	}

	doc, err := r.accounts.Get(ctx, userID)
	if err != nil {
		if repoErr, ok := err.(*pfirestore.Error); ok && repoErr.IsNotFound() {
			return domain.LoyaltyAccount{UserID: userID}, nil
		}
		return domain.LoyaltyAccount{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

type loyaltyAccountDocument struct {
	Balance   int64     `firestore:"balance"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func (d loyaltyAccountDocument) toDomain(userID string) domain.LoyaltyAccount {
	return domain.LoyaltyAccount{
		UserID:    strings.TrimSpace(userID),
		Balance:   d.Balance,
		UpdatedAt: d.UpdatedAt,
	}
}

type loyaltyEntryDocument struct {
	UserID    string    `firestore:"userId"`
	OrderID   string    `firestore:"orderId"`
	Kind      string    `firestore:"kind"`
	Points    int64     `firestore:"points"`
	CreatedAt time.Time `firestore:"createdAt"`
}
