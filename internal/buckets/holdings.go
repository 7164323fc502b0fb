package buckets

import (
	"context"

	"github.com/bucketshare/bucketshare-backend/internal/ledger"
	"github.com/bucketshare/bucketshare-backend/pkg/enums"
	pkgerrors "github.com/bucketshare/bucketshare-backend/pkg/errors"
	"gorm.io/gorm"
)

// Holdings answers account-level questions about the buckets a user owns or
// contributes to.
type Holdings struct {
	repo Repository
}

func NewHoldings(repo Repository) *Holdings {
	return &Holdings{repo: repo}
}

// PendingDebitsFrom counts contributions by uid that are still settling.
func (h *Holdings) PendingDebitsFrom(ctx context.Context, uid string) (int, error) {
	list, err := h.repo.ListForUser(ctx, uid)
	if err != nil {
		return 0, asDependency(err, "list buckets")
	}
	count := 0
	for _, b := range list {
		for _, c := range b.Contributions {
			if status, ok := c.PaymentStatus(); ok && status == enums.PaymentStatusPending && c.ContributorUID == uid {
				count++
			}
		}
	}
	return count, nil
}

// DeleteOwned removes every bucket owned by uid inside tx. It refuses when any
// of them still holds processor money.
func (h *Holdings) DeleteOwned(ctx context.Context, tx *gorm.DB, uid string) (int, error) {
	repo := h.repo.WithTx(tx)
	list, err := repo.ListForUser(ctx, uid)
	if err != nil {
		return 0, asDependency(err, "list buckets")
	}
	owned := make([]ledger.Bucket, 0, len(list))
	for i := range list {
		if list[i].OwnerUID != uid {
			continue
		}
		if err := checkDeletable(&list[i]); err != nil {
			return 0, err
		}
		owned = append(owned, list[i])
	}
	for _, b := range owned {
		if err := repo.Delete(ctx, b.ID); err != nil {
			return 0, asDependency(err, "delete bucket")
		}
	}
	return len(owned), nil
}

// checkDeletable refuses to drop a bucket whose processor funds are still
// settling or were never paid out.
func checkDeletable(b *ledger.Bucket) error {
	if count, sum := b.PendingSummary(); count > 0 {
		return pkgerrors.New(pkgerrors.CodeSettlementPending, "contributions are still settling").
			WithDetails(map[string]any{"bucket_id": b.ID.String(), "pending_count": count, "pending_amount": sum.StringFixed(2)})
	}
	if b.Status != enums.BucketStatusCollected && b.SettledPaymentBacked() {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "collect settled funds before deleting the bucket").
			WithDetails(map[string]any{"bucket_id": b.ID.String(), "status": b.Status})
	}
	return nil
}
