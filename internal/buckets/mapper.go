package buckets

import (
	"fmt"

	"github.com/bucketshare/bucketshare-backend/internal/ledger"
	"github.com/bucketshare/bucketshare-backend/pkg/db/models"
	"github.com/bucketshare/bucketshare-backend/pkg/enums"
)

// ToModel flattens the aggregate into its persisted row.
func ToModel(b *ledger.Bucket) *models.Bucket {
	if b == nil {
		return nil
	}
	members := make([]models.MemberSnapshot, 0, len(b.Members))
	for _, m := range b.Members {
		members = append(members, models.MemberSnapshot{
			UID:         m.UID,
			Email:       m.Email,
			DisplayName: m.DisplayName,
			Role:        m.Role,
			JoinedAt:    m.JoinedAt,
		})
	}
	contributions := make([]models.ContributionRecord, 0, len(b.Contributions))
	for _, c := range b.Contributions {
		record := models.ContributionRecord{
			ID:             c.ID,
			Amount:         c.Amount,
			ContributorUID: c.ContributorUID,
			Method:         c.Funding.Method(),
			FailureReason:  c.FailureReason,
			SettledAt:      c.SettledAt,
			CreatedAt:      c.CreatedAt,
		}
		if pb, ok := c.Funding.(ledger.PaymentBacked); ok {
			record.PaymentRef = pb.Ref
			record.PaymentStatus = pb.Status
		}
		contributions = append(contributions, record)
	}

	return &models.Bucket{
		ID:               b.ID,
		OwnerUID:         b.OwnerUID,
		CollectorUID:     b.CollectorUID,
		Name:             b.Name,
		Description:      b.Description,
		GoalAmount:       b.GoalAmount,
		TargetDate:       b.TargetDate,
		CurrentAmount:    b.CurrentAmount,
		PendingAmount:    b.PendingAmount,
		Status:           b.Status,
		Members:          members,
		Contributions:    contributions,
		HasReversal:      b.HasReversal,
		HasPaymentBacked: b.HasPaymentBacked(),
		AutoCollected:    b.AutoCollected,
		CollectedAt:      b.CollectedAt,
		PayoutRef:        b.PayoutRef,
		Version:          b.Version,
		CreatedAt:        b.CreatedAt,
		UpdatedAt:        b.UpdatedAt,
	}
}

// FromModel rebuilds the aggregate from a persisted row.
func FromModel(m *models.Bucket) (*ledger.Bucket, error) {
	if m == nil {
		return nil, nil
	}
	members := make([]ledger.Member, 0, len(m.Members))
	for _, s := range m.Members {
		members = append(members, ledger.Member{
			UID:         s.UID,
			Email:       s.Email,
			DisplayName: s.DisplayName,
			Role:        s.Role,
			JoinedAt:    s.JoinedAt,
		})
	}
	contributions := make([]ledger.Contribution, 0, len(m.Contributions))
	for _, r := range m.Contributions {
		funding, err := fundingFromRecord(r)
		if err != nil {
			return nil, fmt.Errorf("bucket %s contribution %s: %w", m.ID, r.ID, err)
		}
		contributions = append(contributions, ledger.Contribution{
			ID:             r.ID,
			Amount:         r.Amount,
			ContributorUID: r.ContributorUID,
			Funding:        funding,
			SettledAt:      r.SettledAt,
			FailureReason:  r.FailureReason,
			CreatedAt:      r.CreatedAt,
		})
	}

	return &ledger.Bucket{
		ID:            m.ID,
		OwnerUID:      m.OwnerUID,
		CollectorUID:  m.CollectorUID,
		Name:          m.Name,
		Description:   m.Description,
		GoalAmount:    m.GoalAmount,
		TargetDate:    m.TargetDate,
		CurrentAmount: m.CurrentAmount,
		PendingAmount: m.PendingAmount,
		Status:        m.Status,
		Members:       members,
		Contributions: contributions,
		HasReversal:   m.HasReversal,
		AutoCollected: m.AutoCollected,
		CollectedAt:   m.CollectedAt,
		PayoutRef:     m.PayoutRef,
		Version:       m.Version,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}, nil
}

func fundingFromRecord(r models.ContributionRecord) (ledger.Funding, error) {
	switch r.Method {
	case enums.ContributionMethodVirtual, "":
		if r.PaymentRef != "" {
			return ledger.PaymentBacked{Ref: r.PaymentRef, Status: r.PaymentStatus}, nil
		}
		return ledger.Virtual{}, nil
	case enums.ContributionMethodACH:
		if r.PaymentRef == "" {
			return nil, fmt.Errorf("ach contribution without payment reference")
		}
		if !r.PaymentStatus.IsValid() {
			return nil, fmt.Errorf("invalid payment status %q", r.PaymentStatus)
		}
		return ledger.PaymentBacked{Ref: r.PaymentRef, Status: r.PaymentStatus}, nil
	default:
		return nil, fmt.Errorf("unknown contribution method %q", r.Method)
	}
}
