package ledger

import (
	"time"

	"github.com/bucketshare/bucketshare-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Contribution struct {
	ID             uuid.UUID
	Amount         decimal.Decimal
	ContributorUID string
	Funding        Funding
	SettledAt      *time.Time
	FailureReason  *string
	CreatedAt      time.Time
}

// PaymentRef returns the processor reference, or "" for virtual contributions.
func (c Contribution) PaymentRef() string {
	if pb, ok := c.Funding.(PaymentBacked); ok {
		return pb.Ref
	}
	return ""
}

// PaymentStatus returns the processor status; ok is false for virtual contributions.
func (c Contribution) PaymentStatus() (enums.PaymentStatus, bool) {
	if pb, ok := c.Funding.(PaymentBacked); ok {
		return pb.Status, true
	}
	return "", false
}

// IsSettled reports whether the contribution counts toward currentAmount.
func (c Contribution) IsSettled() bool {
	switch f := c.Funding.(type) {
	case Virtual:
		return true
	case PaymentBacked:
		return f.Status == enums.PaymentStatusSucceeded
	default:
		return false
	}
}

// IsPending reports whether the contribution awaits processor settlement.
func (c Contribution) IsPending() bool {
	status, ok := c.PaymentStatus()
	return ok && status == enums.PaymentStatusPending
}

func (c *Contribution) setPaymentStatus(status enums.PaymentStatus) {
	if pb, ok := c.Funding.(PaymentBacked); ok {
		pb.Status = status
		c.Funding = pb
	}
}
