package ledger

import "github.com/bucketshare/bucketshare-backend/pkg/enums"

// Funding describes how a contribution is backed. It is either Virtual or PaymentBacked.
type Funding interface {
	isFunding()
	Method() enums.ContributionMethod
}

// Virtual contributions are tracking-only and count as settled at creation.
type Virtual struct{}

func (Virtual) isFunding() {}

func (Virtual) Method() enums.ContributionMethod { return enums.ContributionMethodVirtual }

// PaymentBacked contributions are ACH debits whose status follows the processor.
type PaymentBacked struct {
	Ref    string
	Status enums.PaymentStatus
}

func (PaymentBacked) isFunding() {}

func (PaymentBacked) Method() enums.ContributionMethod { return enums.ContributionMethodACH }
