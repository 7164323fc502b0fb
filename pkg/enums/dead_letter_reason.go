package enums

import "slices"

// DeadLetterReason explains why a settlement event could not be applied.
type DeadLetterReason string

const (
	DeadLetterReasonUnknownPaymentRef    DeadLetterReason = "unknown_payment_ref"
	DeadLetterReasonBucketNotFound       DeadLetterReason = "bucket_not_found"
	DeadLetterReasonContributionNotFound DeadLetterReason = "contribution_not_found"
	DeadLetterReasonUnknownCustomer      DeadLetterReason = "unknown_customer"
	DeadLetterReasonDecodeFailed         DeadLetterReason = "decode_failed"
)

var validDeadLetterReasons = []DeadLetterReason{
	DeadLetterReasonUnknownPaymentRef,
	DeadLetterReasonBucketNotFound,
	DeadLetterReasonContributionNotFound,
	DeadLetterReasonUnknownCustomer,
	DeadLetterReasonDecodeFailed,
}

func (d DeadLetterReason) String() string {
	return string(d)
}

// IsValid reports whether the value is a known DeadLetterReason.
func (d DeadLetterReason) IsValid() bool {
	return slices.Contains(validDeadLetterReasons, d)
}

// ParseDeadLetterReason converts raw input into a DeadLetterReason.
func ParseDeadLetterReason(value string) (DeadLetterReason, error) {
	return parse("dead letter reason", validDeadLetterReasons, value)
}
