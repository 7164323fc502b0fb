package enums

import "slices"

// SettlementEventKind classifies inbound processor notifications.
type SettlementEventKind string

const (
	SettlementEventKindDebitSucceeded       SettlementEventKind = "debit_succeeded"
	SettlementEventKindDebitFailed          SettlementEventKind = "debit_failed"
	SettlementEventKindDisputeCreated       SettlementEventKind = "dispute_created"
	SettlementEventKindFundingLinked        SettlementEventKind = "funding_linked"
	SettlementEventKindPayoutAccountUpdated SettlementEventKind = "payout_account_updated"
	SettlementEventKindTierChanged          SettlementEventKind = "tier_changed"
)

var validSettlementEventKinds = []SettlementEventKind{
	SettlementEventKindDebitSucceeded,
	SettlementEventKindDebitFailed,
	SettlementEventKindDisputeCreated,
	SettlementEventKindFundingLinked,
	SettlementEventKindPayoutAccountUpdated,
	SettlementEventKindTierChanged,
}

func (s SettlementEventKind) String() string {
	return string(s)
}

// IsValid reports whether the value is a known SettlementEventKind.
func (s SettlementEventKind) IsValid() bool {
	return slices.Contains(validSettlementEventKinds, s)
}

// ParseSettlementEventKind converts raw input into a SettlementEventKind.
func ParseSettlementEventKind(value string) (SettlementEventKind, error) {
	return parse("settlement event kind", validSettlementEventKinds, value)
}
