package enums

import "slices"

// Tier is the subscription level gating bucket creation.
type Tier string

const (
	TierFree Tier = "free"
	TierPlus Tier = "plus"
)

var validTiers = []Tier{
	TierFree,
	TierPlus,
}

func (t Tier) String() string {
	return string(t)
}

// IsValid reports whether the value is a known Tier.
func (t Tier) IsValid() bool {
	return slices.Contains(validTiers, t)
}

// ParseTier converts raw input into a Tier.
func ParseTier(value string) (Tier, error) {
	return parse("tier", validTiers, value)
}

// OpenBucketLimit returns the maximum number of open buckets an owner may hold; 0 means unlimited.
func (t Tier) OpenBucketLimit() int {
	if t == TierPlus {
		return 0
	}
	return 1
}
