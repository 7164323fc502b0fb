package enums

import "slices"

// BucketStatus is the lifecycle state of a savings bucket.
type BucketStatus string

const (
	BucketStatusActive    BucketStatus = "active"
	BucketStatusCompleted BucketStatus = "completed"
	BucketStatusCollected BucketStatus = "collected"
)

var validBucketStatuses = []BucketStatus{
	BucketStatusActive,
	BucketStatusCompleted,
	BucketStatusCollected,
}

func (b BucketStatus) String() string {
	return string(b)
}

// IsValid reports whether the value is a known BucketStatus.
func (b BucketStatus) IsValid() bool {
	return slices.Contains(validBucketStatuses, b)
}

// ParseBucketStatus converts raw input into a BucketStatus.
func ParseBucketStatus(value string) (BucketStatus, error) {
	return parse("bucket status", validBucketStatuses, value)
}

// IsOpen reports whether the bucket still counts against the owner's tier allowance.
func (b BucketStatus) IsOpen() bool {
	return b == BucketStatusActive || b == BucketStatusCompleted
}
