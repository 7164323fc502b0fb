package enums

import "slices"

type SupportRequestStatus string

const (
	SupportRequestStatusOpen     SupportRequestStatus = "open"
	SupportRequestStatusResolved SupportRequestStatus = "resolved"
)

var validSupportRequestStatuses = []SupportRequestStatus{
	SupportRequestStatusOpen,
	SupportRequestStatusResolved,
}

func (s SupportRequestStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known SupportRequestStatus.
func (s SupportRequestStatus) IsValid() bool {
	return slices.Contains(validSupportRequestStatuses, s)
}

// ParseSupportRequestStatus converts raw input into a SupportRequestStatus.
func ParseSupportRequestStatus(value string) (SupportRequestStatus, error) {
	return parse("support request status", validSupportRequestStatuses, value)
}
