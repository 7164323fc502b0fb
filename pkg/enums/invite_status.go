package enums

import "slices"

// InviteStatus tracks a bucket invitation.
type InviteStatus string

const (
	InviteStatusPending  InviteStatus = "pending"
	InviteStatusAccepted InviteStatus = "accepted"
	InviteStatusDeclined InviteStatus = "declined"
)

var validInviteStatuses = []InviteStatus{
	InviteStatusPending,
	InviteStatusAccepted,
	InviteStatusDeclined,
}

func (i InviteStatus) String() string {
	return string(i)
}

func (i InviteStatus) IsValid() bool {
	return slices.Contains(validInviteStatuses, i)
}

func ParseInviteStatus(value string) (InviteStatus, error) {
	return parse("invite status", validInviteStatuses, value)
}
