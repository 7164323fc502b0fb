package enums

import "slices"

// MemberRole is a participant's role within a bucket.
type MemberRole string

const (
	MemberRoleOwner  MemberRole = "owner"
	MemberRoleMember MemberRole = "member"
)

var validMemberRoles = []MemberRole{
	MemberRoleOwner,
	MemberRoleMember,
}

func (m MemberRole) String() string {
	return string(m)
}

func (m MemberRole) IsValid() bool {
	return slices.Contains(validMemberRoles, m)
}

func ParseMemberRole(value string) (MemberRole, error) {
	return parse("member role", validMemberRoles, value)
}
