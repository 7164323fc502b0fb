package ledger

import (
	"time"

	"github.com/bucketshare/bucketshare-backend/pkg/enums"
)

// Member is a snapshot of a participant's identity taken when they joined.
// It is never re-synced with the user profile.
type Member struct {
	UID         string
	Email       string
	DisplayName string
	Role        enums.MemberRole
	JoinedAt    time.Time
}
