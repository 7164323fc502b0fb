package models

// All lists every persisted model; used to bootstrap embedded SQLite databases.
func All() []any {
	return []any{
		&User{},
		&Friendship{},
		&Bucket{},
		&BucketMember{},
		&BucketPaymentRef{},
		&BucketInvite{},
		&SupportRequest{},
		&SettlementDeadLetter{},
	}
}
