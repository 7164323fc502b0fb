package ledger

import (
	"strings"
	"time"

	"github.com/bucketshare/bucketshare-backend/pkg/enums"
	pkgerrors "github.com/bucketshare/bucketshare-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Bucket is the savings-goal aggregate root. All contribution and status
// changes go through its methods so the totals never drift from the
// contribution list.
type Bucket struct {
	ID            uuid.UUID
	OwnerUID      string
	CollectorUID  string
	Name          string
	Description   *string
	GoalAmount    decimal.Decimal
	TargetDate    *time.Time
	CurrentAmount decimal.Decimal
	PendingAmount decimal.Decimal
	Status        enums.BucketStatus
	Members       []Member
	Contributions []Contribution
	HasReversal   bool
	AutoCollected bool
	CollectedAt   *time.Time
	PayoutRef     *string
	Version       int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type NewBucketParams struct {
	ID          uuid.UUID
	Owner       Member
	Name        string
	Description *string
	GoalAmount  decimal.Decimal
	TargetDate  *time.Time
	Now         time.Time
}

// NewBucket creates an active bucket whose owner is also its first member and collector.
func NewBucket(params NewBucketParams) (*Bucket, error) {
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	if !params.GoalAmount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "goal amount must be greater than 0")
	}
	if strings.TrimSpace(params.Owner.UID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "owner is required")
	}
	id := params.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	now := params.Now.UTC()

	owner := params.Owner
	owner.Role = enums.MemberRoleOwner
	if owner.JoinedAt.IsZero() {
		owner.JoinedAt = now
	}

	return &Bucket{
		ID:            id,
		OwnerUID:      owner.UID,
		CollectorUID:  owner.UID,
		Name:          name,
		Description:   params.Description,
		GoalAmount:    params.GoalAmount,
		TargetDate:    params.TargetDate,
		CurrentAmount: decimal.Zero,
		PendingAmount: decimal.Zero,
		Status:        enums.BucketStatusActive,
		Members:       []Member{owner},
		Contributions: []Contribution{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// IsMember reports whether uid is the owner or appears in the member list.
func (b *Bucket) IsMember(uid string) bool {
	if uid == "" {
		return false
	}
	if uid == b.OwnerUID {
		return true
	}
	for _, m := range b.Members {
		if m.UID == uid {
			return true
		}
	}
	return false
}

// MemberUIDs returns member uids in join order.
func (b *Bucket) MemberUIDs() []string {
	uids := make([]string, 0, len(b.Members))
	for _, m := range b.Members {
		uids = append(uids, m.UID)
	}
	return uids
}

// AddMember appends a member snapshot. Members are unique by uid.
func (b *Bucket) AddMember(m Member, now time.Time) error {
	if strings.TrimSpace(m.UID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "member uid is required")
	}
	if b.IsMember(m.UID) {
		return pkgerrors.New(pkgerrors.CodeInvalidInvite, "user is already a member").
			WithDetails(map[string]any{"uid": m.UID})
	}
	m.Role = enums.MemberRoleMember
	if m.JoinedAt.IsZero() {
		m.JoinedAt = now.UTC()
	}
	b.Members = append(b.Members, m)
	b.touch(now)
	return nil
}

// SetCollector reassigns the collector. Only the owner may do so and the new
// collector must already be a member.
func (b *Bucket) SetCollector(actorUID, collectorUID string, now time.Time) error {
	if actorUID != b.OwnerUID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "only the owner can change the collector")
	}
	if !b.IsMember(collectorUID) {
		return pkgerrors.New(pkgerrors.CodeValidation, "collector must be a member of the bucket").
			WithDetails(map[string]any{"collector_uid": collectorUID})
	}
	b.CollectorUID = collectorUID
	b.touch(now)
	return nil
}

// Allocation is a contribution request that has passed the caller's
// identity checks.
type Allocation struct {
	ID             uuid.UUID
	ContributorUID string
	Amount         decimal.Decimal
	// Limit is the contributor's per-transaction cap; nil means unlimited.
	Limit *decimal.Decimal
	Now   time.Time
}

// CheckAllocatable runs the membership, status, amount and limit checks in order.
func (b *Bucket) CheckAllocatable(uid string, amount decimal.Decimal, limit *decimal.Decimal) error {
	if !b.IsMember(uid) {
		return pkgerrors.New(pkgerrors.CodeForbidden, "access denied")
	}
	if b.Status != enums.BucketStatusActive {
		return pkgerrors.New(pkgerrors.CodeBucketAlreadyComplete, "bucket is no longer accepting contributions").
			WithDetails(map[string]any{"status": b.Status})
	}
	if !amount.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be greater than 0")
	}
	if !amount.Equal(amount.Round(2)) {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must have at most two decimal places")
	}
	if limit != nil && amount.GreaterThan(*limit) {
		return pkgerrors.New(pkgerrors.CodeLimitExceeded, "amount exceeds your per-transaction limit").
			WithDetails(map[string]any{"limit": limit.StringFixed(2)})
	}
	return nil
}

// AddVirtualContribution appends a settled tracking-only contribution and
// re-evaluates the bucket status.
func (b *Bucket) AddVirtualContribution(a Allocation) (*Contribution, error) {
	if err := b.CheckAllocatable(a.ContributorUID, a.Amount, a.Limit); err != nil {
		return nil, err
	}
	now := a.Now.UTC()
	c := Contribution{
		ID:             idOrNew(a.ID),
		Amount:         a.Amount,
		ContributorUID: a.ContributorUID,
		Funding:        Virtual{},
		SettledAt:      &now,
		CreatedAt:      now,
	}
	b.Contributions = append(b.Contributions, c)
	b.CurrentAmount = b.CurrentAmount.Add(a.Amount)
	b.reevaluateStatus()
	b.touch(now)
	return &b.Contributions[len(b.Contributions)-1], nil
}

// AddPendingContribution appends a payment-backed contribution accepted by the
// processor. currentAmount is untouched until settlement. Re-adding a known
// ref returns the existing contribution.
func (b *Bucket) AddPendingContribution(a Allocation, paymentRef string) (*Contribution, error) {
	paymentRef = strings.TrimSpace(paymentRef)
	if paymentRef == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment reference is required")
	}
	if idx := b.indexOfRef(paymentRef); idx >= 0 {
		return &b.Contributions[idx], nil
	}
	if err := b.CheckAllocatable(a.ContributorUID, a.Amount, a.Limit); err != nil {
		return nil, err
	}
	now := a.Now.UTC()
	c := Contribution{
		ID:             idOrNew(a.ID),
		Amount:         a.Amount,
		ContributorUID: a.ContributorUID,
		Funding:        PaymentBacked{Ref: paymentRef, Status: enums.PaymentStatusPending},
		CreatedAt:      now,
	}
	b.Contributions = append(b.Contributions, c)
	b.PendingAmount = b.PendingAmount.Add(a.Amount)
	b.touch(now)
	return &b.Contributions[len(b.Contributions)-1], nil
}

// SettleSucceeded moves a pending contribution to succeeded and counts it
// toward the goal.
func (b *Bucket) SettleSucceeded(paymentRef string, now time.Time) (Outcome, error) {
	c, err := b.contributionByRef(paymentRef)
	if err != nil {
		return OutcomeIgnored, err
	}
	status, _ := c.PaymentStatus()
	switch status {
	case enums.PaymentStatusSucceeded:
		return OutcomeDuplicate, nil
	case enums.PaymentStatusPending:
	default:
		return OutcomeIgnored, nil
	}

	settled := now.UTC()
	c.setPaymentStatus(enums.PaymentStatusSucceeded)
	c.SettledAt = &settled
	b.CurrentAmount = b.CurrentAmount.Add(c.Amount)
	b.PendingAmount = floorZero(b.PendingAmount.Sub(c.Amount))
	b.reevaluateStatus()
	b.touch(now)
	return OutcomeApplied, nil
}

// SettleFailed moves a pending contribution to failed. currentAmount is never
// touched since it was not counted.
func (b *Bucket) SettleFailed(paymentRef, reason string, now time.Time) (Outcome, error) {
	c, err := b.contributionByRef(paymentRef)
	if err != nil {
		return OutcomeIgnored, err
	}
	status, _ := c.PaymentStatus()
	switch status {
	case enums.PaymentStatusFailed:
		return OutcomeDuplicate, nil
	case enums.PaymentStatusPending:
	default:
		return OutcomeIgnored, nil
	}

	if strings.TrimSpace(reason) == "" {
		reason = "unknown"
	}
	c.setPaymentStatus(enums.PaymentStatusFailed)
	c.FailureReason = &reason
	b.PendingAmount = floorZero(b.PendingAmount.Sub(c.Amount))
	b.touch(now)
	return OutcomeApplied, nil
}

// Reverse claws back a succeeded contribution after a dispute. A collected
// bucket keeps its status and is flagged for manual review.
func (b *Bucket) Reverse(paymentRef string, now time.Time) (Outcome, error) {
	c, err := b.contributionByRef(paymentRef)
	if err != nil {
		return OutcomeIgnored, err
	}
	status, _ := c.PaymentStatus()
	switch status {
	case enums.PaymentStatusReversed:
		return OutcomeDuplicate, nil
	case enums.PaymentStatusSucceeded:
	default:
		return OutcomeIgnored, nil
	}

	c.setPaymentStatus(enums.PaymentStatusReversed)
	b.CurrentAmount = floorZero(b.CurrentAmount.Sub(c.Amount))
	if b.Status == enums.BucketStatusCollected {
		b.HasReversal = true
	}
	b.reevaluateStatus()
	b.touch(now)
	return OutcomeApplied, nil
}

// PendingSummary returns the number and sum of contributions awaiting settlement.
func (b *Bucket) PendingSummary() (int, decimal.Decimal) {
	count := 0
	sum := decimal.Zero
	for _, c := range b.Contributions {
		if c.IsPending() {
			count++
			sum = sum.Add(c.Amount)
		}
	}
	return count, sum
}

// SettledTotal re-sums succeeded and virtual contributions.
func (b *Bucket) SettledTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, c := range b.Contributions {
		if c.IsSettled() {
			sum = sum.Add(c.Amount)
		}
	}
	return sum
}

// HasPaymentBacked reports whether any contribution was funded through the processor.
func (b *Bucket) HasPaymentBacked() bool {
	for _, c := range b.Contributions {
		if _, ok := c.Funding.(PaymentBacked); ok {
			return true
		}
	}
	return false
}

// SettledPaymentBacked reports whether any processor-funded money is still counted in the bucket.
func (b *Bucket) SettledPaymentBacked() bool {
	for _, c := range b.Contributions {
		if status, ok := c.PaymentStatus(); ok && status == enums.PaymentStatusSucceeded {
			return true
		}
	}
	return false
}

// CheckCollectable runs the collection preconditions that depend only on the aggregate.
func (b *Bucket) CheckCollectable(uid string) error {
	if uid != b.CollectorUID {
		return pkgerrors.New(pkgerrors.CodeNotCollector, "only the designated collector can collect")
	}
	switch b.Status {
	case enums.BucketStatusCompleted:
	case enums.BucketStatusCollected:
		return pkgerrors.New(pkgerrors.CodeBucketAlreadyComplete, "bucket has already been collected").
			WithDetails(map[string]any{"status": b.Status})
	default:
		return pkgerrors.New(pkgerrors.CodeNotYetComplete, "bucket must be completed before collecting").
			WithDetails(map[string]any{
				"current_amount": b.CurrentAmount.StringFixed(2),
				"goal_amount":    b.GoalAmount.StringFixed(2),
			})
	}
	if count, sum := b.PendingSummary(); count > 0 {
		return pkgerrors.New(pkgerrors.CodeSettlementPending, "contributions are still settling").
			WithDetails(map[string]any{
				"pending_count":  count,
				"pending_amount": sum.StringFixed(2),
			})
	}
	return nil
}

// MarkCollected moves a completed bucket to collected. payoutRef is nil when
// no transfer was needed.
func (b *Bucket) MarkCollected(payoutRef *string, auto bool, now time.Time) error {
	if b.Status != enums.BucketStatusCompleted {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "only completed buckets can be collected").
			WithDetails(map[string]any{"status": b.Status})
	}
	if count, _ := b.PendingSummary(); count > 0 {
		return pkgerrors.New(pkgerrors.CodeSettlementPending, "contributions are still settling").
			WithDetails(map[string]any{"pending_count": count})
	}
	collected := now.UTC()
	b.Status = enums.BucketStatusCollected
	b.CollectedAt = &collected
	b.PayoutRef = payoutRef
	b.AutoCollected = auto
	b.touch(now)
	return nil
}

// RecordPayout attaches the transfer reference once the payout for a claimed
// collection went through.
func (b *Bucket) RecordPayout(ref string, now time.Time) error {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payout reference is required")
	}
	if b.Status != enums.BucketStatusCollected {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "payout can only be recorded on a collected bucket").
			WithDetails(map[string]any{"status": b.Status})
	}
	if b.PayoutRef != nil {
		if *b.PayoutRef == ref {
			return nil
		}
		return pkgerrors.New(pkgerrors.CodeStateConflict, "bucket already has a payout").
			WithDetails(map[string]any{"payout_ref": *b.PayoutRef})
	}
	b.PayoutRef = &ref
	b.touch(now)
	return nil
}

// ReleaseCollection reopens a manual collection whose payout the processor
// refused. A reversal that landed while the claim was held is treated as an
// ordinary reversal since no money left the bucket.
func (b *Bucket) ReleaseCollection(now time.Time) error {
	if b.Status != enums.BucketStatusCollected || b.PayoutRef != nil || b.AutoCollected {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "collection cannot be released").
			WithDetails(map[string]any{"status": b.Status})
	}
	b.Status = enums.BucketStatusActive
	b.CollectedAt = nil
	b.HasReversal = false
	b.reevaluateStatus()
	b.touch(now)
	return nil
}

// AutoCollectEligible reports whether the daily sweep may collect this bucket
// without a payout transfer.
func (b *Bucket) AutoCollectEligible(now time.Time) bool {
	if b.Status != enums.BucketStatusCompleted || b.HasPaymentBacked() {
		return false
	}
	return b.TargetDate != nil && !b.TargetDate.After(now)
}

// FindContribution returns the contribution with the given processor reference.
func (b *Bucket) FindContribution(paymentRef string) (*Contribution, bool) {
	idx := b.indexOfRef(paymentRef)
	if idx < 0 {
		return nil, false
	}
	return &b.Contributions[idx], true
}

func (b *Bucket) reevaluateStatus() {
	if b.Status == enums.BucketStatusCollected {
		return
	}
	if b.CurrentAmount.GreaterThanOrEqual(b.GoalAmount) {
		b.Status = enums.BucketStatusCompleted
		return
	}
	b.Status = enums.BucketStatusActive
}

func (b *Bucket) contributionByRef(paymentRef string) (*Contribution, error) {
	idx := b.indexOfRef(paymentRef)
	if idx < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "contribution not found for payment reference").
			WithDetails(map[string]any{"payment_ref": paymentRef})
	}
	return &b.Contributions[idx], nil
}

func (b *Bucket) indexOfRef(paymentRef string) int {
	if paymentRef == "" {
		return -1
	}
	for i := range b.Contributions {
		if b.Contributions[i].PaymentRef() == paymentRef {
			return i
		}
	}
	return -1
}

func (b *Bucket) touch(now time.Time) {
	if now.IsZero() {
		return
	}
	b.UpdatedAt = now.UTC()
}

func floorZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

func idOrNew(id uuid.UUID) uuid.UUID {
	if id == uuid.Nil {
		return uuid.New()
	}
	return id
}
