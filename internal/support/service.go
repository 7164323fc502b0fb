package support

import (
	"context"
	"strings"

	"github.com/bucketshare/bucketshare-backend/internal/buckets"
	"github.com/bucketshare/bucketshare-backend/internal/ledger"
	"github.com/bucketshare/bucketshare-backend/internal/notifications"
	"github.com/bucketshare/bucketshare-backend/pkg/db"
	"github.com/bucketshare/bucketshare-backend/pkg/db/models"
	"github.com/bucketshare/bucketshare-backend/pkg/enums"
	pkgerrors "github.com/bucketshare/bucketshare-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	maxMessageLength      = 2000
	openRequestConstraint = "uq_support_requests_open"
)

type requestsRepository interface {
	Create(ctx context.Context, req *models.SupportRequest) error
	HasOpen(ctx context.Context, uid string, bucketID uuid.UUID) (bool, error)
	ListForUser(ctx context.Context, uid string) ([]models.SupportRequest, error)
}

type bucketLoader interface {
	Load(ctx context.Context, id uuid.UUID) (*ledger.Bucket, error)
}

type notifier interface {
	Notify(ctx context.Context, n notifications.Notification)
}

// Service records stuck-funds requests for manual handling.
type Service interface {
	SubmitStuckFunds(ctx context.Context, actor buckets.Actor, input StuckFundsInput) (*RequestDTO, error)
	List(ctx context.Context, actor buckets.Actor) ([]RequestDTO, error)
}

type ServiceParams struct {
	Repo     requestsRepository
	Buckets  bucketLoader
	Notifier notifier
}

type service struct {
	repo     requestsRepository
	buckets  bucketLoader
	notifier notifier
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "support repository required")
	}
	if params.Buckets == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "bucket store required")
	}
	return &service{
		repo:     params.Repo,
		buckets:  params.Buckets,
		notifier: params.Notifier,
	}, nil
}

// SubmitStuckFunds stores the request and then notifies support. Notification
// failures never fail the request.
func (s *service) SubmitStuckFunds(ctx context.Context, actor buckets.Actor, input StuckFundsInput) (*RequestDTO, error) {
	message := strings.TrimSpace(input.Message)
	if input.BucketID == uuid.Nil || message == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "bucket_id and message are required")
	}
	if len(message) > maxMessageLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "message is too long").
			WithDetails(map[string]any{"max_length": maxMessageLength})
	}

	bucket, err := s.buckets.Load(ctx, input.BucketID)
	if err != nil {
		return nil, err
	}
	if !bucket.IsMember(actor.UID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "access denied")
	}

	open, err := s.repo.HasOpen(ctx, actor.UID, bucket.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check open support requests")
	}
	if open {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "you already have an open request for this bucket")
	}

	req := &models.SupportRequest{
		UID:         actor.UID,
		Email:       actor.Email,
		BucketID:    bucket.ID,
		BucketName:  bucket.Name,
		AmountStuck: contributedBy(bucket, actor.UID),
		Message:     message,
		Status:      enums.SupportRequestStatusOpen,
	}
	if err := s.repo.Create(ctx, req); err != nil {
		if db.IsUniqueViolation(err, openRequestConstraint) {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "you already have an open request for this bucket")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create support request")
	}

	if s.notifier != nil {
		bucketID := bucket.ID
		s.notifier.Notify(ctx, notifications.Notification{
			Type:     notifications.TypeStuckFundsRequest,
			BucketID: &bucketID,
			Data: map[string]any{
				"request_id":   req.ID.String(),
				"bucket_name":  bucket.Name,
				"user_email":   actor.Email,
				"amount_stuck": req.AmountStuck.StringFixed(2),
				"message":      message,
			},
		})
	}

	dto := FromModel(req)
	return &dto, nil
}

func (s *service) List(ctx context.Context, actor buckets.Actor) ([]RequestDTO, error) {
	rows, err := s.repo.ListForUser(ctx, actor.UID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list support requests")
	}
	out := make([]RequestDTO, 0, len(rows))
	for i := range rows {
		out = append(out, FromModel(&rows[i]))
	}
	return out, nil
}

// contributedBy sums the user's contributions that still hold funds in the bucket.
func contributedBy(b *ledger.Bucket, uid string) decimal.Decimal {
	total := decimal.Zero
	for _, c := range b.Contributions {
		if c.ContributorUID != uid {
			continue
		}
		if c.IsSettled() || c.IsPending() {
			total = total.Add(c.Amount)
		}
	}
	return total
}
