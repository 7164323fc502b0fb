package invites

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bucketshare/bucketshare-backend/internal/buckets"
	"github.com/bucketshare/bucketshare-backend/internal/ledger"
	"github.com/bucketshare/bucketshare-backend/internal/notifications"
	"github.com/bucketshare/bucketshare-backend/pkg/db"
	"github.com/bucketshare/bucketshare-backend/pkg/db/models"
	"github.com/bucketshare/bucketshare-backend/pkg/enums"
	pkgerrors "github.com/bucketshare/bucketshare-backend/pkg/errors"
	"github.com/bucketshare/bucketshare-backend/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const pendingInviteConstraint = "uq_bucket_invites_pending"

type invitesRepository interface {
	Create(ctx context.Context, invite *models.BucketInvite) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.BucketInvite, error)
	FindPending(ctx context.Context, bucketID uuid.UUID, toUID string) (*models.BucketInvite, error)
	ListPendingForUser(ctx context.Context, uid string) ([]models.BucketInvite, error)
	Respond(ctx context.Context, id uuid.UUID, status enums.InviteStatus, at time.Time) error
	Reopen(ctx context.Context, id uuid.UUID, from enums.InviteStatus) error
}

type bucketStore interface {
	Load(ctx context.Context, id uuid.UUID) (*ledger.Bucket, error)
	Mutate(ctx context.Context, id uuid.UUID, fn buckets.MutateFunc) (*ledger.Bucket, error)
}

type friendGraph interface {
	AreFriends(ctx context.Context, a, b string) (bool, error)
}

type profileProvider interface {
	EnsureProfile(ctx context.Context, uid, email string) (*models.User, error)
}

type notifier interface {
	Notify(ctx context.Context, n notifications.Notification)
}

// Service manages bucket invitations between friends.
type Service interface {
	Create(ctx context.Context, actor buckets.Actor, bucketID uuid.UUID, toUID string) (*InviteDTO, error)
	ListPending(ctx context.Context, actor buckets.Actor) ([]InviteDTO, error)
	Accept(ctx context.Context, actor buckets.Actor, inviteID uuid.UUID) (*InviteDTO, error)
	Decline(ctx context.Context, actor buckets.Actor, inviteID uuid.UUID) (*InviteDTO, error)
}

type ServiceParams struct {
	Repo     invitesRepository
	Buckets  bucketStore
	Friends  friendGraph
	Users    profileProvider
	Notifier notifier
	Logger   *logger.Logger
	Now      func() time.Time
}

type service struct {
	repo     invitesRepository
	buckets  bucketStore
	friends  friendGraph
	users    profileProvider
	notifier notifier
	logg     *logger.Logger
	now      func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "invites repository required")
	}
	if params.Buckets == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "bucket store required")
	}
	if params.Friends == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "friend graph required")
	}
	if params.Users == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "users service required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:     params.Repo,
		buckets:  params.Buckets,
		friends:  params.Friends,
		users:    params.Users,
		notifier: params.Notifier,
		logg:     params.Logger,
		now:      now,
	}, nil
}

// Create invites a friend of the owner into the bucket. Re-inviting someone with
// an open invite returns that invite.
func (s *service) Create(ctx context.Context, actor buckets.Actor, bucketID uuid.UUID, toUID string) (*InviteDTO, error) {
	toUID = strings.TrimSpace(toUID)
	if toUID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invitee is required")
	}
	bucket, err := s.buckets.Load(ctx, bucketID)
	if err != nil {
		return nil, err
	}
	if actor.UID != bucket.OwnerUID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the owner can invite members")
	}
	if toUID == actor.UID {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidInvite, "cannot invite yourself")
	}
	if bucket.IsMember(toUID) {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidInvite, "user is already a member").
			WithDetails(map[string]any{"uid": toUID})
	}
	friends, err := s.friends.AreFriends(ctx, actor.UID, toUID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check friendship")
	}
	if !friends {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidInvite, "you can only invite friends").
			WithDetails(map[string]any{"uid": toUID})
	}

	existing, err := s.repo.FindPending(ctx, bucketID, toUID)
	switch {
	case err == nil:
		return FromModel(existing), nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load pending invite")
	}

	inviter, err := s.users.EnsureProfile(ctx, actor.UID, actor.Email)
	if err != nil {
		return nil, err
	}
	invite := &models.BucketInvite{
		BucketID:   bucketID,
		BucketName: bucket.Name,
		FromUID:    actor.UID,
		FromName:   displayName(inviter),
		ToUID:      toUID,
		Status:     enums.InviteStatusPending,
	}
	if err := s.repo.Create(ctx, invite); err != nil {
		if !db.IsUniqueViolation(err, pendingInviteConstraint) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create invite")
		}
		// a concurrent request created the same pending invite
		existing, findErr := s.repo.FindPending(ctx, bucketID, toUID)
		if findErr != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, findErr, "load pending invite")
		}
		return FromModel(existing), nil
	}

	if s.notifier != nil {
		s.notifier.Notify(ctx, notifications.Notification{
			Type:       notifications.TypeBucketInvite,
			Recipients: []string{toUID},
			BucketID:   &bucketID,
			Data: map[string]any{
				"invite_id":   invite.ID.String(),
				"bucket_name": bucket.Name,
				"from_name":   invite.FromName,
			},
		})
	}
	return FromModel(invite), nil
}

func (s *service) ListPending(ctx context.Context, actor buckets.Actor) ([]InviteDTO, error) {
	rows, err := s.repo.ListPendingForUser(ctx, actor.UID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list invites")
	}
	return fromModels(rows), nil
}

// Accept adds the invitee to the bucket using a snapshot of their current
// profile. The invite is claimed before the bucket changes so a racing
// decline cannot leave a member behind a declined invite.
func (s *service) Accept(ctx context.Context, actor buckets.Actor, inviteID uuid.UUID) (*InviteDTO, error) {
	invite, err := s.loadPending(ctx, actor, inviteID)
	if err != nil {
		return nil, err
	}
	profile, err := s.users.EnsureProfile(ctx, actor.UID, actor.Email)
	if err != nil {
		return nil, err
	}
	accepted, err := s.respond(ctx, invite, enums.InviteStatusAccepted)
	if err != nil {
		return nil, err
	}

	member := ledger.Member{
		UID:         profile.UID,
		Email:       profile.Email,
		DisplayName: displayName(profile),
		Role:        enums.MemberRoleMember,
	}
	_, err = s.buckets.Mutate(ctx, invite.BucketID, func(b *ledger.Bucket) (bool, error) {
		if b.IsMember(member.UID) {
			return false, nil
		}
		if err := b.AddMember(member, s.now()); err != nil {
			return false, err
		}
		return true, nil
	})
	if err != nil {
		if reopenErr := s.repo.Reopen(context.WithoutCancel(ctx), invite.ID, enums.InviteStatusAccepted); reopenErr != nil && s.logg != nil {
			s.logg.Error(ctx, "invite left accepted after failed membership update", reopenErr)
		}
		return nil, err
	}
	return accepted, nil
}

func (s *service) Decline(ctx context.Context, actor buckets.Actor, inviteID uuid.UUID) (*InviteDTO, error) {
	invite, err := s.loadPending(ctx, actor, inviteID)
	if err != nil {
		return nil, err
	}
	return s.respond(ctx, invite, enums.InviteStatusDeclined)
}

func (s *service) loadPending(ctx context.Context, actor buckets.Actor, inviteID uuid.UUID) (*models.BucketInvite, error) {
	invite, err := s.repo.FindByID(ctx, inviteID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "invite not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load invite")
	}
	if invite.ToUID != actor.UID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "access denied")
	}
	if invite.Status != enums.InviteStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidInvite, "invite is no longer pending").
			WithDetails(map[string]any{"status": invite.Status})
	}
	return invite, nil
}

func (s *service) respond(ctx context.Context, invite *models.BucketInvite, status enums.InviteStatus) (*InviteDTO, error) {
	at := s.now().UTC()
	if err := s.repo.Respond(ctx, invite.ID, status, at); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeInvalidInvite, "invite is no longer pending")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update invite")
	}
	invite.Status = status
	invite.RespondedAt = &at
	return FromModel(invite), nil
}

func displayName(u *models.User) string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Email
}
