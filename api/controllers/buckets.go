package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bucketshare/bucketshare-backend/api/middleware"
	"github.com/bucketshare/bucketshare-backend/api/responses"
	"github.com/bucketshare/bucketshare-backend/api/validators"
	"github.com/bucketshare/bucketshare-backend/internal/buckets"
	"github.com/bucketshare/bucketshare-backend/internal/invites"
	"github.com/bucketshare/bucketshare-backend/pkg/enums"
	pkgerrors "github.com/bucketshare/bucketshare-backend/pkg/errors"
	"github.com/bucketshare/bucketshare-backend/pkg/logger"
)

func actorFromRequest(r *http.Request) (buckets.Actor, error) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		return buckets.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	return buckets.Actor{UID: id.UID, Email: id.Email}, nil
}

func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+name).WithDetails(map[string]any{"field": name})
	}
	return id, nil
}

type bucketCreateRequest struct {
	Name        string          `json:"name" validate:"required,min=1,max=120"`
	Description *string         `json:"description,omitempty" validate:"omitempty,max=1000"`
	GoalAmount  decimal.Decimal `json:"goal_amount" validate:"positive_amount"`
	TargetDate  *time.Time      `json:"target_date,omitempty"`
}

// BucketList returns every bucket the caller is a member of.
func BucketList(svc buckets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bucket service unavailable"))
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.List(r.Context(), actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if list == nil {
			list = []buckets.BucketDTO{}
		}
		responses.WriteSuccess(w, list)
	}
}

// BucketCreate opens a bucket owned by the caller.
func BucketCreate(svc buckets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bucket service unavailable"))
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload bucketCreateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		bucket, err := svc.Create(r.Context(), actor, buckets.CreateInput{
			Name:        strings.TrimSpace(payload.Name),
			Description: payload.Description,
			GoalAmount:  payload.GoalAmount,
			TargetDate:  payload.TargetDate,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, bucket)
	}
}

func BucketGet(svc buckets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bucket service unavailable"))
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := uuidParam(r, "bucketId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		bucket, err := svc.Get(r.Context(), actor, id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, bucket)
	}
}

func BucketDelete(svc buckets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bucket service unavailable"))
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := uuidParam(r, "bucketId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Delete(r.Context(), actor, id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"id": id, "deleted": true})
	}
}

type contributionRequest struct {
	Amount decimal.Decimal          `json:"amount" validate:"positive_amount"`
	Method enums.ContributionMethod `json:"method" validate:"required,oneof=virtual ach"`
}

// BucketContribute allocates funds to a bucket. Virtual contributions settle
// immediately; ACH contributions come back pending until the debit settles.
func BucketContribute(svc buckets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bucket service unavailable"))
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := uuidParam(r, "bucketId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload contributionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ctx := logg.WithBucketID(r.Context(), id.String())
		result, err := svc.Allocate(ctx, actor, id, buckets.AllocateInput{
			Amount: payload.Amount,
			Method: payload.Method,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// BucketCollect releases a completed bucket's funds to its collector.
func BucketCollect(svc buckets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bucket service unavailable"))
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := uuidParam(r, "bucketId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := logg.WithBucketID(r.Context(), id.String())
		bucket, err := svc.Collect(ctx, actor, id)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, bucket)
	}
}

type collectorRequest struct {
	UID string `json:"uid" validate:"required,min=1,max=128"`
}

func BucketSetCollector(svc buckets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bucket service unavailable"))
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := uuidParam(r, "bucketId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload collectorRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		bucket, err := svc.SetCollector(r.Context(), actor, id, strings.TrimSpace(payload.UID))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, bucket)
	}
}

type inviteCreateRequest struct {
	UID string `json:"uid" validate:"required,min=1,max=128"`
}

// BucketInvite invites a friend of the caller into the bucket.
func BucketInvite(svc invites.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "invite service unavailable"))
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := uuidParam(r, "bucketId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload inviteCreateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		invite, err := svc.Create(r.Context(), actor, id, strings.TrimSpace(payload.UID))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, invite)
	}
}
