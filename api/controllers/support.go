package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/bucketshare/bucketshare-backend/api/responses"
	"github.com/bucketshare/bucketshare-backend/api/validators"
	"github.com/bucketshare/bucketshare-backend/internal/support"
	pkgerrors "github.com/bucketshare/bucketshare-backend/pkg/errors"
	"github.com/bucketshare/bucketshare-backend/pkg/logger"
)

type stuckFundsRequest struct {
	BucketID uuid.UUID `json:"bucket_id" validate:"required"`
	Message  string    `json:"message" validate:"required,min=1,max=2000"`
}

// SupportStuckFunds files a request for funds held in a bucket that can no
// longer be collected.
func SupportStuckFunds(svc support.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "support service unavailable"))
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload stuckFundsRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		request, err := svc.SubmitStuckFunds(r.Context(), actor, support.StuckFundsInput{
			BucketID: payload.BucketID,
			Message:  validators.SanitizeString(payload.Message, 2000),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, request)
	}
}

func SupportRequests(svc support.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "support service unavailable"))
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
			list = []support.RequestDTO{}
		}
		responses.WriteSuccess(w, list)
	}
}
