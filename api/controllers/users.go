package controllers

import (
	"net/http"
	"strings"

	"github.com/bucketshare/bucketshare-backend/api/responses"
	"github.com/bucketshare/bucketshare-backend/api/validators"
	"github.com/bucketshare/bucketshare-backend/internal/users"
	pkgerrors "github.com/bucketshare/bucketshare-backend/pkg/errors"
	"github.com/bucketshare/bucketshare-backend/pkg/logger"
	"github.com/bucketshare/bucketshare-backend/pkg/types"
)

// UserProfile returns the caller's profile, creating it on first sight.
func UserProfile(svc users.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "user service unavailable"))
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		profile, err := svc.GetProfile(r.Context(), actor.UID, actor.Email)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, profile)
	}
}

// transaction_limit accepts a positive amount or an explicit null to clear it.
type userUpdateRequest struct {
	DisplayName      *string               `json:"display_name,omitempty" validate:"omitempty,min=1,max=80"`
	TransactionLimit types.NullableDecimal `json:"transaction_limit,omitempty"`
}

func (p userUpdateRequest) toInput() (users.UpdateProfileInput, error) {
	input := users.UpdateProfileInput{}
	if p.DisplayName != nil {
		name := strings.TrimSpace(*p.DisplayName)
		input.DisplayName = &name
	}
	if p.TransactionLimit.IsNull() {
		input.ClearTransactionLimit = true
	} else if p.TransactionLimit.Set {
		if !p.TransactionLimit.Value.IsPositive() {
			return input, pkgerrors.New(pkgerrors.CodeValidation, "validation failed").
				WithDetails(map[string]string{"transaction_limit": "must be greater than zero"})
		}
		input.TransactionLimit = p.TransactionLimit.Value
	}
	return input, nil
}

func UserUpdate(svc users.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "user service unavailable"))
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload userUpdateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := payload.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		profile, err := svc.UpdateProfile(r.Context(), actor.UID, actor.Email, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, profile)
	}
}

// UserFundingSetup starts bank linking and returns the client secret.
func UserFundingSetup(svc users.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "user service unavailable"))
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		setup, err := svc.StartFundingSetup(r.Context(), actor.UID, actor.Email)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, setup)
	}
}

type fundingFinalizeRequest struct {
	SetupIntentID string `json:"setup_intent_id" validate:"required,min=1,max=255"`
}

// UserFundingFinalize links the bank account once the client has confirmed
// the setup intent, without waiting for the webhook.
func UserFundingFinalize(svc users.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "user service unavailable"))
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload fundingFinalizeRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		profile, err := svc.FinalizeFundingSetup(r.Context(), actor.UID, actor.Email, strings.TrimSpace(payload.SetupIntentID))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, profile)
	}
}

func UserFundingRemove(svc users.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "user service unavailable"))
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		profile, err := svc.RemoveFunding(r.Context(), actor.UID, actor.Email)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, profile)
	}
}

// UserDelete removes the caller's profile and the buckets they own.
func UserDelete(svc users.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "user service unavailable"))
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.DeleteAccount(r.Context(), actor.UID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"uid": actor.UID, "deleted": true})
	}
}

func UserPayoutOnboard(svc users.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "user service unavailable"))
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		link, err := svc.StartPayoutOnboarding(r.Context(), actor.UID, actor.Email)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, link)
	}
}
