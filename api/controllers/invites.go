package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/bucketshare/bucketshare-backend/api/responses"
	"github.com/bucketshare/bucketshare-backend/internal/buckets"
	"github.com/bucketshare/bucketshare-backend/internal/invites"
	pkgerrors "github.com/bucketshare/bucketshare-backend/pkg/errors"
	"github.com/bucketshare/bucketshare-backend/pkg/logger"
)

// InviteList returns the caller's pending bucket invites.
func InviteList(svc invites.Service, logg *logger.Logger) http.HandlerFunc {
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

		pending, err := svc.ListPending(r.Context(), actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if pending == nil {
			pending = []invites.InviteDTO{}
		}
		responses.WriteSuccess(w, pending)
	}
}

func InviteAccept(svc invites.Service, logg *logger.Logger) http.HandlerFunc {
	return inviteResponse(svc, logg, invites.Service.Accept)
}

func InviteDecline(svc invites.Service, logg *logger.Logger) http.HandlerFunc {
	return inviteResponse(svc, logg, invites.Service.Decline)
}

type inviteAction func(invites.Service, context.Context, buckets.Actor, uuid.UUID) (*invites.InviteDTO, error)

func inviteResponse(svc invites.Service, logg *logger.Logger, action inviteAction) http.HandlerFunc {
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
		id, err := uuidParam(r, "inviteId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		invite, err := action(svc, r.Context(), actor, id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, invite)
	}
}
