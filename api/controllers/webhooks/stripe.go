package webhooks

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/bucketshare/bucketshare-backend/api/responses"
	pkgerrors "github.com/bucketshare/bucketshare-backend/pkg/errors"
	"github.com/bucketshare/bucketshare-backend/pkg/logger"
)

const maxEventBytes = 1 << 20

type StripeWebhookService interface {
	HandleEvent(ctx context.Context, event *stripe.Event) error
}

// EventGuard dedupes Stripe deliveries by event id.
type EventGuard interface {
	Claim(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

type SigningSecretProvider interface {
	SigningSecret() string
}

// StripeWebhook verifies a delivery, claims its event id and hands it to the
// settlement pipeline. Redeliveries of a claimed event are acknowledged
// without reprocessing; a failed event is released so Stripe's retry runs.
func StripeWebhook(svc StripeWebhookService, secrets SigningSecretProvider, guard EventGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil || secrets == nil || guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stripe webhooks not configured"))
			return
		}

		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxEventBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "event payload too large"))
				return
			}
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read event payload"))
			return
		}

		signature := r.Header.Get("Stripe-Signature")
		if signature == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "stripe signature missing"))
			return
		}
		event, err := webhook.ConstructEvent(payload, signature, secrets.SigningSecret())
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "stripe signature invalid"))
			return
		}

		ctx = logg.WithFields(ctx, map[string]any{
			"stripe_event_id":   event.ID,
			"stripe_event_type": string(event.Type),
		})

		claimed, err := guard.Claim(ctx, event.ID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim stripe event"))
			return
		}
		if !claimed {
			logg.Info(ctx, "stripe.event.duplicate")
			responses.WriteSuccess(w, map[string]any{"received": true, "duplicate": true})
			return
		}

		if err := svc.HandleEvent(ctx, &event); err != nil {
			if relErr := guard.Release(context.WithoutCancel(ctx), event.ID); relErr != nil {
				logg.Error(ctx, "stripe.event.release_failed", relErr)
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}

		logg.Info(ctx, "stripe.event.processed")
		responses.WriteSuccess(w, map[string]any{"received": true})
	}
}
