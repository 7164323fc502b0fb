package controllers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/bucketshare/bucketshare-backend/api/responses"
	"github.com/bucketshare/bucketshare-backend/pkg/config"
	pkgerrors "github.com/bucketshare/bucketshare-backend/pkg/errors"
	"github.com/bucketshare/bucketshare-backend/pkg/logger"
)

const envHeader = "X-Bucketshare-Env"

// Pinger is satisfied by the database and redis clients.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings every dependency and reports 503 when any of them is down.
func HealthReady(cfg *config.Config, logg *logger.Logger, deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		checks := make(map[string]string, len(deps))
		var failed []string
		for name, dep := range deps {
			if dep == nil {
				continue
			}
			if err := dep.Ping(ctx); err != nil {
				checks[name] = "down"
				failed = append(failed, name)
				if logg != nil {
					logg.Warn(logg.WithField(r.Context(), "dependency", name), "readiness check failed: "+err.Error())
				}
				continue
			}
			checks[name] = "ok"
		}

		if len(failed) > 0 {
			sort.Strings(failed)
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.New(pkgerrors.CodeDependency, "dependencies unavailable").WithDetails(map[string]any{"failed": failed}))
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}
