package middleware

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/earnings-ledger/internal/audit"
	"github.com/angelmondragon/earnings-ledger/pkg/logger"
)

const actorHeader = "X-Actor-Id"

// Actor stores the calling admin's id (or "system") on the context so audit
// entries and logs attribute the change.
func Actor(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actorID := strings.TrimSpace(r.Header.Get(actorHeader))
			if actorID == "" {
				actorID = audit.SystemActor
			}
			ctx := audit.WithActor(r.Context(), actorID)
			if logg != nil {
				ctx = logg.WithActorID(ctx, actorID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
