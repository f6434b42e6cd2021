package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/alikhafaji/mazadpay-backend/api/responses"
	"github.com/alikhafaji/mazadpay-backend/pkg/config"
	pkgerrors "github.com/alikhafaji/mazadpay-backend/pkg/errors"
	"github.com/alikhafaji/mazadpay-backend/pkg/logger"
)

const partnerKeyHeader = "X-API-Key"

// PartnerKey gates the delivery-partner logistics surface behind the static
// credential issued to the courier integration.
func PartnerKey(cfg config.PartnerConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.APIKey == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "partner credential not configured"))
				return
			}

			presented := strings.TrimSpace(r.Header.Get(partnerKeyHeader))
			if presented == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing api key"))
				return
			}
			if subtle.ConstantTimeCompare([]byte(presented), []byte(cfg.APIKey)) != 1 {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid api key"))
				return
			}

			ctx := r.Context()
			if logg != nil {
				ctx = logg.WithField(ctx, "actor_role", "partner")
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
