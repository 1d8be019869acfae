package gateway

import (
	"log/slog"
	"net/http"

	"github.com/pquerna/otp/totp"
)

// AdminOTPHeader carries the current TOTP code for admin endpoints.
const AdminOTPHeader = "X-Admin-OTP"

// requireAdminOTP rejects requests whose X-Admin-OTP header is not a valid
// TOTP code for secret. With no secret configured the route is disabled.
func requireAdminOTP(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				writeJSON(w, http.StatusForbidden, map[string]string{"error": "candle import is disabled"})
				return
			}
			code := r.Header.Get(AdminOTPHeader)
			if code == "" || !totp.Validate(code, secret) {
				slog.Warn("admin otp rejected", "path", r.URL.Path, "remote", r.RemoteAddr)
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid or missing " + AdminOTPHeader})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
