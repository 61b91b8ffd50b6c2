// Package deployment gates the HTTP surface by deployment mode.
//
// In local mode the service runs next to the user's data and may start
// reconstructions, so it only answers loopback clients. In deployment mode it
// sits behind an ingress that does access control, and the endpoints that
// touch the host filesystem are switched off.
package deployment

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
)

// Mode is the deployment mode.
type Mode string

// Modes
const (
	Local      Mode = "local"
	Deployment Mode = "deployment"
)

// ParseMode returns the mode named by s, or Local for anything unrecognised.
func ParseMode(s string) Mode {
	if Mode(s) == Deployment {
		return Deployment
	}
	return Local
}

// RestrictAccess rejects non-loopback clients in local mode unless
// allowExternal is set.
func RestrictAccess(mode Mode, allowExternal bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if mode == Deployment || allowExternal {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !isLoopback(r.RemoteAddr) {
				slog.WarnContext(r.Context(), "Rejected external client in local mode", "remoteAddr", r.RemoteAddr)
				writeJSON(w, http.StatusUnauthorized, map[string]string{
					"reason": "External access is restricted in local deployment mode",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Restrict makes an endpoint available only in the modes allowed.
func Restrict(mode Mode, allowLocal, allowDeployment bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if (mode == Local && allowLocal) || (mode == Deployment && allowDeployment) {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusForbidden, map[string]string{
				"error": "This endpoint is not available in " + string(mode) + " mode",
			})
		})
	}
}

func isLoopback(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
