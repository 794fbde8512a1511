package server

import (
	"net/http"
	"strings"
)

// LookupHTTP defines the surface the router needs to serve the host endpoints.
type LookupHTTP interface {
	ServeLookup(http.ResponseWriter, *http.Request)
	ServeValidate(http.ResponseWriter, *http.Request)
	ServeHealth(http.ResponseWriter, *http.Request)
	WriteError(http.ResponseWriter, int, string)
}

// NewHandler wires URL dispatch for the host endpoints. metrics may be nil, in
// which case /metrics is not served.
func NewHandler(api LookupHTTP, metrics http.Handler) http.Handler {
	if api == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "lookup service unavailable", http.StatusServiceUnavailable)
		})
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route, ok := parseRoute(r.URL.Path)
		if !ok {
			http.NotFound(w, r)
			return
		}

		switch route {
		case "lookup":
			if !allowMethod(api, w, r, http.MethodPost) {
				return
			}
			api.ServeLookup(w, r)
		case "validate":
			if !allowMethod(api, w, r, http.MethodPost) {
				return
			}
			api.ServeValidate(w, r)
		case "healthz":
			if !allowMethod(api, w, r, http.MethodGet, http.MethodHead) {
				return
			}
			api.ServeHealth(w, r)
		case "metrics":
			if metrics == nil {
				http.NotFound(w, r)
				return
			}
			metrics.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

func allowMethod(api LookupHTTP, w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	w.Header().Set("Allow", strings.Join(methods, ", "))
	api.WriteError(w, http.StatusMethodNotAllowed, "method "+r.Method+" not allowed")
	return false
}

func parseRoute(path string) (string, bool) {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" || strings.Contains(trimmed, "/") {
		return "", false
	}
	switch route := strings.ToLower(trimmed); route {
	case "lookup", "validate", "metrics":
		return route, true
	case "health", "healthz":
		return "healthz", true
	}
	return "", false
}
