package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/l0p7/emailrep/internal/config"
	"github.com/l0p7/emailrep/internal/entity"
	"github.com/l0p7/emailrep/internal/lookup"
	"github.com/l0p7/emailrep/internal/quota"
	"github.com/l0p7/emailrep/internal/reputation"
)

const maxRequestBytes = 1 << 20

// Lookuper is the slice of the lookup service the API serves.
type Lookuper interface {
	Lookup(ctx context.Context, ids []entity.Identifier, opts config.LookupOptions) (lookup.BatchResult, error)
	ValidateConfig(opts config.LookupOptions) []config.FieldError
}

// API adapts the lookup service to HTTP. Defaults supplies the configured
// options that request overrides are merged onto; it is read per request so
// configuration reloads take effect without a restart.
type API struct {
	Service  Lookuper
	Quota    quota.Store
	Defaults func() config.LookupOptions
	Logger   *slog.Logger
}

func (a *API) logger() *slog.Logger {
	if a.Logger == nil {
		return slog.Default()
	}
	return a.Logger
}

func (a *API) defaults() config.LookupOptions {
	if a.Defaults == nil {
		return config.LookupOptions{}
	}
	return a.Defaults()
}

// ServeLookup runs one batch.
func (a *API) ServeLookup(w http.ResponseWriter, r *http.Request) {
	var req lookupRequest
	if err := decodeBody(r, &req); err != nil {
		a.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if fields := validateRequest(&req); len(fields) > 0 {
		a.writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "invalid lookup request",
			"fields": fields,
		})
		return
	}
	ids := make([]entity.Identifier, 0, len(req.Entities))
	for i, e := range req.Entities {
		kind, err := entity.ParseKind(e.Type)
		if err != nil {
			a.WriteError(w, http.StatusBadRequest, fmt.Sprintf("entities[%d]: %v", i, err))
			return
		}
		ids = append(ids, entity.Identifier{Kind: kind, Value: e.Value})
	}

	opts := a.defaults().Merge(req.Options)
	result, err := a.Service.Lookup(r.Context(), ids, opts)
	if err != nil {
		a.writeLookupError(w, err)
		return
	}

	payload := map[string]any{"results": result.Entries}
	if counters, ok := result.RateLimit(); ok {
		payload["rateLimited"] = counters
	}
	a.writeJSON(w, http.StatusOK, payload)
}

func (a *API) writeLookupError(w http.ResponseWriter, err error) {
	var cfgErr *config.ConfigurationError
	if errors.As(err, &cfgErr) {
		a.writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":  "invalid lookup options",
			"fields": cfgErr.Fields,
		})
		return
	}
	var batchErr *lookup.BatchError
	if errors.As(err, &batchErr) {
		status := http.StatusBadGateway
		payload := map[string]any{
			"error":      batchErr.Error(),
			"identifier": batchErr.Identifier.Value,
		}
		var limitErr *reputation.RateLimitError
		if errors.As(err, &limitErr) {
			status = http.StatusTooManyRequests
			payload["rateLimited"] = limitErr.Counters
		}
		var upstream *reputation.UpstreamError
		if errors.As(err, &upstream) {
			payload["httpStatus"] = upstream.Status
		}
		a.writeJSON(w, status, payload)
		return
	}
	a.logger().Error("lookup failed", slog.Any("error", err))
	a.WriteError(w, http.StatusInternalServerError, "lookup failed")
}

// ServeValidate reports field errors for candidate options.
func (a *API) ServeValidate(w http.ResponseWriter, r *http.Request) {
	var opts config.LookupOptions
	if err := decodeBody(r, &opts); err != nil {
		a.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	fields := a.Service.ValidateConfig(opts)
	if fields == nil {
		fields = []config.FieldError{}
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"errors": fields})
}

// ServeHealth reports liveness and the latest observed quota.
func (a *API) ServeHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"status":     "ok",
		"observedAt": time.Now().UTC(),
	}
	if a.Quota != nil {
		snap, ok, err := a.Quota.Latest(r.Context())
		switch {
		case err != nil:
			a.logger().Error("quota snapshot query failed", slog.Any("error", err))
			status["status"] = "degraded"
		case ok:
			status["quota"] = snap
		}
	}
	a.writeJSON(w, http.StatusOK, status)
}

// WriteError renders a JSON error body.
func (a *API) WriteError(w http.ResponseWriter, status int, message string) {
	if status <= 0 {
		status = http.StatusInternalServerError
	}
	a.writeJSON(w, status, map[string]any{"error": message})
}

func (a *API) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		a.logger().Error("response encode failed", slog.Any("error", err))
	}
}

func decodeBody(r *http.Request, dst any) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes))
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body required")
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
