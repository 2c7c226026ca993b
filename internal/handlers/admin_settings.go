package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/roastline/api/internal/domain"
	"github.com/roastline/api/internal/platform/auth"
	"github.com/roastline/api/internal/platform/httpx"
	"github.com/roastline/api/internal/services"
)

const maxSettingsBodySize = 32 * 1024

type updateSettingsRequest struct {
	OriginAddress    *string            `json:"origin_address"`
	OriginCoordinate *coordinatePayload `json:"origin_coordinate"`
	Rates            *struct {
		CargoPerKm      *int64   `json:"cargo_per_km"`
		RegularPerKm    *int64   `json:"regular_per_km"`
		CargoMinKg      *float64 `json:"cargo_min_kg"`
		WeightDivisorKg *float64 `json:"weight_divisor_kg"`
	} `json:"rates"`
	Currency      *string `json:"currency"`
	LowStockLevel *int    `json:"low_stock_level"`
}

// AdminSettingsHandlers exposes the store settings endpoints.
type AdminSettingsHandlers struct {
	authn    *auth.Authenticator
	settings services.SettingsService
	audit    services.AuditLogService
}

// NewAdminSettingsHandlers constructs settings handlers.
func NewAdminSettingsHandlers(authn *auth.Authenticator, settings services.SettingsService, audit services.AuditLogService) *AdminSettingsHandlers {
	return &AdminSettingsHandlers{authn: authn, settings: settings, audit: audit}
}

// Routes registers the admin settings endpoints.
func (h *AdminSettingsHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/settings", h.getSettings)
	r.Put("/settings", h.updateSettings)
}

func (h *AdminSettingsHandlers) getSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.settings == nil {
		httpx.WriteError(ctx, w, httpx.NewError("settings_service_unavailable", "settings service unavailable", http.StatusServiceUnavailable))
		return
	}
	if _, ok := requireIdentity(ctx, w); !ok {
		return
	}

	settings, err := h.settings.GetSettings(ctx)
	if err != nil {
		writeSettingsError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"settings": buildSettingsPayload(settings)})
}

func (h *AdminSettingsHandlers) updateSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.settings == nil {
		httpx.WriteError(ctx, w, httpx.NewError("settings_service_unavailable", "settings service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxSettingsBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req updateSettingsRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	cmd := services.UpdateSettingsCommand{
		Currency:      req.Currency,
		LowStockLevel: req.LowStockLevel,
		ActorID:       identity.UserID,
	}
	if req.OriginAddress != nil {
		trimmed := strings.TrimSpace(*req.OriginAddress)
		cmd.OriginAddress = &trimmed
	}
	if req.OriginCoordinate != nil {
		cmd.OriginCoordinate = &domain.Coordinate{
			Lat: req.OriginCoordinate.Lat,
			Lng: req.OriginCoordinate.Lng,
		}
	}
	if req.Rates != nil {
		// Partial rate updates start from the stored table so omitted
		// fields keep their current values.
		current, err := h.settings.GetSettings(ctx)
		if err != nil {
			writeSettingsError(ctx, w, err)
			return
		}
		rates := current.Rates
		if req.Rates.CargoPerKm != nil {
			rates.CargoPerKm = *req.Rates.CargoPerKm
		}
		if req.Rates.RegularPerKm != nil {
			rates.RegularPerKm = *req.Rates.RegularPerKm
		}
		if req.Rates.CargoMinKg != nil {
			rates.CargoMinKg = *req.Rates.CargoMinKg
		}
		if req.Rates.WeightDivisorKg != nil {
			rates.WeightDivisorKg = *req.Rates.WeightDivisorKg
		}
		cmd.Rates = &rates
	}

	settings, err := h.settings.UpdateSettings(ctx, cmd)
	if err != nil {
		writeSettingsError(ctx, w, err)
		return
	}

	recordAdminAudit(r, h.audit, identity, "settings.update", "settings/store", nil)
	writeJSONResponse(w, http.StatusOK, map[string]any{"settings": buildSettingsPayload(settings)})
}

type settingsPayload struct {
	OriginAddress    string            `json:"origin_address"`
	OriginCoordinate coordinatePayload `json:"origin_coordinate"`
	Rates            ratesPayload      `json:"rates"`
	Currency         string            `json:"currency"`
	LowStockLevel    int               `json:"low_stock_level"`
	UpdatedAt        string            `json:"updated_at,omitempty"`
	UpdatedBy        string            `json:"updated_by,omitempty"`
}

type ratesPayload struct {
	CargoPerKm      int64   `json:"cargo_per_km"`
	RegularPerKm    int64   `json:"regular_per_km"`
	CargoMinKg      float64 `json:"cargo_min_kg"`
	WeightDivisorKg float64 `json:"weight_divisor_kg"`
}

func buildSettingsPayload(settings services.StoreSettings) settingsPayload {
	return settingsPayload{
		OriginAddress: strings.TrimSpace(settings.OriginAddress),
		OriginCoordinate: coordinatePayload{
			Lat: settings.OriginCoordinate.Lat,
			Lng: settings.OriginCoordinate.Lng,
		},
		Rates: ratesPayload{
			CargoPerKm:      settings.Rates.CargoPerKm,
			RegularPerKm:    settings.Rates.RegularPerKm,
			CargoMinKg:      settings.Rates.CargoMinKg,
			WeightDivisorKg: settings.Rates.WeightDivisorKg,
		},
		Currency:      strings.ToUpper(strings.TrimSpace(settings.Currency)),
		LowStockLevel: settings.LowStockLevel,
		UpdatedAt:     formatTime(settings.UpdatedAt),
		UpdatedBy:     strings.TrimSpace(settings.UpdatedBy),
	}
}

func writeSettingsError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrSettingsInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("settings_error", "failed to process settings request", http.StatusInternalServerError))
	}
}
