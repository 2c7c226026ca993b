package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	domain "github.com/roastline/api/internal/domain"
	"github.com/roastline/api/internal/platform/auth"
	"github.com/roastline/api/internal/services"
)

type stubSettingsService struct {
	getFn    func(ctx context.Context) (services.StoreSettings, error)
	updateFn func(ctx context.Context, cmd services.UpdateSettingsCommand) (services.StoreSettings, error)
}

func (s *stubSettingsService) GetSettings(ctx context.Context) (services.StoreSettings, error) {
	if s.getFn == nil {
		return services.StoreSettings{}, nil
	}
	return s.getFn(ctx)
}

func (s *stubSettingsService) UpdateSettings(ctx context.Context, cmd services.UpdateSettingsCommand) (services.StoreSettings, error) {
	if s.updateFn == nil {
		return services.StoreSettings{}, nil
	}
	return s.updateFn(ctx, cmd)
}

func sampleSettings() services.StoreSettings {
	return services.StoreSettings{
		OriginAddress:    "Jl. Nata Endah No.11B, Bandung",
		OriginCoordinate: domain.Coordinate{Lat: -6.974097, Lng: 107.597262},
		Rates: domain.ShippingRates{
			CargoPerKm:      2500,
			RegularPerKm:    4000,
			CargoMinKg:      10,
			WeightDivisorKg: 10,
		},
		Currency:      "IDR",
		LowStockLevel: 5,
		UpdatedAt:     time.Date(2025, 5, 1, 9, 30, 0, 0, time.UTC),
		UpdatedBy:     "admin-1",
	}
}

func TestGetSettingsReturnsStoreDocument(t *testing.T) {
	settings := &stubSettingsService{
		getFn: func(_ context.Context) (services.StoreSettings, error) {
			return sampleSettings(), nil
		},
	}
	h := NewAdminSettingsHandlers(nil, settings, nil)

	req := newAuthedRequest(http.MethodGet, "/settings", "", &auth.Identity{UserID: "admin-1", Role: auth.RoleAdmin})
	rec := httptest.NewRecorder()
	routerFor(h.Routes).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d (%s)", rec.Code, rec.Body.String())
	}

	var payload struct {
		Settings struct {
			OriginAddress string       `json:"origin_address"`
			Rates         ratesPayload `json:"rates"`
		} `json:"settings"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Settings.Rates.CargoPerKm != 2500 || payload.Settings.Rates.RegularPerKm != 4000 {
		t.Fatalf("unexpected rates: %+v", payload.Settings.Rates)
	}
}

func TestUpdateSettingsMergesPartialRates(t *testing.T) {
	var captured services.UpdateSettingsCommand
	settings := &stubSettingsService{
		getFn: func(_ context.Context) (services.StoreSettings, error) {
			return sampleSettings(), nil
		},
		updateFn: func(_ context.Context, cmd services.UpdateSettingsCommand) (services.StoreSettings, error) {
			captured = cmd
			return sampleSettings(), nil
		},
	}
	audit := &stubAuditService{}
	h := NewAdminSettingsHandlers(nil, settings, audit)

	body := `{"rates":{"regular_per_km":4500},"low_stock_level":8}`
	req := newAuthedRequest(http.MethodPut, "/settings", body, &auth.Identity{UserID: "admin-1", Role: auth.RoleAdmin})
	rec := httptest.NewRecorder()
	routerFor(h.Routes).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if captured.Rates == nil {
		t.Fatalf("expected rates patch to be forwarded")
	}
	if captured.Rates.RegularPerKm != 4500 {
		t.Fatalf("expected regular rate 4500, got %d", captured.Rates.RegularPerKm)
	}
	if captured.Rates.CargoPerKm != 2500 {
		t.Fatalf("expected cargo rate preserved at 2500, got %d", captured.Rates.CargoPerKm)
	}
	if captured.LowStockLevel == nil || *captured.LowStockLevel != 8 {
		t.Fatalf("expected low stock level 8, got %v", captured.LowStockLevel)
	}
	if captured.ActorID != "admin-1" {
		t.Fatalf("expected actor admin-1, got %q", captured.ActorID)
	}
	if len(audit.recorded) != 1 || audit.recorded[0].Action != "settings.update" {
		t.Fatalf("expected settings.update audit entry, got %+v", audit.recorded)
	}
}

func TestUpdateSettingsMapsInvalidInput(t *testing.T) {
	settings := &stubSettingsService{
		updateFn: func(_ context.Context, cmd services.UpdateSettingsCommand) (services.StoreSettings, error) {
			return services.StoreSettings{}, services.ErrSettingsInvalidInput
		},
	}
	h := NewAdminSettingsHandlers(nil, settings, nil)

	req := newAuthedRequest(http.MethodPut, "/settings", `{"currency":""}`, &auth.Identity{UserID: "admin-1", Role: auth.RoleAdmin})
	rec := httptest.NewRecorder()
	routerFor(h.Routes).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}
