package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/roastline/api/internal/domain"
)

func newTestSettingsService(t *testing.T, repo *stubSettingsRepo) SettingsService {
	t.Helper()
	svc, err := NewSettingsService(SettingsServiceDeps{
		Settings: repo,
		Clock:    func() time.Time { return time.Date(2025, 5, 1, 9, 30, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("unexpected error constructing service: %v", err)
	}
	return svc
}

func TestSettingsServiceGetFallsBackToDefaults(t *testing.T) {
	svc := newTestSettingsService(t, &stubSettingsRepo{})

	settings, err := svc.GetSettings(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.OriginCoordinate.Lat != -6.974097 || settings.OriginCoordinate.Lng != 107.597262 {
		t.Fatalf("unexpected default origin %+v", settings.OriginCoordinate)
	}
	if settings.Rates.CargoPerKm != 2500 || settings.Rates.RegularPerKm != 4000 {
		t.Fatalf("unexpected default rates %+v", settings.Rates)
	}
	if settings.Rates.CargoMinKg != 10 || settings.LowStockLevel != 10 {
		t.Fatalf("unexpected default thresholds %+v", settings)
	}
	if settings.Currency != "IDR" {
		t.Fatalf("expected IDR, got %q", settings.Currency)
	}
}

func TestSettingsServiceGetBackfillsPartialDocument(t *testing.T) {
	repo := &stubSettingsRepo{
		getFn: func(context.Context) (domain.StoreSettings, error) {
			return domain.StoreSettings{
				OriginAddress: "Jl. Custom No.1",
				Rates:         domain.ShippingRates{CargoPerKm: 3000},
			}, nil
		},
	}

	svc := newTestSettingsService(t, repo)

	settings, err := svc.GetSettings(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.OriginAddress != "Jl. Custom No.1" {
		t.Fatalf("stored address must win, got %q", settings.OriginAddress)
	}
	if settings.Rates.CargoPerKm != 3000 {
		t.Fatalf("stored rate must win, got %d", settings.Rates.CargoPerKm)
	}
	if settings.Rates.RegularPerKm != 4000 || settings.Rates.WeightDivisorKg != 10 {
		t.Fatalf("missing fields must backfill, got %+v", settings.Rates)
	}
}

func TestSettingsServiceUpdatePatchesFields(t *testing.T) {
	var saved domain.StoreSettings
	repo := &stubSettingsRepo{
		saveFn: func(_ context.Context, settings domain.StoreSettings) (domain.StoreSettings, error) {
			saved = settings
			return settings, nil
		},
	}

	svc := newTestSettingsService(t, repo)

	currency := "usd"
	lowStock := 5
	settings, err := svc.UpdateSettings(context.Background(), UpdateSettingsCommand{
		Currency:      &currency,
		LowStockLevel: &lowStock,
		ActorID:       "admin-1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.Currency != "USD" {
		t.Fatalf("expected currency upper-cased, got %q", settings.Currency)
	}
	if settings.LowStockLevel != 5 {
		t.Fatalf("expected low stock 5, got %d", settings.LowStockLevel)
	}
	if saved.UpdatedBy != "admin-1" || saved.UpdatedAt.IsZero() {
		t.Fatalf("expected audit fields stamped, got %+v", saved)
	}
	if saved.Rates.CargoPerKm != 2500 {
		t.Fatalf("untouched fields must keep defaults, got %+v", saved.Rates)
	}
}

func TestSettingsServiceUpdateValidation(t *testing.T) {
	svc := newTestSettingsService(t, &stubSettingsRepo{})
	ctx := context.Background()

	empty := "  "
	if _, err := svc.UpdateSettings(ctx, UpdateSettingsCommand{OriginAddress: &empty}); !errors.Is(err, ErrSettingsInvalidInput) {
		t.Fatalf("expected error for empty address, got %v", err)
	}

	badCoord := domain.Coordinate{Lat: 95, Lng: 10}
	if _, err := svc.UpdateSettings(ctx, UpdateSettingsCommand{OriginCoordinate: &badCoord}); !errors.Is(err, ErrSettingsInvalidInput) {
		t.Fatalf("expected error for out-of-range coordinate, got %v", err)
	}

	badRates := domain.ShippingRates{CargoPerKm: -1, RegularPerKm: 4000, CargoMinKg: 10, WeightDivisorKg: 10}
	if _, err := svc.UpdateSettings(ctx, UpdateSettingsCommand{Rates: &badRates}); !errors.Is(err, ErrSettingsInvalidInput) {
		t.Fatalf("expected error for negative rate, got %v", err)
	}

	badCurrency := "RUPIAH"
	if _, err := svc.UpdateSettings(ctx, UpdateSettingsCommand{Currency: &badCurrency}); !errors.Is(err, ErrSettingsInvalidInput) {
		t.Fatalf("expected error for bad currency, got %v", err)
	}

	negative := -1
	if _, err := svc.UpdateSettings(ctx, UpdateSettingsCommand{LowStockLevel: &negative}); !errors.Is(err, ErrSettingsInvalidInput) {
		t.Fatalf("expected error for negative low stock level, got %v", err)
	}
}
