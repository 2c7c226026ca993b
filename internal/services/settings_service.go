package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/roastline/api/internal/domain"
	"github.com/roastline/api/internal/repositories"
)

const (
	defaultOriginAddress   = "Jl. Nata Endah No.11B, Margahayu Tengah, Kabupaten Bandung, Jawa Barat 40228"
	defaultOriginLat       = -6.974097
	defaultOriginLng       = 107.597262
	defaultCargoPerKm      = 2500
	defaultRegularPerKm    = 4000
	defaultCargoMinKg      = 10
	defaultWeightDivisorKg = 10
	defaultCurrency        = "IDR"
	defaultLowStockLevel   = 10
)

var (
	// ErrSettingsInvalidInput signals the caller provided invalid settings data.
	ErrSettingsInvalidInput = errors.New("settings: invalid input")
)

// DefaultStoreSettings returns the settings used until the document is first saved.
func DefaultStoreSettings() StoreSettings {
	return StoreSettings{
		OriginAddress:    defaultOriginAddress,
		OriginCoordinate: domain.Coordinate{Lat: defaultOriginLat, Lng: defaultOriginLng},
		Rates: ShippingRates{
			CargoPerKm:      defaultCargoPerKm,
			RegularPerKm:    defaultRegularPerKm,
			CargoMinKg:      defaultCargoMinKg,
			WeightDivisorKg: defaultWeightDivisorKg,
		},
		Currency:      defaultCurrency,
		LowStockLevel: defaultLowStockLevel,
	}
}

// applySettingsDefaults backfills zero-valued fields from the defaults so a
// partially written document still prices shipments.
func applySettingsDefaults(settings StoreSettings) StoreSettings {
	defaults := DefaultStoreSettings()
	if strings.TrimSpace(settings.OriginAddress) == "" {
		settings.OriginAddress = defaults.OriginAddress
	}
	if settings.OriginCoordinate == (domain.Coordinate{}) {
		settings.OriginCoordinate = defaults.OriginCoordinate
	}
	if settings.Rates.CargoPerKm <= 0 {
		settings.Rates.CargoPerKm = defaults.Rates.CargoPerKm
	}
	if settings.Rates.RegularPerKm <= 0 {
		settings.Rates.RegularPerKm = defaults.Rates.RegularPerKm
	}
	if settings.Rates.CargoMinKg <= 0 {
		settings.Rates.CargoMinKg = defaults.Rates.CargoMinKg
	}
	if settings.Rates.WeightDivisorKg <= 0 {
		settings.Rates.WeightDivisorKg = defaults.Rates.WeightDivisorKg
	}
	if strings.TrimSpace(settings.Currency) == "" {
		settings.Currency = defaults.Currency
	}
	if settings.LowStockLevel <= 0 {
		settings.LowStockLevel = defaults.LowStockLevel
	}
	return settings
}

// SettingsServiceDeps bundles collaborators required to construct the settings service.
type SettingsServiceDeps struct {
	Settings repositories.SettingsRepository
	Clock    func() time.Time
}

type settingsService struct {
	settings repositories.SettingsRepository
	clock    func() time.Time
}

// NewSettingsService wires dependencies into a concrete SettingsService implementation.
func NewSettingsService(deps SettingsServiceDeps) (SettingsService, error) {
	if deps.Settings == nil {
		return nil, errors.New("settings service: settings repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	return &settingsService{
		settings: deps.Settings,
		clock: func() time.Time {
			return clock().UTC()
		},
	}, nil
}

func (s *settingsService) GetSettings(ctx context.Context) (StoreSettings, error) {
	settings, err := s.settings.Get(ctx)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return DefaultStoreSettings(), nil
		}
		return StoreSettings{}, err
	}
	return applySettingsDefaults(settings), nil
}

func (s *settingsService) UpdateSettings(ctx context.Context, cmd UpdateSettingsCommand) (StoreSettings, error) {
	current, err := s.GetSettings(ctx)
	if err != nil {
		return StoreSettings{}, err
	}

	if cmd.OriginAddress != nil {
		addr := strings.TrimSpace(*cmd.OriginAddress)
		if addr == "" {
			return StoreSettings{}, fmt.Errorf("%w: origin address cannot be empty", ErrSettingsInvalidInput)
		}
		current.OriginAddress = addr
	}
	if cmd.OriginCoordinate != nil {
		coord := *cmd.OriginCoordinate
		if coord.Lat < -90 || coord.Lat > 90 || coord.Lng < -180 || coord.Lng > 180 {
			return StoreSettings{}, fmt.Errorf("%w: origin coordinate out of range", ErrSettingsInvalidInput)
		}
		current.OriginCoordinate = coord
	}
	if cmd.Rates != nil {
		rates := *cmd.Rates
		if rates.CargoPerKm <= 0 || rates.RegularPerKm <= 0 {
			return StoreSettings{}, fmt.Errorf("%w: per-km rates must be positive", ErrSettingsInvalidInput)
		}
		if rates.CargoMinKg < 0 || rates.WeightDivisorKg <= 0 {
			return StoreSettings{}, fmt.Errorf("%w: invalid cargo thresholds", ErrSettingsInvalidInput)
		}
		current.Rates = rates
	}
	if cmd.Currency != nil {
		currency := strings.ToUpper(strings.TrimSpace(*cmd.Currency))
		if len(currency) != 3 {
			return StoreSettings{}, fmt.Errorf("%w: currency must be a 3-letter code", ErrSettingsInvalidInput)
		}
		current.Currency = currency
	}
	if cmd.LowStockLevel != nil {
		if *cmd.LowStockLevel < 0 {
			return StoreSettings{}, fmt.Errorf("%w: low stock level cannot be negative", ErrSettingsInvalidInput)
		}
		current.LowStockLevel = *cmd.LowStockLevel
	}

	current.UpdatedAt = s.clock()
	current.UpdatedBy = strings.TrimSpace(cmd.ActorID)

	saved, err := s.settings.Save(ctx, current)
	if err != nil {
		return StoreSettings{}, err
	}
	return applySettingsDefaults(saved), nil
}
