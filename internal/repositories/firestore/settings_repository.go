package firestore

import (
	"context"
	"errors"
	"time"

	domain "github.com/roastline/api/internal/domain"
	pfirestore "github.com/roastline/api/internal/platform/firestore"
)

const (
	settingsCollection = "settings"
	storeSettingsDocID = "store"
)

// SettingsRepository stores the singleton store settings document.
type SettingsRepository struct {
	settings *pfirestore.Collection[settingsDocument]
}

func NewSettingsRepository(provider *pfirestore.Provider) (*SettingsRepository, error) {
	if provider == nil {
		return nil, errors.New("settings repository requires firestore provider")
	}
	return &SettingsRepository{
		settings: pfirestore.NewCollection[settingsDocument](provider, settingsCollection, nil, nil),
	}, nil
}

func (r *SettingsRepository) Get(ctx context.Context) (domain.StoreSettings, error) {
	if r == nil || r.settings == nil {
		return domain.StoreSettings{}, errors.New("settings repository not initialised")
	}

	doc, err := r.settings.Get(ctx, storeSettingsDocID)
	if err != nil {
		return domain.StoreSettings{}, err
	}
	return doc.Data.toDomain(), nil
}

func (r *SettingsRepository) Save(ctx context.Context, settings domain.StoreSettings) (domain.StoreSettings, error) {
	if r == nil || r.settings == nil {
		return domain.StoreSettings{}, errors.New("settings repository not initialised")
	}

	if _, err := r.settings.Set(ctx, storeSettingsDocID, newSettingsDocument(settings)); err != nil {
		return domain.StoreSettings{}, err
	}
	return settings, nil
}

type settingsDocument struct {
	OriginAddress    string             `firestore:"originAddress"`
	OriginCoordinate coordinateDocument `firestore:"originCoordinate"`
	CargoPerKm       int64              `firestore:"cargoPerKm"`
	RegularPerKm     int64              `firestore:"regularPerKm"`
	CargoMinKg       float64            `firestore:"cargoMinKg"`
	WeightDivisorKg  float64            `firestore:"weightDivisorKg"`
	Currency         string             `firestore:"currency"`
	LowStockLevel    int                `firestore:"lowStockLevel"`
	UpdatedAt        time.Time          `firestore:"updatedAt"`
	UpdatedBy        string             `firestore:"updatedBy,omitempty"`
}

func newSettingsDocument(settings domain.StoreSettings) settingsDocument {
	return settingsDocument{
		OriginAddress: settings.OriginAddress,
		OriginCoordinate: coordinateDocument{
			Lat: settings.OriginCoordinate.Lat,
			Lng: settings.OriginCoordinate.Lng,
		},
		CargoPerKm:      settings.Rates.CargoPerKm,
		RegularPerKm:    settings.Rates.RegularPerKm,
		CargoMinKg:      settings.Rates.CargoMinKg,
		WeightDivisorKg: settings.Rates.WeightDivisorKg,
		Currency:        settings.Currency,
		LowStockLevel:   settings.LowStockLevel,
		UpdatedAt:       settings.UpdatedAt.UTC(),
		UpdatedBy:       settings.UpdatedBy,
	}
}

func (d settingsDocument) toDomain() domain.StoreSettings {
	return domain.StoreSettings{
		OriginAddress: d.OriginAddress,
		OriginCoordinate: domain.Coordinate{
			Lat: d.OriginCoordinate.Lat,
			Lng: d.OriginCoordinate.Lng,
		},
		Rates: domain.ShippingRates{
			CargoPerKm:      d.CargoPerKm,
			RegularPerKm:    d.RegularPerKm,
			CargoMinKg:      d.CargoMinKg,
			WeightDivisorKg: d.WeightDivisorKg,
		},
		Currency:      d.Currency,
		LowStockLevel: d.LowStockLevel,
		UpdatedAt:     d.UpdatedAt,
		UpdatedBy:     d.UpdatedBy,
	}
}
