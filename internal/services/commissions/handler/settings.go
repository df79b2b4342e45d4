package handler

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/cminh91/dong-y-sub001/internal/services/shared"
)

const AffiliateSettingsKey = "affiliate_settings"

type AffiliateSettings struct {
	Enabled        bool      `json:"enabled"`
	FirstOrderOnly bool      `json:"firstOrderOnly"`
	MaxLevels      int       `json:"maxLevels"`
	LevelRates     []float64 `json:"levelRates"`
	CookieDays     int       `json:"cookieDays"`
}

func DefaultAffiliateSettings() AffiliateSettings {
	return AffiliateSettings{
		Enabled:        true,
		FirstOrderOnly: true,
		MaxLevels:      2,
		LevelRates:     []float64{10, 3},
		CookieDays:     30,
	}
}

// Validate checks a settings document before it is stored.
func (s AffiliateSettings) Validate() error {
	if s.MaxLevels < 1 || s.MaxLevels > 5 {
		return fmt.Errorf("maxLevels must be between 1 and 5")
	}
	if len(s.LevelRates) < s.MaxLevels {
		return fmt.Errorf("levelRates must have at least %d entries", s.MaxLevels)
	}
	for i, r := range s.LevelRates {
		if r < 0 || r > 100 {
			return fmt.Errorf("levelRates[%d] must be between 0 and 100", i)
		}
	}
	if s.CookieDays < 1 {
		return fmt.Errorf("cookieDays must be positive")
	}
	return nil
}

// LoadSettings overlays the stored document on the defaults.
func LoadSettings(db *gorm.DB) (AffiliateSettings, error) {
	settings := DefaultAffiliateSettings()
	if _, err := shared.LoadSetting(db, AffiliateSettingsKey, &settings); err != nil {
		return DefaultAffiliateSettings(), err
	}
	return settings, nil
}
