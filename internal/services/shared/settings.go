package shared

import (
	"encoding/json"
	"errors"

	"gorm.io/gorm"

	"github.com/cminh91/dong-y-sub001/internal/database/models"
)

// LoadSetting decodes the SystemSetting stored under key into dst.
// It returns false when the key does not exist.
func LoadSetting(db *gorm.DB, key string, dst interface{}) (bool, error) {
	var setting models.SystemSetting
	if err := db.Where(&models.SystemSetting{Key: key}).First(&setting).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	if len(setting.Value) == 0 || string(setting.Value) == "null" {
		return false, nil
	}
	if err := json.Unmarshal(setting.Value, dst); err != nil {
		return false, err
	}
	return true, nil
}
