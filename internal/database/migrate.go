package database

import (
	"github.com/cminh91/dong-y-sub001/internal/database/models"
	"gorm.io/gorm"
)

// Models lists every table in dependency order.
func Models() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Category{},
		&models.Product{},
		&models.CartItem{},
		&models.AffiliateLink{},
		&models.Order{},
		&models.OrderItem{},
		&models.Commission{},
		&models.SystemSetting{},
		&models.Post{},
		&models.FAQ{},
	}
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
