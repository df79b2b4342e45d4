package main

import (
	"log"

	"go.uber.org/zap"
	"gorm.io/gorm/logger"

	"github.com/cminh91/dong-y-sub001/config"
	"github.com/cminh91/dong-y-sub001/internal/database"
	"github.com/cminh91/dong-y-sub001/internal/logging"
)

func main() {
	cfg := config.LoadConfig()
	if err := logging.InitLogger(cfg.Server.Production); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logging.Sync()

	db, err := database.NewConnection(cfg.DB.GetDSN(), database.DefaultPool,
		database.NewGormLogger(logging.Logger, logger.Info, cfg.DB.SlowThreshold))
	if err != nil {
		logging.Logger.Fatal("failed to connect to db", zap.Error(err))
	}

	if err := database.Migrate(db); err != nil {
		logging.Logger.Fatal("migration failed", zap.Error(err))
	}
	logging.Logger.Info("migration complete", zap.Int("tables", len(database.Models())))
}
