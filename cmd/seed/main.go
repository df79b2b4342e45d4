package main

import (
	"context"
	"log"
	"os"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm/logger"

	"github.com/cminh91/dong-y-sub001/config"
	"github.com/cminh91/dong-y-sub001/internal/database"
	"github.com/cminh91/dong-y-sub001/internal/logging"
	"github.com/cminh91/dong-y-sub001/internal/seed"
	content "github.com/cminh91/dong-y-sub001/internal/services/content/handler"
	users "github.com/cminh91/dong-y-sub001/internal/services/user/handler"
	"github.com/cminh91/dong-y-sub001/internal/utils"
)

func main() {
	cfg := config.LoadConfig()
	if err := logging.InitLogger(cfg.Server.Production); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logging.Sync()
	lg := logging.Logger

	db, err := database.NewConnection(cfg.DB.GetDSN(), database.DefaultPool,
		database.NewGormLogger(lg, logger.Warn, cfg.DB.SlowThreshold))
	if err != nil {
		lg.Fatal("failed to connect to db", zap.Error(err))
	}
	if err := database.Migrate(db); err != nil {
		lg.Fatal("migration failed", zap.Error(err))
	}

	redisClient, err := config.NewRedisClient(cfg.Redis)
	if err != nil {
		lg.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer redisClient.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	n, err := seed.Settings(ctx, content.NewContentHandler(db, redisClient, lg), lg)
	if err != nil {
		lg.Fatal("failed to seed settings", zap.Error(err))
	}
	lg.Info("settings seeded", zap.Int("created", n))

	if _, err := seed.Catalog(ctx, db, lg); err != nil {
		lg.Fatal("failed to seed catalog", zap.Error(err))
	}

	email, password := os.Getenv("SEED_ADMIN_EMAIL"), os.Getenv("SEED_ADMIN_PASSWORD")
	if email == "" || password == "" {
		lg.Warn("SEED_ADMIN_EMAIL or SEED_ADMIN_PASSWORD not set, skipping admin")
		return
	}
	uh := users.NewUserHandler(db, redisClient, lg, utils.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL))
	if _, err := seed.EnsureAdmin(ctx, db, uh, seed.Admin{Email: email, Password: password, FullName: "Quản trị viên"}, lg); err != nil {
		lg.Fatal("failed to seed admin", zap.Error(err))
	}
}
