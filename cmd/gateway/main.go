package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm/logger"

	"github.com/cminh91/dong-y-sub001/config"
	"github.com/cminh91/dong-y-sub001/internal/database"
	"github.com/cminh91/dong-y-sub001/internal/gateway"
	"github.com/cminh91/dong-y-sub001/internal/health"
	"github.com/cminh91/dong-y-sub001/internal/jobs"
	"github.com/cminh91/dong-y-sub001/internal/logging"
	affiliate "github.com/cminh91/dong-y-sub001/internal/services/affiliate/handler"
	cart "github.com/cminh91/dong-y-sub001/internal/services/cart/handler"
	catalog "github.com/cminh91/dong-y-sub001/internal/services/catalog/handler"
	commissions "github.com/cminh91/dong-y-sub001/internal/services/commissions/handler"
	content "github.com/cminh91/dong-y-sub001/internal/services/content/handler"
	orders "github.com/cminh91/dong-y-sub001/internal/services/orders/handler"
	users "github.com/cminh91/dong-y-sub001/internal/services/user/handler"
	"github.com/cminh91/dong-y-sub001/internal/storage"
	"github.com/cminh91/dong-y-sub001/internal/utils"
)

func main() {
	cfg := config.LoadConfig()

	if err := logging.InitLogger(cfg.Server.Production); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logging.Sync()
	lg := logging.Logger

	gin.SetMode(cfg.Server.Mode)

	level := logger.Warn
	if cfg.DB.LogQueries {
		level = logger.Info
	}
	db, err := database.NewConnection(cfg.DB.GetDSN(), database.PoolConfig{
		MaxOpenConns:    cfg.DB.MaxOpenConns,
		MaxIdleConns:    cfg.DB.MaxIdleConns,
		ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
	}, database.NewGormLogger(lg, level, cfg.DB.SlowThreshold))
	if err != nil {
		lg.Fatal("failed to connect to db", zap.Error(err))
	}

	redisClient, err := config.NewRedisClient(cfg.Redis)
	if err != nil {
		lg.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer redisClient.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tokens := utils.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	commissionHandler := commissions.NewCommissionHandler(db, redisClient, lg)
	orderHandler := orders.NewOrderHandler(db, redisClient, lg, commissionHandler, cfg.Checkout.PriceTolerance)
	checker := health.NewChecker(db, redisClient)

	var uploader storage.Uploader
	if cfg.Storage.Bucket != "" {
		s3, err := storage.NewS3Uploader(ctx, cfg.Storage.Bucket, cfg.Storage.Region, cfg.Storage.PublicBaseURL)
		if err != nil {
			lg.Fatal("failed to init s3 uploader", zap.Error(err))
		}
		uploader = s3
	} else {
		lg.Warn("S3_BUCKET not set, uploads disabled")
	}

	router, err := gateway.NewRouter(gateway.Services{
		Orders:      orderHandler,
		Commissions: commissionHandler,
		Affiliate:   affiliate.NewAffiliateHandler(db, redisClient, lg, commissionHandler),
		Catalog:     catalog.NewCatalogHandler(db, redisClient, lg),
		Cart:        cart.NewCartHandler(db, lg),
		Content:     content.NewContentHandler(db, redisClient, lg),
		Users:       users.NewUserHandler(db, redisClient, lg, tokens),
		Tokens:      tokens,
		Uploader:    uploader,
		Health:      checker,
	}, gateway.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		TrustedProxies: cfg.Server.TrustedProxies,
		GeneralRate:    cfg.RateLimit.General,
		SensitiveRate:  cfg.RateLimit.Sensitive,
		SecureCookies:  cfg.Server.Production,
		MaxUploadSize:  cfg.Storage.MaxUploadSize,
	}, lg)
	if err != nil {
		lg.Fatal("failed to build router", zap.Error(err))
	}

	healthServer := health.NewServer(checker, lg)
	lis, err := net.Listen("tcp", ":"+cfg.Server.GRPCPort)
	if err != nil {
		lg.Fatal("failed to listen", zap.String("port", cfg.Server.GRPCPort), zap.Error(err))
	}
	go healthServer.Run(ctx, 15*time.Second)
	go func() {
		lg.Info("grpc health listening", zap.String("port", cfg.Server.GRPCPort))
		if err := healthServer.Serve(lis); err != nil {
			lg.Error("grpc health server stopped", zap.Error(err))
		}
	}()

	var scheduler *jobs.Scheduler
	if cfg.Jobs.Enabled {
		scheduler, err = jobs.New(orderHandler, commissionHandler, jobs.Options{
			ExpireOrdersSpec:      cfg.Jobs.ExpireOrdersSpec,
			MatureCommissionsSpec: cfg.Jobs.MatureCommissionsSpec,
			UnpaidOrderTTL:        cfg.Checkout.UnpaidOrderTTL,
			CommissionHoldDays:    cfg.Checkout.CommissionHoldDays,
		}, lg)
		if err != nil {
			lg.Fatal("failed to schedule jobs", zap.Error(err))
		}
		scheduler.Start()
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		lg.Info("storefront listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal("http server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	lg.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Error("http shutdown", zap.Error(err))
	}
	if scheduler != nil {
		scheduler.Stop(shutdownCtx)
	}
	healthServer.Stop()
}
