package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/DavidNaak/copytradepoly/internal/client/polymarket/clob"
	"github.com/DavidNaak/copytradepoly/internal/client/polymarket/dataapi"
	"github.com/DavidNaak/copytradepoly/internal/config"
	cronrunner "github.com/DavidNaak/copytradepoly/internal/cron"
	"github.com/DavidNaak/copytradepoly/internal/db"
	"github.com/DavidNaak/copytradepoly/internal/handler"
	"github.com/DavidNaak/copytradepoly/internal/logger"
	gormrepository "github.com/DavidNaak/copytradepoly/internal/repository/gorm"
	"github.com/DavidNaak/copytradepoly/internal/service"
)

func main() {
	cfgPath := os.Getenv("CT_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("CT_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)

	if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
		logger.Warn("failed to set timezone", zap.Error(err))
	}
	if err := db.AutoMigrate(dbConn); err != nil {
		logger.Fatal("auto-migrate failed", zap.Error(err))
	}

	feedHTTP := &http.Client{Timeout: cfg.DataAPI.Timeout}
	feed := dataapi.NewClient(feedHTTP, cfg.DataAPI.BaseURL, cfg.DataAPI.RequestsPerSec, cfg.DataAPI.Burst)
	clobHTTP := &http.Client{Timeout: cfg.Clob.Timeout}
	executor := clob.NewClient(clobHTTP, cfg.Clob.BaseURL, clob.Auth{
		APIKey:       cfg.Clob.APIKey,
		APISecret:    cfg.Clob.APISecret,
		Passphrase:   cfg.Clob.Passphrase,
		Address:      cfg.Clob.Address,
		SignRequests: cfg.Clob.SignRequests,
	})

	store := gormrepository.New(dbConn.Gorm)
	settingsSvc := &service.SystemSettingsService{Repo: store}
	if err := settingsSvc.EnsureDefaultSwitches(context.Background()); err != nil {
		logger.Warn("init default system switches failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	trader := &service.CopyTraderService{
		Repo:       store,
		Feed:       feed,
		Executor:   executor,
		Flags:      settingsSvc,
		Logger:     logger,
		Session:    cfg.Session,
		TradeLimit: cfg.DataAPI.TradeLimit,
	}
	if err := trader.Start(ctx); err != nil {
		logger.Fatal("copy trader start failed", zap.Error(err))
	}

	if cfg.Stream.Enabled {
		stream := &service.TradeStreamService{
			Trader: trader,
			Flags:  settingsSvc,
			Logger: logger,
			URL:    cfg.Stream.URL,
		}
		trader.Wake = stream.WakeChannel()
		go func() {
			if err := stream.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("trade stream stopped", zap.Error(err))
			}
		}()
	}

	traderDone := make(chan error, 1)
	go func() {
		traderDone <- trader.Run(ctx)
	}()

	snapshotSvc := &service.PortfolioSnapshotService{
		Repo:   store,
		Trader: trader,
		Flags:  settingsSvc,
		Logger: logger,
	}
	cronRunner := cronrunner.New(logger, ctx)
	if cfg.Cron.Enabled {
		if _, err := cronRunner.Add(cfg.Cron.PortfolioSnapshot, func(ctx context.Context) {
			if err := snapshotSvc.RunOnce(ctx); err != nil {
				logger.Warn("portfolio snapshot failed", zap.Error(err))
			}
		}); err != nil {
			logger.Warn("cron register portfolio snapshot failed", zap.Error(err))
		}
		if _, err := cronRunner.Add(cfg.Cron.SummaryLog, func(ctx context.Context) {
			sum, err := trader.Summary(ctx)
			if err != nil {
				logger.Warn("periodic summary failed", zap.Error(err))
				return
			}
			logger.Info("session summary",
				zap.Int("buys", sum.BuySuccesses),
				zap.Int("sells", sum.SellSuccesses),
				zap.Int("failures", sum.Failures),
				zap.String("net_deployed_usd", sum.NetDeployedUSD.String()),
				zap.String("realized_pnl_usd", sum.RealizedPnLUSD.String()),
				zap.String("remaining_usd", sum.RemainingBudgetUSD.String()))
		}); err != nil {
			logger.Warn("cron register summary log failed", zap.Error(err))
		}
		cronRunner.Start()
		defer cronRunner.Stop()
	}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())

	healthHandler := &handler.HealthHandler{DB: dbConn.Gorm}
	healthHandler.Register(engine)
	sessionHandler := &handler.SessionHandler{Repo: store, Trader: trader, Flags: settingsSvc}
	sessionHandler.Register(engine)

	srv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
		<-traderDone
	case err := <-traderDone:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("copy trader stopped", zap.Error(err))
		} else {
			logger.Info("copy trader finished")
		}
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
