package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/vitalchain/vitalchain-api/api/swagger"
	"github.com/vitalchain/vitalchain-api/internal/envelope"
	"github.com/vitalchain/vitalchain-api/internal/handler"
	"github.com/vitalchain/vitalchain-api/internal/ipfs"
	"github.com/vitalchain/vitalchain-api/internal/ledger"
	"github.com/vitalchain/vitalchain-api/internal/middleware"
	"github.com/vitalchain/vitalchain-api/internal/records"
	"github.com/vitalchain/vitalchain-api/internal/repository"
	"github.com/vitalchain/vitalchain-api/internal/service"
	"github.com/vitalchain/vitalchain-api/pkg/cache"
	"github.com/vitalchain/vitalchain-api/pkg/config"
	"github.com/vitalchain/vitalchain-api/pkg/database"
	appErrors "github.com/vitalchain/vitalchain-api/pkg/errors"
	"github.com/vitalchain/vitalchain-api/pkg/export"
	"github.com/vitalchain/vitalchain-api/pkg/jobs"
	"github.com/vitalchain/vitalchain-api/pkg/logger"
	corsmiddleware "github.com/vitalchain/vitalchain-api/pkg/middleware/cors"
	reqidmiddleware "github.com/vitalchain/vitalchain-api/pkg/middleware/requestid"
	"github.com/vitalchain/vitalchain-api/pkg/response"
)

// @title VitalChain API
// @version 1.0.0
// @description Health record anchoring and course badge service
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, running without cache", "error", err)
		redisClient = nil
	}

	masterKey, err := hex.DecodeString(cfg.Crypto.MasterKeyHex)
	if err != nil {
		logr.Sugar().Fatalw("CRYPTO_MASTER_KEY is not valid hex", "error", err)
	}
	codec, err := envelope.NewCodec(masterKey, cfg.Crypto.KeyID)
	if err != nil {
		logr.Sugar().Fatalw("failed to build envelope codec", "error", err)
	}

	hederaClient, err := ledger.NewHederaClient(cfg.Hedera)
	if err != nil {
		logr.Sugar().Fatalw("failed to configure hedera client", "error", err)
	}
	blobStore := ipfs.NewClient(cfg.IPFS)

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	recordRepo := repository.NewRecordRepository(db)
	badgeRepo := repository.NewBadgeRepository(db)
	userRepo := repository.NewUserRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		TokenSecret: cfg.JWT.Secret,
		TokenExpiry: cfg.JWT.Expiration,
		Issuer:      "vitalchain-api",
	})
	userSvc := service.NewUserService(userRepo, hederaClient, validate, logr)
	courseSvc := service.NewCourseService(courseRepo, validate, logr)

	splitter := records.NewSplitter(cfg.Records.MaxContentBytes)
	recordSvc := service.NewRecordService(
		recordRepo, userRepo, cacheRepo, blobStore, hederaClient, codec, splitter,
		metricsSvc, validate, logr,
		service.RecordServiceConfig{
			AnchorTopicID:  cfg.Hedera.AnchorTopicID,
			PublicCacheTTL: cfg.Records.PublicCacheTTL,
		})

	badgeCollectionID := cfg.Hedera.BadgeTokenID
	if badgeCollectionID == "" {
		badgeCollectionID, err = hederaClient.CreateCollection(context.Background(),
			cfg.Badges.Issuer+" Badges", cfg.Badges.Symbol)
		if err != nil {
			logr.Sugar().Fatalw("failed to create badge collection", "error", err)
		}
		logr.Sugar().Infow("created badge collection",
			"token_id", badgeCollectionID, "symbol", cfg.Badges.Symbol)
	}

	badgeSvc := service.NewBadgeService(
		badgeRepo, courseRepo, userRepo, hederaClient,
		export.NewCertificateRenderer(), metricsSvc, validate, logr,
		service.BadgeServiceConfig{
			CollectionID:     badgeCollectionID,
			MetadataMaxBytes: cfg.Badges.MetadataMaxBytes,
			Issuer:           cfg.Badges.Issuer,
		})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reanchorQueue := jobs.NewQueue("reanchor", recordSvc.HandleReanchorJob, jobs.QueueConfig{
		Workers:    cfg.Records.AnchorWorkers,
		MaxRetries: cfg.Records.AnchorMaxRetries,
		RetryDelay: cfg.Records.AnchorRetryDelay,
		Logger:     logr,
	})
	reanchorQueue.Start(ctx)
	defer reanchorQueue.Stop()
	recordSvc.SetReanchorQueue(reanchorQueue)

	recordHandler := handler.NewRecordHandler(recordSvc)
	badgeHandler := handler.NewBadgeHandler(badgeSvc)
	courseHandler := handler.NewCourseHandler(courseSvc)
	userHandler := handler.NewUserHandler(userSvc, authSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, http.StatusServiceUnavailable, "database unavailable"))
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	{
		api.POST("/auth/register", userHandler.Register)
		api.POST("/auth/login", userHandler.Login)

		api.POST("/records", recordHandler.Submit)
		api.GET("/records/:documentId", recordHandler.GetPublic)

		api.GET("/courses", courseHandler.List)
		api.GET("/courses/:id", courseHandler.Get)

		api.GET("/badges/transaction/:transactionId", badgeHandler.GetByTransaction)
		api.GET("/badges/transaction/:transactionId/certificate", badgeHandler.Certificate)
		api.GET("/badges/verify/:transactionId", badgeHandler.Verify)
	}

	protected := api.Group("")
	protected.Use(middleware.JWT(authSvc))
	{
		protected.GET("/records/:documentId/private", recordHandler.GetPrivate)
		protected.DELETE("/records/:documentId", recordHandler.Archive)
		protected.GET("/subjects/:subjectRef/records", recordHandler.ListBySubject)

		protected.POST("/courses", courseHandler.Create)
		protected.POST("/courses/:id/complete", courseHandler.Complete)

		protected.POST("/badges/mint", badgeHandler.Mint)
		protected.GET("/badges", badgeHandler.ListMine)
		protected.POST("/badges/:badgeId/claim", badgeHandler.Claim)

		protected.GET("/users/me", userHandler.Profile)
		protected.PUT("/users/me", userHandler.UpdateProfile)
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("server shutdown failed", "error", err)
	}
}
