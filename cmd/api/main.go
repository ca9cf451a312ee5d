package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-results-api/internal/config"
	"github.com/noah-isme/gema-results-api/internal/database"
	"github.com/noah-isme/gema-results-api/internal/handler"
	"github.com/noah-isme/gema-results-api/internal/middleware"
	"github.com/noah-isme/gema-results-api/internal/observability"
	"github.com/noah-isme/gema-results-api/internal/repository"
	"github.com/noah-isme/gema-results-api/internal/router"
	"github.com/noah-isme/gema-results-api/internal/service"
	cloud "github.com/noah-isme/gema-results-api/pkg/cloudinary"
	"github.com/noah-isme/gema-results-api/pkg/pdf"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.AppName).Logger()
	if cfg.AppEnv == "development" {
		logger = logger.Level(zerolog.DebugLevel)
	} else {
		logger = logger.Level(zerolog.InfoLevel)
	}

	observability.RegisterMetrics()

	db, err := database.ConnectPostgres(cfg.DatabaseURL, database.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := database.Migrate(db); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	redisClient, err := database.ConnectRedis(context.Background(), cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName)
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer natsConn.Close()
	}

	var uploader service.ReportUploader
	if cfg.CloudinaryCloudName != "" {
		store, err := cloud.New(cloud.Config{
			CloudName: cfg.CloudinaryCloudName,
			APIKey:    cfg.CloudinaryAPIKey,
			APISecret: cfg.CloudinaryAPISecret,
			Folder:    cfg.CloudinaryUploadFolder,
		}, logger)
		if err != nil {
			log.Fatalf("failed to create cloudinary client: %v", err)
		}
		uploader = store
	} else {
		logger.Info().Str("dir", cfg.PDFOutputDir).Msg("cloudinary not configured, serving reports from local disk")
	}

	if err := os.MkdirAll(cfg.PDFOutputDir, 0o755); err != nil {
		log.Fatalf("failed to create pdf output dir: %v", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	attemptRepo := repository.NewAttemptRepository(db)
	resultRepo := repository.NewResultRepository(db)
	stateRepo := repository.NewEditStateRepository(db)
	jobRepo := repository.NewPDFJobRepository(db)

	viewCache := service.NewViewCache(redisClient, cfg.ViewCacheTTL, logger)
	activityService := service.NewActivityService(repository.NewActivityLogRepository(db), logger)
	lockService := service.NewEditLockService(stateRepo, resultRepo, viewCache, activityService, validate, logger)
	resultService := service.NewResultService(resultRepo, attemptRepo, stateRepo, viewCache, logger)
	attemptService := service.NewAttemptService(attemptRepo, resultRepo, lockService, viewCache, activityService, validate, logger)
	scoreService := service.NewScoreService(resultRepo, attemptRepo, viewCache, validate, logger)
	access := service.NewEnrollmentAccess(resultRepo)
	wrongNoteService := service.NewWrongNoteService(repository.NewWrongNoteRepository(db), validate, logger)

	gradingEvents, err := service.NewGradingEventService(attemptRepo, resultRepo, stateRepo, lockService, viewCache, activityService, logger)
	if err != nil {
		log.Fatalf("failed to build grading event service: %v", err)
	}

	worker := service.NewPDFWorker(jobRepo, resultRepo, wrongNoteService, pdf.NewRenderer(cfg.AppName, pdf.WithUTF8Font(cfg.PDFFontPath)), uploader, service.PDFWorkerConfig{
		Workers:   cfg.PDFWorkers,
		OutputDir: cfg.PDFOutputDir,
	}, logger)

	var queue service.JobQueue = worker
	if natsConn != nil {
		queue = service.NewNATSJobQueue(natsConn, cfg.PDFJobSubject)
	}
	pdfJobService := service.NewPDFJobService(jobRepo, resultRepo, queue, validate, "", logger)

	sweeper, err := service.NewPDFJobSweeper(jobRepo, cfg.PDFSweepSchedule, cfg.PDFStaleAfter, logger)
	if err != nil {
		log.Fatalf("failed to build pdf job sweeper: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go worker.Run(ctx)
	sweeper.Start()

	if natsConn != nil {
		if err := worker.ConsumeNATS(ctx, natsConn, cfg.PDFJobSubject); err != nil {
			log.Fatalf("failed to consume pdf jobs: %v", err)
		}
		if err := gradingEvents.Consume(ctx, natsConn, cfg.GradingEventSubject); err != nil {
			log.Fatalf("failed to consume grading events: %v", err)
		}
	}

	probes := map[string]handler.HealthProbe{
		"database": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
		"redis": func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		},
	}
	if natsConn != nil {
		probes["nats"] = func(context.Context) error {
			if !natsConn.IsConnected() {
				return fmt.Errorf("nats connection status %s", natsConn.Status())
			}
			return nil
		}
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{
		Logger:       &logger,
		AllowOrigins: cfg.CORSOrigins,
		AccessLog:    cfg.AccessLog,
	})
	router.Register(app, cfg, router.Dependencies{
		ResultHandler:       handler.NewResultHandler(resultService, access, logger),
		AttemptHandler:      handler.NewAttemptHandler(attemptService, access, logger),
		ScoreHandler:        handler.NewScoreHandler(scoreService, lockService, access, logger),
		ActivityHandler:     handler.NewActivityHandler(activityService, logger),
		WrongNoteHandler:    handler.NewWrongNoteHandler(wrongNoteService, pdfJobService, access, middleware.RateLimit("pdf", cfg.PDFRateLimit, time.Minute), cfg.PDFWatchInterval, logger),
		GradingEventHandler: handler.NewGradingEventHandler(gradingEvents, logger),
		HealthProbes:        probes,
		JWTMiddleware:       middleware.JWTProtected(cfg.JWTSecret),
		InternalMiddleware:  middleware.ServiceToken(cfg.InternalToken),
		MetricsHandler:      observability.MetricsHandler(),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	logger.Info().Str("addr", cfg.HTTPAddress()).Msg("results api started")
	waitForShutdown(ctx, app, sweeper, logger)
}

func waitForShutdown(ctx context.Context, app *fiber.App, sweeper *service.PDFJobSweeper, logger zerolog.Logger) {
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	select {
	case <-sweeper.Stop().Done():
	case <-shutdownCtx.Done():
	}

	logger.Info().Msg("server stopped")
}
