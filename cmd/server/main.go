package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fadilmartias/cv-screening/internal/breaker"
	"github.com/fadilmartias/cv-screening/internal/config"
	"github.com/fadilmartias/cv-screening/internal/domain/fiber/handler"
	"github.com/fadilmartias/cv-screening/internal/extract"
	"github.com/fadilmartias/cv-screening/internal/logger"
	"github.com/fadilmartias/cv-screening/internal/middleware"
	"github.com/fadilmartias/cv-screening/internal/model"
	"github.com/fadilmartias/cv-screening/internal/queue"
	"github.com/fadilmartias/cv-screening/internal/repository"
	"github.com/fadilmartias/cv-screening/internal/service"
	"github.com/fadilmartias/cv-screening/internal/storage"
	"github.com/fadilmartias/cv-screening/internal/usecase"
	"github.com/fadilmartias/cv-screening/internal/worker"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/healthcheck"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Could not load .env file")
	}

	appConfig := config.LoadAppConfig()
	pipelineConfig := config.LoadPipelineConfig()

	if err := os.MkdirAll(pipelineConfig.UploadDir, 0o755); err != nil {
		log.Fatalf("Could not create upload dir: %v", err)
	}

	zlog, err := logger.New(appConfig.Env == "production", appConfig.Env != "production")
	if err != nil {
		log.Fatal(err)
	}
	defer zlog.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := fiber.New(fiber.Config{
		AppName: appConfig.Name,
		ErrorHandler: func(ctx *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError

			var e *fiber.Error
			if errors.As(err, &e) {
				code = e.Code
			}

			message := err.Error()
			if message == "" {
				message = "Internal Server Error"
			}

			return ctx.Status(code).JSON(fiber.Map{"error": message})
		},
	})
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
	}))
	app.Use(recover.New(recover.Config{
		EnableStackTrace: appConfig.Env != "production",
	}))
	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed, // 1
	}))
	app.Use(healthcheck.New())
	app.Use(helmet.New(helmet.Config{
		CrossOriginResourcePolicy: "cross-origin",
	}))
	app.Use(middleware.RateLimiter(50, 1*time.Minute))

	db := ConnectDB()

	evaluationRepo := repository.NewEvaluationRepository(db)
	store := storage.NewDispatchStore(
		storage.NewLocalStore(pipelineConfig.UploadDir),
		storage.NewHTTPStore(30*time.Second),
	)
	extractor := extract.New(pipelineConfig.MaxTextLen)
	breakers := breaker.NewRegistry(breaker.Config{
		FailureThreshold: pipelineConfig.BreakerFailureThreshold,
		SuccessThreshold: pipelineConfig.BreakerSuccessThreshold,
		OpenDuration:     pipelineConfig.BreakerOpenDuration,
	})

	var aiClient service.AIClientInterface
	switch pipelineConfig.Provider {
	case "gemini":
		gemini, err := service.NewGeminiService(ctx, config.LoadGeminiConfig(), breakers, zlog)
		if err != nil {
			zlog.Fatal("gemini init failed", zap.Error(err))
		}
		aiClient = gemini
	default:
		aiClient = service.NewOpenRouterService(config.LoadOpenRouterConfig(), breakers, zlog)
	}

	jobQueue := queue.NewMemoryQueue(pipelineConfig.QueueSize)
	uc := usecase.NewEvaluationUsecase(evaluationRepo, store, extractor, aiClient, jobQueue, breakers, pipelineConfig, zlog)

	pool := worker.NewPool(jobQueue, uc, pipelineConfig.Workers, zlog)
	pool.Start(ctx)

	h := handler.NewEvaluateHandler(uc, pipelineConfig.UploadDir)
	h.RegisterRoutes(app)

	go func() {
		<-ctx.Done()
		zlog.Info("shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			zlog.Error("server shutdown failed", zap.Error(err))
		}
	}()

	zlog.Info("server running", zap.String("port", appConfig.Port), zap.String("ai_provider", aiClient.Key()))
	if err := app.Listen(appConfig.Port); err != nil {
		zlog.Fatal("server stopped", zap.Error(err))
	}

	// Let in-flight jobs finish their current attempt.
	pool.Wait()
}

func ConnectDB() *gorm.DB {
	dbConfig := config.LoadDBConfig()
	appConfig := config.LoadAppConfig()

	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		dbConfig.Host,
		dbConfig.User,
		dbConfig.Password,
		dbConfig.Name,
		dbConfig.Port,
		dbConfig.SSLMode,
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("Could not connect to database: %v", err)
	}
	pgDB, err := db.DB()
	if err != nil {
		log.Fatalf("Could not get database instance: %v", err)
	}
	if appConfig.Env != "production" {
		pgDB.SetMaxIdleConns(5)
		pgDB.SetMaxOpenConns(10)
		pgDB.SetConnMaxLifetime(30 * time.Minute)
	} else {
		pgDB.SetMaxIdleConns(20)
		pgDB.SetMaxOpenConns(200)
		pgDB.SetConnMaxLifetime(time.Hour)
	}

	if err := db.AutoMigrate(&model.EvaluationRequest{}); err != nil {
		log.Fatal("migration failed: ", err)
	}
	return db
}
