package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"pixelpharm-backend/internal/bloodtests"
	"pixelpharm-backend/internal/bodycomp"
	"pixelpharm-backend/internal/insights"
	"pixelpharm-backend/internal/llm"
	llmclaude "pixelpharm-backend/internal/llm/claude"
	"pixelpharm-backend/internal/ocr"
	ocrclaude "pixelpharm-backend/internal/ocr/claude"
	"pixelpharm-backend/internal/ocr/pattern"
	"pixelpharm-backend/internal/ocr/textract"
	"pixelpharm-backend/internal/processing"
	"pixelpharm-backend/internal/queue"
	"pixelpharm-backend/internal/shared/config"
	"pixelpharm-backend/internal/shared/lock"
	"pixelpharm-backend/internal/shared/server"
	"pixelpharm-backend/internal/shared/storage/db"
	"pixelpharm-backend/internal/shared/storage/object"
	localstore "pixelpharm-backend/internal/shared/storage/object/local"
	s3store "pixelpharm-backend/internal/shared/storage/object/s3"
	"pixelpharm-backend/internal/shared/telemetry"
	"pixelpharm-backend/internal/uploads"
	"pixelpharm-backend/internal/usage"
	"pixelpharm-backend/internal/users"
)

// App holds shared dependencies and the wired router.
type App struct {
	Config    config.Config
	Router    *gin.Engine
	DB        *sql.DB
	Store     object.ObjectStore
	Presigner object.Presigner
	Queue     queue.Client
	Locker    lock.Locker
	Redis     *redis.Client

	UsersService      *users.Service
	UsageService      *usage.Service
	UploadsService    *uploads.Service
	BodyService       *bodycomp.Service
	BloodService      *bloodtests.Service
	ProcessingService *processing.Service
	InsightsService   *insights.Service

	// Processor is what the workers call. Tests may replace it.
	Processor Processor

	UsersHandler      *users.Handler
	UsageHandler      *usage.Handler
	UploadsHandler    *uploads.Handler
	BodyHandler       *bodycomp.Handler
	BloodHandler      *bloodtests.Handler
	ProcessingHandler *processing.Handler
	InsightsHandler   *insights.Handler
}

// Processor runs extraction for one upload.
type Processor interface {
	ProcessUpload(ctx context.Context, uploadID string) error
}

// Build prepares shared dependencies and the router.
func Build(cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}
	ctx := context.Background()

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, presigner, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	queueClient, err := buildQueue(ctx, cfg)
	if err != nil {
		return nil, err
	}

	locker, redisClient, err := buildLocker(ctx, cfg)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config:    cfg,
		DB:        sqlDB,
		Store:     store,
		Presigner: presigner,
		Queue:     queueClient,
		Locker:    locker,
		Redis:     redisClient,
	}

	if err := buildServices(ctx, app); err != nil {
		return nil, err
	}

	app.Router = server.NewRouter(server.RouterDeps{
		Config:            app.Config,
		UsersHandler:      app.UsersHandler,
		UsageHandler:      app.UsageHandler,
		UploadsHandler:    app.UploadsHandler,
		ProcessingHandler: app.ProcessingHandler,
		BloodHandler:      app.BloodHandler,
		BodyHandler:       app.BodyHandler,
		InsightsHandler:   app.InsightsHandler,
	})

	return app, nil
}

// Close releases pooled connections. The Lambda singleton pool is left open.
func (a *App) Close() {
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.DB != nil && !db.IsLambdaRuntime() {
		_ = a.DB.Close()
	}
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if cfg.IsDevLike() {
			telemetry.Warn("bootstrap.database.memory", map[string]any{"reason": "DATABASE_URL empty"})
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	var (
		sqlDB *sql.DB
		err   error
	)
	if db.IsLambdaRuntime() {
		sqlDB, err = db.GetSingleton(ctx, cfg.DatabaseURL, db.OptionsFromEnv(db.DefaultLambdaOptions()))
	} else {
		sqlDB, err = db.Connect(ctx, cfg.DatabaseURL, db.OptionsFromEnv(db.DefaultServerOptions()))
	}
	if err != nil {
		if cfg.IsDevLike() {
			telemetry.Warn("bootstrap.database.memory", map[string]any{"reason": "connect failed", "error": err.Error()})
			return nil, nil
		}
		return nil, err
	}
	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, object.Presigner, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		if strings.TrimSpace(cfg.S3Bucket) == "" {
			return nil, nil, fmt.Errorf("OBJECT_STORE=s3 requires S3_BUCKET")
		}
		store, err := s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	default:
		return localstore.New(cfg.LocalStoreDir), nil, nil
	}
}

func buildQueue(ctx context.Context, cfg config.Config) (queue.Client, error) {
	if strings.TrimSpace(cfg.QueueURL) == "" {
		return nil, nil
	}
	return queue.NewSQSClient(ctx, cfg.QueueURL, cfg.AWSRegion)
}

func buildLocker(ctx context.Context, cfg config.Config) (lock.Locker, *redis.Client, error) {
	if strings.TrimSpace(cfg.RedisURL) == "" {
		return lock.NewMemory(), nil, nil
	}
	locker, client, err := lock.NewRedisFromURL(ctx, cfg.RedisURL)
	if err != nil {
		if cfg.IsDevLike() {
			telemetry.Warn("bootstrap.lock.memory", map[string]any{"reason": "redis unavailable", "error": err.Error()})
			return lock.NewMemory(), nil, nil
		}
		return nil, nil, err
	}
	return locker, client, nil
}

func buildLLM(cfg config.Config) (llm.Client, string, error) {
	if strings.TrimSpace(cfg.AnthropicAPIKey) == "" {
		telemetry.Warn("bootstrap.llm.disabled", map[string]any{"reason": "ANTHROPIC_API_KEY empty"})
		return llm.NopClient{}, cfg.ClaudeModel, nil
	}
	client, err := llmclaude.NewClient(llmclaude.Options{
		APIKey:    cfg.AnthropicAPIKey,
		Model:     cfg.ClaudeModel,
		MaxTokens: cfg.ClaudeMaxTokens,
		Timeout:   cfg.OCRTimeout,
	})
	if err != nil {
		return nil, "", err
	}
	return client, client.Model(), nil
}

func buildEngines(ctx context.Context, cfg config.Config, store object.ObjectStore, client llm.Client, model string) map[string]ocr.Engine {
	engines := map[string]ocr.Engine{
		pattern.Name: pattern.New(),
	}
	// Without an API key the Claude engine could only fail, so it is left out.
	if _, nop := client.(llm.NopClient); !nop {
		engines[ocrclaude.Name] = ocrclaude.New(llm.WithRetry(client, "ocr"), model)
	}
	if cfg.TextractEnabled {
		engine, err := textract.NewFromConfig(ctx, cfg.AWSRegion)
		if err != nil {
			telemetry.Warn("bootstrap.textract.disabled", map[string]any{"error": err.Error()})
		} else {
			if s3, ok := store.(*s3store.Store); ok {
				engine.WithS3(s3.Location)
			}
			engines[textract.Name] = engine
		}
	}
	return engines
}

func buildServices(ctx context.Context, app *App) error {
	var (
		userRepo       users.Repo
		uploadRepo     uploads.Repo
		bloodRepo      bloodtests.Repo
		bodyRepo       bodycomp.Repo
		processingRepo processing.Repo
		insightRepo    insights.Repo
		usageSvc       *usage.Service
	)

	if app.DB != nil {
		userRepo = &users.PGRepo{DB: app.DB}
		uploadRepo = &uploads.PGRepo{DB: app.DB}
		bloodRepo = &bloodtests.PGRepo{DB: app.DB}
		bodyRepo = &bodycomp.PGRepo{DB: app.DB}
		processingRepo = &processing.PGRepo{DB: app.DB}
		insightRepo = &insights.PGRepo{DB: app.DB}
		usageSvc = usage.NewPostgresService(usage.NewPGStore(app.DB))
	} else {
		memUploads := uploads.NewMemoryRepo()
		uploadExists := func(ctx context.Context, id string) bool {
			_, err := memUploads.Get(ctx, id)
			return err == nil
		}
		memBlood := bloodtests.NewMemoryRepo()
		memBlood.UploadExists = uploadExists
		memBody := bodycomp.NewMemoryRepo()
		memBody.UploadExists = uploadExists

		userRepo = users.NewMemoryRepo()
		uploadRepo = memUploads
		bloodRepo = memBlood
		bodyRepo = memBody
		processingRepo = processing.NewMemoryRepo()
		insightRepo = insights.NewMemoryRepo()
		usageSvc = usage.NewService()
	}

	llmClient, model, err := buildLLM(app.Config)
	if err != nil {
		return err
	}

	uploadSvc := &uploads.Service{
		Store:     app.Store,
		Presigner: app.Presigner,
		Repo:      uploadRepo,
		Usage:     usageSvc,
	}
	bloodSvc := bloodtests.NewService(bloodRepo)
	bodySvc := bodycomp.NewService(bodyRepo)

	processingSvc := &processing.Service{
		Uploads: uploadSvc,
		Blood:   bloodSvc,
		Body:    bodySvc,
		Repo:    processingRepo,
		Locker:  app.Locker,
		Queue:   app.Queue,
		LockTTL: app.Config.LockTTL,
	}
	engines := buildEngines(ctx, app.Config, app.Store, llmClient, model)
	processingSvc.Extractor = ocr.NewRouter(app.Config.OCREngines, engines, app.Config.OCRTimeout, processingSvc.RecordAttempt)

	insightSvc := &insights.Service{
		Repo:   insightRepo,
		Values: bloodSvc,
		LLM:    llm.WithRetry(llmClient, "insights"),
		Model:  model,
	}

	app.UsersService = &users.Service{Repo: userRepo, Plans: usageSvc}
	app.UsageService = usageSvc
	app.UploadsService = uploadSvc
	app.BloodService = bloodSvc
	app.BodyService = bodySvc
	app.ProcessingService = processingSvc
	app.InsightsService = insightSvc
	app.Processor = processingSvc

	app.UsersHandler = users.NewHandler(app.UsersService)
	app.UsageHandler = usage.NewHandler(usageSvc)
	app.UploadsHandler = uploads.NewHandler(uploadSvc)
	app.BloodHandler = bloodtests.NewHandler(bloodSvc)
	app.BodyHandler = bodycomp.NewHandler(bodySvc)
	app.ProcessingHandler = processing.NewHandler(processingSvc)
	app.InsightsHandler = insights.NewHandler(insightSvc)

	if app.UploadsHandler == nil || app.ProcessingHandler == nil {
		return errors.New("failed to initialize handlers")
	}
	return nil
}
