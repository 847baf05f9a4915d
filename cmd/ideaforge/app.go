package main

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"ideaforge/internal/config"
	"ideaforge/internal/email/noop"
	"ideaforge/internal/email/ses"
	"ideaforge/internal/engine"
	"ideaforge/internal/engine/claude"
	"ideaforge/internal/engine/gemini"
	"ideaforge/internal/engine/openai"
	"ideaforge/internal/logger"
	"ideaforge/internal/metrics"
	"ideaforge/internal/port"
	"ideaforge/internal/repository/postgres"
	"ideaforge/internal/service"
	"ideaforge/internal/stage"
	"ideaforge/internal/storage/local"
	s3storage "ideaforge/internal/storage/s3"
)

func init() {
	engine.RegisterProvider("gemini", gemini.Factory)
	engine.RegisterProvider("claude", claude.Factory)
	engine.RegisterProvider("openai", openai.Factory)
}

// app holds everything a run needs. close releases the ledger connection.
type app struct {
	cfg *config.Config
	log *zap.Logger
	svc service.RunService
	db  *sqlx.DB
}

func (a *app) close() {
	if a.db != nil {
		_ = a.db.Close()
	}
	_ = a.log.Sync()
}

func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return cfg, log, nil
}

func newApp(ctx context.Context) (*app, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log}

	eng, err := engine.New(&cfg.Engine, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize analysis engine: %w", err)
	}
	eng = engine.WithPacing(eng, cfg.Engine.RequestsPerMinute, cfg.Engine.Burst)
	profiles, err := engine.LoadProfiles(cfg.Profiles.File)
	if err != nil {
		return nil, fmt.Errorf("failed to load stage profiles: %w", err)
	}

	rec := metrics.New()
	runner := stage.NewRunner(eng, log,
		stage.WithMaxAttempts(cfg.Pipeline.MaxRetries),
		stage.WithRetryDelay(cfg.Pipeline.RetryDelay),
		stage.WithMetrics(rec),
	)

	storeOpts := []local.Option{local.WithLogger(log)}
	if cfg.S3.Enabled() {
		s3Client, err := s3storage.NewS3Client(ctx, &cfg.S3)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize S3 client: %w", err)
		}
		storeOpts = append(storeOpts, local.WithMirror(s3Client, cfg.S3.Bucket, cfg.S3.Prefix))
		log.Info("main.newApp: mirroring outputs to S3",
			zap.String("bucket", cfg.S3.Bucket), zap.String("prefix", cfg.S3.Prefix))
	}
	store := local.NewStore(cfg.Pipeline, storeOpts...)

	svcOpts := []service.RunServiceOption{
		service.WithLogger(log),
		service.WithMetrics(rec),
	}

	if cfg.DB.Enabled {
		conn, err := postgres.NewDB(ctx, &cfg.DB)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		a.db = conn
		svcOpts = append(svcOpts, service.WithLedger(postgres.NewRunLedgerRepo(conn)))
	}

	notifier, err := newNotifier(ctx, cfg, log)
	if err != nil {
		a.close()
		return nil, err
	}
	svcOpts = append(svcOpts, service.WithNotifier(notifier))

	a.svc = service.NewRunService(store, store, runner, profiles, service.RunConfig{
		ChunkSize:       cfg.Pipeline.ChunkSize,
		ExportDir:       cfg.Pipeline.ReportDir,
		MetricsTextfile: cfg.Metrics.TextfilePath,
	}, svcOpts...)
	return a, nil
}

func newNotifier(ctx context.Context, cfg *config.Config, log *zap.Logger) (port.RunNotifier, error) {
	switch cfg.Email.Provider {
	case "ses":
		n, err := ses.NewSESSender(ctx, &cfg.Email)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SES sender: %w", err)
		}
		return n, nil
	case "", "noop":
		return noop.NewNoopSender(log), nil
	default:
		return nil, fmt.Errorf("unknown email provider: %s", cfg.Email.Provider)
	}
}
