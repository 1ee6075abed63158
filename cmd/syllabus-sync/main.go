package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/joseph-ayodele/syllabus-sync/internal/blob"
	"github.com/joseph-ayodele/syllabus-sync/internal/calendar"
	"github.com/joseph-ayodele/syllabus-sync/internal/common"
	"github.com/joseph-ayodele/syllabus-sync/internal/crypto"
	"github.com/joseph-ayodele/syllabus-sync/internal/llm"
	"github.com/joseph-ayodele/syllabus-sync/internal/llm/openai"
	"github.com/joseph-ayodele/syllabus-sync/internal/metrics"
	"github.com/joseph-ayodele/syllabus-sync/internal/pipeline"
	repo "github.com/joseph-ayodele/syllabus-sync/internal/repository"
	"github.com/joseph-ayodele/syllabus-sync/internal/secret"
	"github.com/joseph-ayodele/syllabus-sync/internal/server"
	"github.com/joseph-ayodele/syllabus-sync/internal/services/syllabus"
	"github.com/joseph-ayodele/syllabus-sync/internal/textextract"
)

func main() {
	cfg, err := common.LoadConfig()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(2)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// AWS is optional: without it documents stay in memory and credentials
	// are stored unencrypted, which is only suitable for local runs.
	var awsCfg *aws.Config
	if cfg.Blob.Bucket != "" || cfg.Crypto.KMSKeyID != "" || cfg.Secrets.SSMPrefix != "" {
		opts := []func(*awsconfig.LoadOptions) error{}
		if cfg.Blob.Region != "" {
			opts = append(opts, awsconfig.WithRegion(cfg.Blob.Region))
		}
		loaded, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			logger.Error("failed to load aws config", "error", err)
			os.Exit(1)
		}
		awsCfg = &loaded
	}

	resolver := secret.Chain{secret.NewEnvResolver()}
	if cfg.Secrets.SSMPrefix != "" {
		resolver = secret.Chain{secret.NewSSMResolver(ssm.NewFromConfig(*awsCfg), cfg.Secrets.SSMPrefix), secret.NewEnvResolver()}
	}
	for name, dst := range map[string]*string{
		"openai-api-key":       &cfg.LLM.APIKey,
		"google-client-secret": &cfg.Calendar.ClientSecret,
		"oauth-state-secret":   &cfg.Calendar.StateSecret,
	} {
		if err := secret.Fill(ctx, resolver, name, dst); err != nil {
			logger.Error("failed to resolve secret", "name", name, "error", err)
			os.Exit(2)
		}
	}

	db, err := repo.Open(ctx, repo.Config{
		Driver:           cfg.Database.Driver,
		DSN:              cfg.Database.DSN,
		MaxConns:         cfg.Database.MaxConns,
		MinConns:         cfg.Database.MinConns,
		MaxConnLifetime:  cfg.Database.MaxConnLifetime,
		MaxConnIdleTime:  cfg.Database.MaxConnIdleTime,
		DialTimeout:      cfg.Database.DialTimeout,
		StatementTimeout: cfg.Database.StatementTimeout,
	}, logger)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close(logger)

	if err := db.HealthCheck(ctx, 5*time.Second, logger); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	if cfg.Database.AutoMigrate {
		if err := repo.Migrate(ctx, db, logger); err != nil {
			logger.Error("failed to migrate database", "error", err)
			os.Exit(1)
		}
	}

	m := metrics.New()
	locks := common.NewKeyedMutex()

	syllabi := repo.NewSyllabusRepository(db, logger, repo.WithLocks(locks))
	states := repo.NewCalendarStateRepository(db, logger)
	mappings := repo.NewMappingRepository(db, logger)

	var blobs blob.Store = blob.NewMemoryStore()
	if cfg.Blob.Bucket != "" {
		s3c := s3.NewFromConfig(*awsCfg)
		blobs = blob.NewS3Store(s3c, s3.NewPresignClient(s3c), cfg.Blob.Bucket, cfg.Blob.Prefix, logger)
	} else {
		logger.Warn("S3_BUCKET not set, source documents are kept in memory")
	}

	var enc crypto.Encryptor = crypto.NewPlainEncryptor()
	if cfg.Crypto.KMSKeyID != "" {
		enc = crypto.NewKMSEncryptor(kms.NewFromConfig(*awsCfg), cfg.Crypto.KMSKeyID)
	} else {
		logger.Warn("KMS_KEY_ID not set, calendar credentials are stored unencrypted")
	}

	capability := openai.NewClient(openai.Config{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
	}, logger)
	extractor, err := llm.NewClient(capability, logger,
		llm.WithMaxRetries(cfg.LLM.MaxRetries),
		llm.WithAttemptTimeout(cfg.LLM.Timeout),
		llm.WithMaxInputChars(cfg.LLM.MaxInputChars),
		llm.WithObserver(m),
	)
	if err != nil {
		logger.Error("failed to build extraction client", "error", err)
		os.Exit(1)
	}
	text := textextract.NewExtractor(textextract.Config{
		Pdftotext: cfg.Extractor.Pdftotext,
		MaxBytes:  cfg.Extractor.MaxBytes,
		Timeout:   cfg.Extractor.Timeout,
	}, logger)
	processor := pipeline.NewProcessor(logger, text, extractor, blobs, syllabi, m)

	signer, err := calendar.NewStateSigner(cfg.Calendar.StateSecret, cfg.Calendar.AuthorizationWindow, nil)
	if err != nil {
		logger.Error("OAUTH_STATE_SECRET is required", "error", err)
		os.Exit(2)
	}
	provider := calendar.NewGoogleProvider(calendar.GoogleConfig{
		ClientID:     cfg.Calendar.ClientID,
		ClientSecret: cfg.Calendar.ClientSecret,
		RedirectURL:  cfg.Calendar.RedirectURL,
	}, logger)
	sync := calendar.NewSynchronizer(provider, states, mappings, enc, signer, logger,
		calendar.WithLocks(locks),
		calendar.WithRecorder(m),
		calendar.WithConcurrency(cfg.Calendar.Concurrency),
		calendar.WithRetry(cfg.Calendar.MaxRetries, cfg.Calendar.Backoff),
		calendar.WithCallTimeout(cfg.Calendar.EventTimeout),
		calendar.WithAuthorizationWindow(cfg.Calendar.AuthorizationWindow),
		calendar.WithCalendar(cfg.Calendar.CalendarName, cfg.Calendar.TimeZone),
	)

	svc := syllabus.NewService(processor, syllabi, blobs, sync, logger, syllabus.WithURLTTL(cfg.Blob.URLTTL))

	// gRPC server
	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		logger.Error("failed to listen on address", "addr", cfg.Server.GRPCAddr, "error", err)
		os.Exit(1)
	}
	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(server.UnaryInterceptor(logger, m)))
	server.NewSyllabusServer(svc, logger).Register(grpcServer)

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

	handler := server.NewHTTPHandler(server.HTTPConfig{SuccessRedirect: cfg.Calendar.SuccessRedirect},
		svc, m.Handler(), db, logger)
	httpServer := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("syllabus-sync listening", "grpc_addr", cfg.Server.GRPCAddr, "http_addr", cfg.Server.HTTPAddr)
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC serve error", "error", err)
			stop()
		}
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http serve error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	healthServer.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	grpcServer.GracefulStop()
}
