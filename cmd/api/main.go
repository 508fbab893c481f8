package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/go-verify-nosql/internal/application/notification"
	"github.com/go-verify-nosql/internal/application/reconcile"
	"github.com/go-verify-nosql/internal/application/trust"
	"github.com/go-verify-nosql/internal/application/verification"
	"github.com/go-verify-nosql/internal/config"
	"github.com/go-verify-nosql/internal/infrastructure/awscfg"
	"github.com/go-verify-nosql/internal/infrastructure/dynamo"
	"github.com/go-verify-nosql/internal/infrastructure/fetch"
	jwtinfra "github.com/go-verify-nosql/internal/infrastructure/jwt"
	"github.com/go-verify-nosql/internal/infrastructure/metrics"
	redisinfra "github.com/go-verify-nosql/internal/infrastructure/redis"
	s3infra "github.com/go-verify-nosql/internal/infrastructure/s3"
	"github.com/go-verify-nosql/internal/infrastructure/smtp"
	"github.com/go-verify-nosql/internal/infrastructure/sns"
	transporthttp "github.com/go-verify-nosql/internal/transport/http"
	"github.com/go-verify-nosql/internal/transport/http/handler"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	cfg := config.Load()
	logger := newLogger(cfg.AppEnv)
	slog.SetDefault(logger)

	// Background sessions and in-flight requests share this context.
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()

	awsCfg, err := awscfg.Load(baseCtx, cfg, cfg.AWSRegion)
	if err != nil {
		log.Fatalf("aws config: %v", err)
	}

	// Bootstrap DynamoDB tables (creates them if they don't exist).
	dynamoClient := dynamo.NewClient(awsCfg, cfg.AWSEndpointURL)
	dynamo.Bootstrap(baseCtx, dynamoClient, cfg.DynamoTables)

	verificationRepo := dynamo.NewVerificationRepo(dynamoClient, cfg.DynamoTables.Verifications)
	notificationRepo := dynamo.NewNotificationRepo(dynamoClient, cfg.DynamoTables.Notifications)
	userRepo := dynamo.NewUserRepo(dynamoClient, cfg.DynamoTables.Users)

	// JWT verification (optional in development).
	var tokens *jwtinfra.Provider
	if p, err := jwtinfra.NewProvider(cfg); err == nil {
		tokens = p
	} else if cfg.AppEnv == "production" {
		log.Fatalf("jwt provider: %v", err)
	} else {
		log.Printf("WARN: JWT provider not available: %v", err)
	}

	documents := s3infra.NewStore(s3infra.NewClient(awsCfg, cfg.AWSEndpointURL), cfg.S3BucketName)
	mailer := smtp.NewMailer(cfg)

	smsCfg := awsCfg.Copy()
	smsCfg.Region = cfg.SNSRegion
	smsSender := sns.NewSender(smsCfg, cfg.AWSEndpointURL)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	healthChecks := map[string]handler.Check{
		"dynamodb": func(ctx context.Context) error {
			_, err := dynamoClient.DescribeTable(ctx, &dynamodb.DescribeTableInput{
				TableName: aws.String(cfg.DynamoTables.Verifications),
			})
			return err
		},
	}

	// Cross-instance session lease (optional).
	var leaser reconcile.Leaser
	if cfg.RedisURL != "" {
		rdb, err := redisinfra.NewClient(baseCtx, cfg.RedisURL)
		if err != nil {
			log.Printf("WARN: redis not available, sessions are deduplicated per instance only: %v", err)
		} else {
			defer rdb.Close()
			leaser = redisinfra.NewLeaser(rdb)
			healthChecks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		}
	}

	evaluator := trust.NewEvaluator(fetch.NewFetcher("go-verify-nosql/1.0"), cfg.Verification.FetchTimeout, logger)
	engine := reconcile.NewEngine(verificationRepo, evaluator, reconcile.ConfigFrom(cfg.Verification), logger, m)
	coordinator := reconcile.NewCoordinator(engine, leaser, cfg.Verification.LeaseTTL, logger)

	notifSvc := notification.NewService(notification.ServiceDeps{
		Repo:    notificationRepo,
		Users:   userRepo,
		SMS:     smsSender,
		Mailer:  mailer,
		Logger:  logger,
		Metrics: m,
	})
	verifSvc := verification.NewService(verification.ServiceDeps{
		Repo:        verificationRepo,
		Reconciler:  coordinator,
		Notifier:    notifSvc,
		Users:       userRepo,
		Documents:   documents,
		PresignTTL:  cfg.PresignTTL,
		BaseContext: baseCtx,
		Logger:      logger,
	})

	deps := &transporthttp.Deps{
		Verifications: verifSvc,
		Notifications: notifSvc,
		Metrics:       promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		HealthChecks:  healthChecks,
		BaseContext:   baseCtx,
	}
	if tokens != nil {
		deps.Tokens = tokens
	}
	router := transporthttp.NewRouter(cfg, deps)

	srv := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.AppPort),
		Handler:     router,
		BaseContext: func(net.Listener) context.Context { return baseCtx },
		ReadTimeout: 15 * time.Second,
		// ?wait=true holds the response for up to the wait budget.
		WriteTimeout: cfg.Verification.WaitBudget + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Records left pending by a previous run get a fresh session.
	if n, err := verifSvc.ResumePending(baseCtx); err != nil {
		logger.Error("resume pending verifications", "err", err)
	} else if n > 0 {
		logger.Info("resumed pending verifications", "count", n)
	}

	go func() {
		log.Printf("Server starting on :%s (env=%s)", cfg.AppPort, cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	// Sessions stop here; their records stay pending and resume on next start.
	cancelBase()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("forced shutdown: %v", err)
	}
	verifSvc.Wait()
	log.Println("Server stopped")
}

func newLogger(env string) *slog.Logger {
	if env == "production" {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
