package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/medibook/medibook/libs/auth"
	"github.com/medibook/medibook/libs/config"
	"github.com/medibook/medibook/libs/db"
	"github.com/medibook/medibook/libs/grpcx"
	"github.com/medibook/medibook/libs/httpx"
	"github.com/medibook/medibook/libs/kafkax"
	otelx "github.com/medibook/medibook/libs/otel"
	"github.com/medibook/medibook/libs/runtime"
	"github.com/medibook/medibook/services/booking-service/internal/booking"
	"github.com/medibook/medibook/services/booking-service/internal/cache"
	"github.com/medibook/medibook/services/booking-service/internal/consumer"
	"github.com/medibook/medibook/services/booking-service/internal/handlers"
	"github.com/medibook/medibook/services/booking-service/internal/inbox"
	"github.com/medibook/medibook/services/booking-service/internal/outbox"
	"github.com/medibook/medibook/services/booking-service/internal/storage"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and gRPC health servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
}

// templateBackend is what both stores offer for availability templates.
type templateBackend interface {
	cache.TemplateSource
	consumer.TemplateEnsurer
}

func runServer(parent context.Context) error {
	service := config.String("SERVICE_NAME", "booking-service")
	port, err := config.Port("PORT", "8083")
	if err != nil {
		return err
	}
	grpcPort, err := config.Port("GRPC_PORT", "9093")
	if err != nil {
		return err
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext(parent)
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	loc, err := time.LoadLocation(config.String("CLINIC_TIMEZONE", "UTC"))
	if err != nil {
		return fmt.Errorf("CLINIC_TIMEZONE: %w", err)
	}
	brokers := config.String("KAFKA_BROKERS", "")

	var (
		appointments booking.AppointmentStore
		templates    templateBackend
		inboxStore   consumer.Inbox
		checks       []runtime.ReadyCheck
	)
	switch mode := strings.ToLower(config.String("STORAGE", "postgres")); mode {
	case "memory":
		logger.Warn("using in-memory storage; data is lost on restart")
		mem := storage.NewMemory()
		appointments, templates = mem, mem
	case "postgres":
		dbURL, err := config.RequiredString("DATABASE_URL")
		if err != nil {
			return err
		}
		pool, err := db.Open(ctx, dbURL, db.OptionsFromEnv())
		if err != nil {
			logger.Error("db connection failed", "err", err)
			return err
		}
		defer pool.Close()

		if config.Bool("DB_AUTO_MIGRATE", false) {
			applied, err := db.Migrate(ctx, pool, storage.Migrations)
			if err != nil {
				return fmt.Errorf("auto migrate: %w", err)
			}
			logger.Info("migrations applied", "count", len(applied))
		}

		outboxRepo := outbox.NewRepository()
		appointments = storage.NewAppointmentRepository(pool, outboxRepo)
		templates = storage.NewTemplateRepository(pool)
		inboxStore = inbox.NewRepository(pool)
		checks = append(checks, runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)})

		if len(kafkax.SplitBrokers(brokers)) > 0 {
			writer := kafkax.NewWriter(kafkax.SplitBrokers(brokers))
			defer writer.Close()
			publisher := outbox.NewPublisher(pool, outboxRepo, writer, logger, outbox.PublisherConfig{
				PollEvery: config.Seconds("OUTBOX_POLL_SECONDS", 2*time.Second),
				BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
				Retention: config.Seconds("OUTBOX_RETENTION_SECONDS", 7*24*time.Hour),
			})
			go publisher.Run(ctx)
		} else {
			logger.Warn("outbox publisher disabled (no kafka brokers configured)")
		}
	default:
		return fmt.Errorf("STORAGE must be postgres or memory (got %q)", mode)
	}

	var (
		templateStore booking.TemplateStore = templates
		rateLimit     httpx.Middleware
	)
	perMinute := config.Int("RATE_LIMIT_PER_MINUTE", 120)
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       config.Int("REDIS_DB", 0),
		})
		defer rdb.Close()
		templateStore = cache.NewTemplates(rdb, templates, config.Seconds("TEMPLATE_CACHE_TTL_SECONDS", 5*time.Minute), logger)
		if perMinute > 0 {
			rateLimit = httpx.NewRedisRateLimiter(rdb, perMinute, time.Minute, service+":rl", httpx.ClientIP).Middleware(logger, true)
		}
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: cache.ReadyCheck(rdb)})
	} else if perMinute > 0 {
		rateLimit = httpx.NewRateLimiter(perMinute, time.Minute, httpx.ClientIP).Middleware()
	}

	if len(kafkax.SplitBrokers(brokers)) > 0 {
		reader := consumer.NewReader(consumer.Config{
			Brokers: brokers,
			GroupID: config.String("KAFKA_GROUP_ID", service),
			Topic:   config.String("KAFKA_DOCTOR_TOPIC", consumer.TopicDoctorCreated),
		})
		doctorConsumer := consumer.New(logger, inboxStore, reader, consumer.DoctorCreated(templates, logger))
		go doctorConsumer.Run(ctx)
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}

	authMiddleware, err := authFromEnv(logger)
	if err != nil {
		return err
	}

	engine := booking.NewEngine(appointments, templateStore, logger, booking.WithLocation(loc))
	api := http.NewServeMux()
	handlers.NewBookingHandler(engine, logger).Register(api)

	mux := runtime.NewBaseMuxWithReady(checks...)
	mux.Handle("/api/", httpx.Chain(api, rateLimit, authMiddleware))

	httpHandler := httpx.Chain(mux,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: config.List("CORS_ALLOWED_ORIGINS", ""),
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type", httpx.RequestIDHeader},
			MaxAge:         10 * time.Minute,
		}),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger, "/healthz", "/readyz"),
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(config.Seconds("HTTP_HANDLER_TIMEOUT_SECONDS", 15*time.Second)),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcSrv, healthSrv := grpcx.NewServer(logger)
	lis, err := net.Listen("tcp", ":"+grpcPort)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "err", err)
			stop()
		}
	}()
	go func() {
		logger.Info("grpc server starting", "addr", lis.Addr().String())
		if err := grpcSrv.Serve(lis); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	<-ctx.Done()
	healthSrv.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	grpcSrv.GracefulStop()
	logger.Info("servers stopped")
	return nil
}

func authFromEnv(logger *slog.Logger) (httpx.Middleware, error) {
	switch mode := strings.ToLower(config.String("AUTH_MODE", "jwt")); mode {
	case "jwt":
		secret, err := config.RequiredString("JWT_SECRET")
		if err != nil {
			return nil, err
		}
		return auth.RequireBearer(secret), nil
	case "headers":
		logger.Warn("AUTH_MODE=headers trusts X-User-Id/X-Role/X-Clinic-Id from the upstream gateway")
		return auth.TrustHeaders(), nil
	default:
		return nil, fmt.Errorf("AUTH_MODE must be jwt or headers (got %q)", mode)
	}
}
