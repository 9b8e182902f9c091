package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/Ramsey-B/banyan/config"
	"github.com/Ramsey-B/banyan/internal/handlers"
	"github.com/Ramsey-B/banyan/internal/repositories/changeset"
	"github.com/Ramsey-B/banyan/internal/repositories/group"
	"github.com/Ramsey-B/banyan/internal/repositories/groupmember"
	"github.com/Ramsey-B/banyan/internal/repositories/mergerequest"
	"github.com/Ramsey-B/banyan/internal/repositories/person"
	"github.com/Ramsey-B/banyan/internal/repositories/relationship"
	wsrepo "github.com/Ramsey-B/banyan/internal/repositories/workspace"
	"github.com/Ramsey-B/banyan/pkg/cache"
	"github.com/Ramsey-B/banyan/pkg/database"
	"github.com/Ramsey-B/banyan/pkg/events"
	"github.com/Ramsey-B/banyan/pkg/groups"
	"github.com/Ramsey-B/banyan/pkg/health"
	"github.com/Ramsey-B/banyan/pkg/kafka"
	"github.com/Ramsey-B/banyan/pkg/kinship"
	"github.com/Ramsey-B/banyan/pkg/merge"
	"github.com/Ramsey-B/banyan/pkg/middleware"
	"github.com/Ramsey-B/banyan/pkg/persons"
	"github.com/Ramsey-B/banyan/pkg/tracing"
	"github.com/Ramsey-B/banyan/pkg/tracing/exporters"
	"github.com/Ramsey-B/banyan/pkg/treeview"
	"github.com/Ramsey-B/banyan/pkg/workspace"
)

const version = "1.0.0"

func main() {
	_ = godotenv.Load()

	var cfg config.Config
	if err := ectoenv.BindEnv(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger()
	log := logger.WithField("app", cfg.AppName)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.TracingEnabled {
		shutdown, err := setupTracing(ctx, &cfg)
		if err != nil {
			log.WithError(err).Error("Failed to set up tracing")
			os.Exit(1)
		}
		defer shutdown(context.Background())
	}

	db, err := connectDatabase(&cfg, logger)
	if err != nil {
		log.WithError(err).Error("Failed to connect to database")
		os.Exit(1)
	}
	defer db.Close()

	if err := runMigrations(&cfg, db, logger); err != nil {
		log.WithError(err).Error("Failed to run database migrations")
		os.Exit(1)
	}

	var redisClient *cache.Client
	var treeCache treeview.ViewCache
	if cfg.RedisEnabled {
		redisClient, err = cache.NewClient(cache.Config{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, logger)
		if err != nil {
			log.WithError(err).Warn("Redis unavailable, tree views will not be cached")
		} else {
			defer redisClient.Close()
			treeCache = cache.NewTreeCache(redisClient, cfg.TreeCacheTTL)
		}
	}

	var emitter *events.Emitter
	if cfg.KafkaEnabled {
		producer := kafka.NewProducer(kafka.ProducerConfig{
			Brokers:      cfg.KafkaBrokers,
			Topic:        cfg.KafkaTopic,
			BatchSize:    cfg.KafkaBatchSize,
			BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
			RequiredAcks: cfg.KafkaRequiredAcks,
			Compression:  cfg.KafkaCompression,
		}, logger)
		defer producer.Close()
		emitter = events.NewEmitter(producer, logger)
	} else {
		emitter = events.NewEmitter(noopPublisher{}, logger)
	}

	// repositories
	personRepo := person.NewRepository(db, logger)
	relationshipRepo := relationship.NewRepository(db, logger)
	groupRepo := group.NewRepository(db, logger)
	memberRepo := groupmember.NewRepository(db, logger)
	workspaceRepo := wsrepo.NewRepository(db, logger)
	changesetRepo := changeset.NewRepository(db, logger)
	mergeRequestRepo := mergerequest.NewRepository(db, logger)

	// services
	kinshipEngine := kinship.NewEngine(logger, db, groupRepo, personRepo, relationshipRepo, memberRepo)
	groupService := groups.NewService(logger, db, groupRepo, memberRepo)
	personService := persons.NewService(logger, db, personRepo, relationshipRepo, memberRepo, emitter)
	treeService := treeview.NewService(logger, personRepo, relationshipRepo, memberRepo, groupRepo, treeCache)
	workspaceService := workspace.NewService(logger, groupRepo, memberRepo, workspaceRepo, changesetRepo, personRepo, mergeRequestRepo)
	mergeService := merge.NewService(logger, db, mergeRequestRepo, workspaceRepo, groupRepo, changesetRepo, personRepo, relationshipRepo, memberRepo, emitter)

	e := echo.New()
	e.HideBanner = true
	e.Validator = &requestValidator{validator: validator.New()}

	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))
	if cfg.TracingEnabled {
		e.Use(otelecho.Middleware(cfg.AppName))
	}
	e.HTTPErrorHandler = middleware.Error(logger)

	api := e.Group("/api")
	handlers.NewGroupHandler(groupService, treeService, logger).Register(api)
	handlers.NewPersonHandler(personService, kinshipEngine, emitter, logger).Register(api)
	handlers.NewWorkspaceHandler(workspaceService, logger).Register(api)
	handlers.NewMergeRequestHandler(mergeService, logger).Register(api)

	checker := health.NewChecker(db, redisPinger(redisClient), version)
	checker.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	checker.SetReady(true)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		log.Infof("Starting server on %s", addr)
		if err := e.Start(addr); err != nil {
			log.WithError(err).Info("Server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down")
	checker.SetReady(false)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Forced shutdown")
	}
}

func newLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(msg ectologger.EctoLogMessage) {
		data, err := json.Marshal(msg)
		if err != nil {
			return
		}
		fmt.Fprintln(os.Stdout, string(data))
	})
}

func connectDatabase(cfg *config.Config, logger ectologger.Logger) (database.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.DatabaseHost, cfg.DatabasePort, cfg.DatabaseUserName,
		cfg.DatabasePassword, cfg.DatabaseName, cfg.DatabaseSSLMode,
	)

	sqlxDB, err := sqlx.Connect(cfg.DatabaseDriver, dsn)
	if err != nil {
		return nil, err
	}

	db := database.NewDatabaseInstance(sqlxDB, logger)
	db.SetMaxOpenConns(cfg.DatabaseMaxOpenConns)
	db.SetMaxIdleConns(cfg.DatabaseMaxIdleConns)
	db.SetConnMaxLifetime(cfg.DatabaseConnMaxLifetime)
	return db, nil
}

func runMigrations(cfg *config.Config, db database.DB, logger ectologger.Logger) error {
	instance, ok := db.(*database.DatabaseInstance)
	if !ok {
		return fmt.Errorf("unexpected database implementation %T", db)
	}

	driver, err := migratepg.WithInstance(instance.DB.DB, &migratepg.Config{})
	if err != nil {
		return err
	}

	service := database.NewMigrationService(logger, &database.MigrationConfig{
		MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
		Version:             uint(cfg.DatabaseMigrationVersion),
		Force:               cfg.DatabaseMigrationForce,
	})
	return service.Migrate(cfg.DatabaseName, driver)
}

func setupTracing(ctx context.Context, cfg *config.Config) (func(context.Context) error, error) {
	exporter, err := exporters.NewOTLPExporter(ctx, exporters.OTLPConfig{
		Endpoint: cfg.TracingEndpoint,
		Protocol: cfg.TracingProtocol,
		Insecure: cfg.TracingInsecure,
		Timeout:  10 * time.Second,
	})
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.AppName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)
	tracing.SetTracer(provider.Tracer(cfg.AppName))

	return provider.Shutdown, nil
}

type requestValidator struct {
	validator *validator.Validate
}

func (v *requestValidator) Validate(i any) error {
	return v.validator.Struct(i)
}

type noopPublisher struct{}

func (noopPublisher) Publish(_ context.Context, _ *kafka.GraphEvent) error { return nil }

func redisPinger(client *cache.Client) health.CachePinger {
	if client == nil {
		return nil
	}
	return client
}
