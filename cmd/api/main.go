package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/kpi-ops-api/internal/config"
	"github.com/noah-isme/kpi-ops-api/internal/database"
	"github.com/noah-isme/kpi-ops-api/internal/handler"
	"github.com/noah-isme/kpi-ops-api/internal/middleware"
	"github.com/noah-isme/kpi-ops-api/internal/models"
	"github.com/noah-isme/kpi-ops-api/internal/repository"
	"github.com/noah-isme/kpi-ops-api/internal/router"
	"github.com/noah-isme/kpi-ops-api/internal/service"
)

const overdueSweepInterval = time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.AppName).Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL, cfg.DatabasePool, logger)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if cfg.AutoMigrate {
		if err := db.AutoMigrate(
			&models.User{},
			&models.KPIScore{},
			&models.KPIConfiguration{},
			&models.TrainingAssignment{},
			&models.AuditSchedule{},
			&models.EmailTemplate{},
			&models.EmailLog{},
			&models.RecipientGroup{},
			&models.LifecycleEvent{},
			&models.Notification{},
			&models.ActivityLog{},
		); err != nil {
			log.Fatalf("failed to migrate database: %v", err)
		}
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(context.Background(), cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
	} else {
		logger.Warn().Msg("redis url not set; config cache, processing lock and notification fan-out disabled")
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName)
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer natsConn.Drain()
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	userRepo := repository.NewUserRepository(db)
	scoreRepo := repository.NewKPIScoreRepository(db)
	configRepo := repository.NewKPIConfigurationRepository(db)
	trainingRepo := repository.NewTrainingAssignmentRepository(db)
	auditRepo := repository.NewAuditScheduleRepository(db)
	emailLogRepo := repository.NewEmailLogRepository(db)
	templateRepo := repository.NewEmailTemplateRepository(db)
	groupRepo := repository.NewRecipientGroupRepository(db)
	lifecycleRepo := repository.NewLifecycleEventRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	activityRepo := repository.NewActivityLogRepository(db)

	activityService := service.NewActivityService(activityRepo, validate, logger)
	configService := service.NewKPIConfigService(configRepo, redisClient, cfg.KPI.ConfigCacheTTL, validate, activityService, logger)
	recipientService := service.NewRecipientService(groupRepo, userRepo, logger)
	emailService := service.NewEmailTemplateService(templateRepo, emailLogRepo, service.NewLogEmailSender(logger), cfg.EmailFrom, logger)
	lifecycleService := service.NewLifecycleService(lifecycleRepo, logger)
	notificationService := service.NewNotificationService(notificationRepo, redisClient, cfg.NotificationChannel, natsConn, validate, logger)

	triggerService := service.NewKPITriggerService(service.KPITriggerDependencies{
		Scores:        scoreRepo,
		Users:         userRepo,
		Trainings:     trainingRepo,
		Audits:        auditRepo,
		Configs:       configService,
		Recipients:    recipientService,
		Emails:        emailService,
		Lifecycle:     lifecycleService,
		Notifications: notificationService,
		Redis:         redisClient,
		NATS:          natsConn,
		Settings:      cfg.KPI,
	}, logger)

	scoreService := service.NewKPIScoreService(scoreRepo, userRepo, configService, triggerService, validate, service.KPIScoreServiceOptions{
		Activity:    activityService,
		AutoProcess: cfg.KPI.AutoProcess,
	}, logger)
	trainingService := service.NewTrainingService(trainingRepo, userRepo, lifecycleService, notificationService, activityService, validate, cfg.KPI.TrainingDueDays, logger)
	auditService := service.NewAuditService(auditRepo, userRepo, lifecycleService, activityService, validate, cfg.KPI, logger)
	emailLogService := service.NewEmailLogService(emailLogRepo, emailService, activityService, validate, logger)

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	if cfg.SeedDefaultTemplates {
		if err := emailService.EnsureDefaults(rootCtx); err != nil {
			logger.Error().Err(err).Msg("failed to seed email templates")
		}
	}

	notificationService.Start(rootCtx)
	go sweepOverdueTrainings(rootCtx, trainingService, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger, AllowOrigins: cfg.CORSAllowOrigins})
	router.Register(app, cfg, router.Dependencies{
		KPIHandler:          handler.NewKPIHandler(scoreService, validate, logger),
		KPIConfigHandler:    handler.NewKPIConfigHandler(configService, logger),
		TrainingHandler:     handler.NewTrainingHandler(trainingService, validate, logger),
		AuditHandler:        handler.NewAuditHandler(auditService, validate, logger),
		NotificationHandler: handler.NewNotificationHandler(notificationService, logger, cfg.SSEKeepAlive),
		EmailLogHandler:     handler.NewEmailLogHandler(emailLogService, validate, logger),
		LifecycleHandler:    handler.NewLifecycleHandler(lifecycleService, logger),
		ActivityHandler:     handler.NewActivityHandler(activityService, validate, logger),
		HealthProbes:        healthProbes(db, redisClient, natsConn),
		JWTMiddleware:       middleware.JWTProtected(middleware.JWTConfig{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer, Leeway: 30 * time.Second}),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app, cancelRoot)
}

func sweepOverdueTrainings(ctx context.Context, trainings service.TrainingService, logger zerolog.Logger) {
	ticker := time.NewTicker(overdueSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updated, err := trainings.MarkOverdue(ctx)
			if err != nil {
				logger.Error().Err(err).Msg("overdue training sweep failed")
				continue
			}
			if updated > 0 {
				logger.Info().Int64("updated", updated).Msg("trainings marked overdue")
			}
		}
	}
}

func healthProbes(db *gorm.DB, redisClient *redis.Client, natsConn *nats.Conn) map[string]handler.HealthProbe {
	probes := map[string]handler.HealthProbe{
		"database": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if redisClient != nil {
		probes["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	}
	if natsConn != nil {
		probes["nats"] = func(context.Context) error {
			if !natsConn.IsConnected() {
				return nats.ErrConnectionClosed
			}
			return nil
		}
	}
	return probes
}

func waitForShutdown(app *fiber.App, cancelBackground context.CancelFunc) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()
	cancelBackground()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
