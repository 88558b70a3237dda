package appServer

import (
	"context"
	"crypto/tls"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ds124wfegd/timecapsule/config"
	repository "github.com/ds124wfegd/timecapsule/internal/database/postgres"
	redisrepo "github.com/ds124wfegd/timecapsule/internal/database/redis"
	"github.com/ds124wfegd/timecapsule/internal/service"
	"github.com/ds124wfegd/timecapsule/internal/transport"
	"github.com/ds124wfegd/timecapsule/internal/transport/middleware"
	"github.com/ds124wfegd/timecapsule/internal/worker"

	"github.com/ds124wfegd/timecapsule/pkg/auth"
	"github.com/ds124wfegd/timecapsule/pkg/mailer"
	"github.com/ds124wfegd/timecapsule/pkg/postgres"
	"github.com/ds124wfegd/timecapsule/pkg/redis"
	"github.com/ds124wfegd/timecapsule/pkg/scheduler"
	"github.com/ds124wfegd/timecapsule/pkg/storage"

	goredis "github.com/go-redis/redis/v8"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type Server struct {
	httpServer *http.Server
}

func (s *Server) Run(cfg *config.Config, handler http.Handler) error {
	s.httpServer = &http.Server{
		Addr:              cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:           handler,
		MaxHeaderBytes:    1 << 20,
		ReadTimeout:       5 * time.Minute, // media uploads
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ReadHeaderTimeout: 3 * time.Second,
		TLSConfig:         &tls.Config{MinVersion: tls.VersionTLS12},           // ban on outdate TLS certificate
		ErrorLog:          log.New(os.Stderr, "SERVER ERROR: ", log.LstdFlags), // os.Stderr can be replaced with ElsasticSearch in the feature
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func setupLogging(cfg *config.Config) {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
}

func NewServer(cfg *config.Config) {
	setupLogging(cfg)

	if err := cfg.Validate(); err != nil {
		logrus.Fatalf("Invalid configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	db, err := postgres.NewPostgresDB(&cfg.Database)
	if err != nil {
		logrus.Fatalf("Failed to initialize database: %v", err)
	}

	// Run database migrations
	if err := postgres.RunMigrations(db); err != nil {
		logrus.Fatalf("Failed to run migrations: %v", err)
	}

	// Redis is optional: it backs the sweep lock and the undelivered email log
	var redisClient *goredis.Client
	if cfg.Redis.Enabled {
		redisClient, err = redis.NewRedisClient(ctx, &cfg.Redis)
		if err != nil {
			logrus.Errorf("Failed to connect to redis: %v. Continuing without it...", err)
			redisClient = nil
		} else {
			defer redisClient.Close()
			logrus.Info("Redis connected")
		}
	}

	mediaStorage := newMediaStorage(ctx, cfg)
	emailSender := newMailer(cfg, redisClient)
	tokens := auth.NewTokenService(cfg.JWT.Secret, cfg.JWT.Expiration)

	// Initialize repositories
	capsuleRepo := repository.NewCapsuleRepository(db)
	messageRepo := repository.NewScheduledMessageRepository(db)
	userRepo := repository.NewUserRepository(db)

	// Initialize services
	capsuleService := service.NewCapsuleService(capsuleRepo, mediaStorage, service.MediaLimits{
		MaxFiles:    cfg.Storage.MaxFiles,
		MaxFileSize: cfg.Storage.MaxFileSize,
	})
	messageService := service.NewScheduledMessageService(messageRepo)
	userService := service.NewUserService(userRepo, tokens, emailSender, cfg.App.ClientURL)

	loc, err := cfg.Scheduler.Location()
	if err != nil {
		logrus.Fatalf("Invalid scheduler timezone %q: %v", cfg.Scheduler.Timezone, err)
	}
	dispatcher := service.NewNotificationDispatcher(capsuleRepo, messageRepo, emailSender, service.DispatcherConfig{
		ClientURL:            cfg.App.ClientURL,
		Location:             loc,
		MaxRecipientAttempts: cfg.Scheduler.MaxRecipientAttempts,
	})

	// Initialize and start scheduler
	var sweepScheduler *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sweepScheduler, err = newSweepScheduler(cfg, loc, dispatcher, redisClient)
		if err != nil {
			logrus.Fatalf("Failed to configure scheduler: %v", err)
		}
		sweepScheduler.Start(ctx)
		logrus.Info("Sweep scheduler started")
	} else {
		logrus.Warn("Scheduler disabled, notifications will not be sent")
	}

	// Setup HTTP server
	if cfg.IsProduction() || cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	var authLimiter *middleware.RateLimiter
	if cfg.Server.AuthRateLimit > 0 {
		authLimiter = middleware.NewRateLimiter(cfg.Server.AuthRateLimit, cfg.Server.AuthBurst, 0)
		defer authLimiter.Stop()
	}

	router := transport.InitRoutes(transport.RouterConfig{
		ClientURL:          cfg.App.ClientURL,
		RequestTimeout:     time.Duration(cfg.Server.RequestTimeout) * time.Second,
		MaxMultipartMemory: 32 << 20,
		AuthLimiter:        authLimiter,
	}, transport.Handlers{
		Capsules: transport.NewCapsuleHandler(capsuleService),
		Messages: transport.NewScheduledMessageHandler(messageService),
		Users:    transport.NewUserHandler(userService),
	}, tokens)

	srv := new(Server)
	go func() {
		if err := srv.Run(cfg, router); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalf("error occured while running http server: %s", err.Error())
		}
	}()

	logrus.WithField("port", cfg.Server.Port).Print("App Started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	<-quit

	logrus.Print("App Shutting Down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("error occured on server shutting down: %s", err.Error())
	}

	// stop sweeps and let a running one finish its current record
	cancel()
	if sweepScheduler != nil {
		sweepScheduler.Wait()
	}
	closeDB(db)
}

func newMediaStorage(ctx context.Context, cfg *config.Config) service.MediaStorage {
	if !cfg.Storage.Enabled {
		logrus.Warn("Media storage disabled, uploads will be rejected")
		return storage.Disabled{}
	}
	s, err := storage.NewMinioStorage(ctx, &cfg.Storage)
	if err != nil {
		logrus.Fatalf("Failed to initialize media storage: %v", err)
	}
	return s
}

func newMailer(cfg *config.Config, redisClient *goredis.Client) service.Mailer {
	if !cfg.Email.Enabled {
		logrus.Warn("Email disabled, messages will only be logged")
		return mailer.NewLogMailer()
	}

	var deadLetter mailer.DeadLetter
	if redisClient != nil {
		deadLetter = mailer.NewRedisDeadLetter(redisClient, cfg.Email.DeadLetterKey)
	}
	retry := mailer.NewRetryPolicy(cfg.Email.MaxAttempts, cfg.Email.RetryDelay)

	logrus.WithFields(logrus.Fields{
		"host": cfg.Email.Host,
		"port": cfg.Email.Port,
	}).Info("SMTP mailer initialized")
	return mailer.NewSMTPMailer(cfg.Email, retry, deadLetter)
}

func newSweepScheduler(
	cfg *config.Config,
	loc *time.Location,
	dispatcher service.NotificationDispatcher,
	redisClient *goredis.Client,
) (*scheduler.Scheduler, error) {
	var locker worker.Locker
	if redisClient != nil {
		locker = redisrepo.NewSweepLock(redisClient, cfg.Scheduler.LockTTL)
	}

	sweeps := []struct {
		name  string
		cron  string
		sweep worker.SweepFunc
	}{
		{"reminder", cfg.Scheduler.ReminderCron, dispatcher.RunReminderSweep},
		{"unlock", cfg.Scheduler.UnlockCron, dispatcher.RunUnlockSweep},
		{"delivery", cfg.Scheduler.DeliveryCron, dispatcher.RunDeliverySweep},
	}

	s := scheduler.NewScheduler(loc)
	for _, sw := range sweeps {
		w := worker.NewSweepWorker(sw.name, sw.sweep, locker, cfg.Scheduler.LockTTL)
		if err := s.Add(w.Name(), sw.cron, w.Run); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func closeDB(db *sql.DB) {
	if err := db.Close(); err != nil {
		logrus.Errorf("Failed to close database: %v", err)
	}
}
