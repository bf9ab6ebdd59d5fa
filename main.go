package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/face-attendance/internal/auth"
	"github.com/example/face-attendance/internal/config"
	"github.com/example/face-attendance/internal/handlers"
	"github.com/example/face-attendance/internal/logging"
	"github.com/example/face-attendance/internal/metrics"
	"github.com/example/face-attendance/internal/repository"
	"github.com/example/face-attendance/internal/session"
	"github.com/example/face-attendance/internal/vision"
	"github.com/example/face-attendance/internal/ws"
)

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	logger, err := logging.NewLogger()
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	db := initDatabase(ctx, cfg.DatabaseDSN, logger)

	redisCtx, redisCancel := context.WithTimeout(ctx, 5*time.Second)
	defer redisCancel()
	redisClient := initRedis(redisCtx, cfg.RedisAddr, logger)
	cache := repository.NewRedisCache(redisClient)

	studentRepo := repository.NewStudentRepository(db, cache, cfg.EmbeddingDim,
		time.Duration(cfg.GalleryCacheTTLSeconds)*time.Second, logger)
	if err := studentRepo.AutoMigrate(ctx); err != nil {
		logger.Fatal("auto migrate failed", zap.Error(err))
	}
	attendanceRepo := repository.NewAttendanceRepository(db)

	visionClient := vision.NewHTTPClient(cfg.ModelServerURL, logger)
	m := metrics.New()

	sessionCfg := session.Config{
		MatchThreshold:        cfg.MatchThreshold,
		RejectionDistance:     cfg.RejectionDistance,
		FramesRequired:        cfg.FramesRequired,
		CropMargin:            cfg.CropMargin,
		LivenessPassThreshold: cfg.LivenessPassThreshold,
		LivenessMaxFails:      cfg.LivenessMaxFails,
		RejectedCooldown:      cfg.RejectedCooldownFrames,
		EvictAfter:            cfg.EvictAfterFrames,
		RingSize:              cfg.ConfidenceRingSize,
		AssociationRadius:     cfg.AssociationRadius,
	}

	factory := func(ctx context.Context, sessionID string) (ws.FrameProcessor, error) {
		snapshot, err := studentRepo.LoadActiveGallery(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		return session.NewController(sessionID, sessionCfg, snapshot, visionClient, attendanceRepo, m, logger), nil
	}
	streamHandler := ws.NewHandler(factory, m, logger)

	r := gin.Default()
	handlers.RegisterRoutes(r, handlers.Deps{
		Students:   studentRepo,
		Attendance: attendanceRepo,
		Stream:     streamHandler.Serve,
		Auth:       auth.JWTMiddleware(cfg.JWTSecret, cfg.JWTAudience),
		Metrics:    m.Handler(),
		Logger:     logger,
	})

	server := &http.Server{
		Addr:    cfg.Addr,
		Handler: r,
	}

	logger.Info("attendance API listening", zap.String("addr", cfg.Addr))
	if err := serveHTTPServer(server, 15*time.Second, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func initDatabase(ctx context.Context, dsn string, zapLogger *zap.Logger) *gorm.DB {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		zapLogger.Fatal("failed to connect to database", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		zapLogger.Fatal("failed to access db handle", zap.Error(err))
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.PingContext(ctx); err != nil {
		zapLogger.Fatal("database ping failed", zap.Error(err))
	}

	return db
}

func initRedis(ctx context.Context, addr string, zapLogger *zap.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		zapLogger.Fatal("redis connection failed", zap.Error(err))
	}
	return client
}

func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, nil, nil)
}

func serveHTTPServerWithListener(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, listener, nil)
}

func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	var (
		sigCh       <-chan os.Signal
		stopSignals func()
	)

	if signalCh != nil {
		sigCh = signalCh
		stopSignals = func() {}
	} else {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		sigCh = ch
		stopSignals = func() {
			signal.Stop(ch)
		}
	}
	defer stopSignals()

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-sigCh:
		if !ok {
			return <-errCh
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}
