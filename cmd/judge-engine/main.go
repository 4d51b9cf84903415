package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codejudge/internal/common/cache"
	"codejudge/internal/common/db"
	commonmw "codejudge/internal/common/http/middleware"
	"codejudge/internal/common/mq"
	"codejudge/internal/common/storage"
	"codejudge/internal/judge/controller"
	"codejudge/internal/judge/harness"
	"codejudge/internal/judge/repository"
	"codejudge/internal/judge/sandbox"
	"codejudge/internal/judge/service"
	"codejudge/internal/judge/transport"
	"codejudge/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultConfigPath = "configs/judge_engine.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		return
	}
	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		return
	}
	defer func() {
		_ = logger.Sync()
	}()

	mysqlDB, err := db.NewMySQLWithConfig(&appCfg.Database)
	if err != nil {
		logger.Error(context.Background(), "init database failed", zap.Error(err))
		return
	}
	defer func() {
		_ = mysqlDB.Close()
	}()

	var (
		lookupCache cache.Cache
		limiter     commonmw.RateLimiter
	)
	if appCfg.Redis.Addr != "" {
		redisCache, err := cache.NewRedisCacheWithConfig(&appCfg.Redis)
		if err != nil {
			logger.Error(context.Background(), "init redis failed", zap.Error(err))
			return
		}
		defer func() {
			_ = redisCache.Close()
		}()
		lookupCache = redisCache
		limiter = cache.NewFixedWindowLimiter(redisCache, appCfg.RateLimit.Timeout)
	}

	var publisher repository.StatusEventPublisher
	if len(appCfg.Kafka.Brokers) > 0 {
		producer, err := mq.NewKafkaProducer(appCfg.Kafka.toMQConfig())
		if err != nil {
			logger.Error(context.Background(), "init kafka failed", zap.Error(err))
			return
		}
		defer func() {
			_ = producer.Close()
		}()
		publisher = repository.NewMQStatusEventPublisher(producer, appCfg.Events.FinalTopic)
	}

	var archive repository.SourceArchive
	if appCfg.Archive.Enabled {
		objStorage, err := storage.NewMinIOStorage(appCfg.MinIO)
		if err != nil {
			logger.Error(context.Background(), "init minio failed", zap.Error(err))
			return
		}
		if err := objStorage.EnsureBucket(context.Background(), appCfg.Archive.Bucket); err != nil {
			logger.Error(context.Background(), "ensure archive bucket failed", zap.Error(err))
			return
		}
		archive, err = repository.NewObjectSourceArchive(objStorage, appCfg.Archive.Bucket)
		if err != nil {
			logger.Error(context.Background(), "init source archive failed", zap.Error(err))
			return
		}
	}

	profiles, err := harness.ApplyOverrides(harness.DefaultProfiles(), appCfg.Languages)
	if err != nil {
		logger.Error(context.Background(), "invalid language overrides", zap.Error(err))
		return
	}
	generator := harness.NewGenerator(profiles)

	dockerRuntime, err := sandbox.NewDockerRuntime(appCfg.Judge.Docker)
	if err != nil {
		logger.Error(context.Background(), "init docker runtime failed", zap.Error(err))
		return
	}
	defer func() {
		_ = dockerRuntime.Close()
	}()
	runner := sandbox.NewRunner(appCfg.Judge.toRunnerConfig(), dockerRuntime, nil)

	submissions := repository.NewSubmissionRepository(mysqlDB, lookupCache, appCfg.ProblemCache.SubmissionTTL)
	problems := repository.NewProblemRepository(mysqlDB, lookupCache, appCfg.ProblemCache.TTL, appCfg.ProblemCache.EmptyTTL)

	judgeSvc, err := service.NewService(service.Config{
		Submissions:  submissions,
		Problems:     problems,
		Generator:    generator,
		Runner:       runner,
		Publisher:    publisher,
		Archive:      archive,
		RunTimeout:   appCfg.Judge.RunTimeout,
		StoreTimeout: appCfg.Judge.StoreTimeout,
	})
	if err != nil {
		logger.Error(context.Background(), "init judge service failed", zap.Error(err))
		return
	}

	dispatcher := service.NewDispatcher(judgeSvc, appCfg.Judge.QueueCapacity)
	dispatcher.Start(context.Background())

	authenticator, err := transport.NewJWTAuthenticator(appCfg.Auth)
	if err != nil {
		logger.Error(context.Background(), "init authenticator failed", zap.Error(err))
		return
	}

	httpServer := buildHTTPServer(appCfg, authenticator, limiter, dispatcher, submissions, generator.Languages())
	listener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		logger.Error(context.Background(), "init http listener failed", zap.Error(err))
		dispatcher.Stop()
		return
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(context.Background(), "judge engine started",
			zap.String("addr", appCfg.Server.Addr),
			zap.Strings("languages", generator.Languages()),
		)
		errCh <- httpServer.Serve(listener)
	}()

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(context.Background(), "http server stopped", zap.Error(err))
		}
	case <-shutdownCtx.Done():
		logger.Info(context.Background(), "shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error(context.Background(), "http server shutdown failed", zap.Error(err))
	}
	dispatcher.Stop()
}

func buildHTTPServer(
	cfg *AppConfig,
	verifier commonmw.TokenVerifier,
	limiter commonmw.RateLimiter,
	dispatcher *service.Dispatcher,
	submissions repository.SubmissionRepository,
	languages []string,
) *http.Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(commonmw.TraceContextMiddleware())
	router.Use(requestLogger())
	router.Use(commonmw.CORSMiddleware(cfg.Server.CORS))

	auth := commonmw.AuthMiddleware(verifier)
	transport.NewHandler(cfg.WebSocket, dispatcher).Register(router,
		auth,
		commonmw.RateLimitMiddleware(limiter, "ws", cfg.RateLimit.Connect),
	)
	controller.NewJudgeController(submissions, dispatcher, languages).Register(router, auth)

	return &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		logger.Info(
			c.Request.Context(),
			"request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
