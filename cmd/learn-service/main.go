package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	activityRepo "learnhub/internal/activity/repository"
	activityService "learnhub/internal/activity/service"
	"learnhub/internal/challenge/catalog"
	challengeService "learnhub/internal/challenge/service"
	"learnhub/internal/common/cache"
	"learnhub/internal/common/db"
	"learnhub/internal/common/mq"
	"learnhub/internal/common/storage"
	"learnhub/internal/harness/archive"
	"learnhub/internal/harness/sandbox"
	"learnhub/internal/harness/sandbox/engine"
	harnessService "learnhub/internal/harness/service"
	learningService "learnhub/internal/learning/service"
	"learnhub/internal/llm"
	progressRepo "learnhub/internal/progress/repository"
	progressService "learnhub/internal/progress/service"
	quizService "learnhub/internal/quiz/service"
	quizStore "learnhub/internal/quiz/store"
	"learnhub/pkg/utils/logger"

	"go.uber.org/zap"
)

const defaultConfigPath = "configs/learn_service.yaml"

// services is everything the router needs.
type services struct {
	harness   *harnessService.Service
	archiver  *archive.Archiver
	generator *challengeService.Generator
	learning  *learningService.LearningService
	progress  *progressService.ProgressService
	quiz      *quizService.QuizService
	activity  *activityService.ActivityService
	// limiter is nil when Redis is not configured.
	limiter cache.BasicOps
}

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
	ctx := context.Background()

	var database db.Database
	if appCfg.Database.DSN != "" {
		mysqlDB, err := db.OpenMySQL(appCfg.Database)
		if err != nil {
			logger.Error(ctx, "init database failed", zap.Error(err))
			return
		}
		defer func() {
			_ = mysqlDB.Close()
		}()
		if appCfg.Database.MigrateOnStart {
			schema := append(append([]string{}, progressRepo.Schema...), activityRepo.Schema...)
			if err := mysqlDB.Migrate(ctx, schema...); err != nil {
				logger.Error(ctx, "migrate database failed", zap.Error(err))
				return
			}
		}
		database = mysqlDB
	} else {
		logger.Warn(ctx, "database dsn is empty, progress and activity are kept in memory")
	}

	var redisCache cache.Cache
	if appCfg.Redis.Addr != "" {
		rc, err := cache.NewRedisCacheWithConfig(&appCfg.Redis)
		if err != nil {
			logger.Error(ctx, "init redis failed", zap.Error(err))
			return
		}
		defer func() {
			_ = rc.Close()
		}()
		redisCache = rc
	}

	var mqClient mq.MessageQueue
	if appCfg.Kafka.Enabled() {
		mqClient, err = mq.NewKafkaQueue(appCfg.Kafka.toMQConfig())
		if err != nil {
			logger.Error(ctx, "init kafka failed", zap.Error(err))
			return
		}
		defer func() {
			_ = mqClient.Close()
		}()
	}

	svcs, err := buildServices(ctx, appCfg, database, redisCache, mqClient)
	if err != nil {
		logger.Error(ctx, "init services failed", zap.Error(err))
		return
	}

	stopPrune := make(chan struct{})
	if svcs.archiver != nil {
		go pruneArchives(svcs.archiver, appCfg.Harness.PruneInterval, stopPrune)
	}

	httpServer := buildHTTPServer(appCfg, svcs)
	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "learn http server started", zap.String("addr", appCfg.Server.Addr))
		errCh <- httpServer.ListenAndServe()
	}()

	shutdownCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "server stopped", zap.Error(err))
		}
	case <-shutdownCtx.Done():
		logger.Info(ctx, "shutdown signal received")
	}

	close(stopPrune)
	timeoutCtx, cancel := context.WithTimeout(ctx, defaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(timeoutCtx); err != nil {
		logger.Error(ctx, "http server shutdown failed", zap.Error(err))
	}
	if mqClient != nil {
		_ = mqClient.Stop()
	}
}

func buildServices(ctx context.Context, cfg *AppConfig, database db.Database, redisCache cache.Cache, mqClient mq.MessageQueue) (*services, error) {
	out := &services{}

	// progress
	var progressStore progressRepo.Repository = progressRepo.NewMemoryRepository()
	if database != nil {
		progressStore = progressRepo.NewMySQLRepository(database, redisCache, cfg.Progress.CacheTTL)
	}
	out.progress = progressService.NewProgressService(progressStore)

	// activity
	var activityStore activityRepo.Repository
	switch {
	case database != nil:
		activityStore = activityRepo.NewMySQLRepository(database)
	case redisCache != nil:
		activityStore = activityRepo.NewRedisListRepository(redisCache)
	default:
		activityStore = activityRepo.NewMemoryRepository()
	}
	var deduper activityService.Deduper
	if redisCache != nil {
		deduper = activityService.NewRedisDeduper(redisCache)
	} else {
		md, err := activityService.NewMemoryDeduper()
		if err != nil {
			return nil, fmt.Errorf("init activity dedupe failed: %w", err)
		}
		deduper = md
	}
	var publisher *activityService.ActivityPublisher
	if mqClient != nil {
		publisher = activityService.NewActivityPublisher(mqClient, cfg.Activity.Topic)
		consumer := activityService.NewActivityConsumer(mqClient, activityStore)
		if err := consumer.Subscribe(ctx, cfg.Activity.Topic, cfg.Activity.ConsumerGroup, cfg.Activity.toSubscribeOptions()); err != nil {
			return nil, fmt.Errorf("subscribe activity events failed: %w", err)
		}
	}
	out.activity = activityService.NewActivityService(activityService.Config{
		Repo:      activityStore,
		Deduper:   deduper,
		Publisher: publisher,
	})

	// harness
	eng, err := engine.NewEngine(cfg.Harness.Engine)
	if err != nil {
		return nil, fmt.Errorf("init engine failed: %w", err)
	}
	if cfg.Harness.Archive.Enabled {
		objStorage, err := storage.NewMinIOStorage(cfg.MinIO)
		if err != nil {
			return nil, fmt.Errorf("init minio failed: %w", err)
		}
		if err := objStorage.EnsureBucket(ctx, cfg.Harness.Archive.Bucket); err != nil {
			return nil, fmt.Errorf("ensure archive bucket failed: %w", err)
		}
		out.archiver = archive.NewArchiver(objStorage, cfg.Harness.Archive)
	}
	out.harness, err = harnessService.NewService(harnessService.Config{
		Engine:   eng,
		Locator:  sandbox.NewLocator(cfg.Harness.Toolchains, cfg.Harness.LookupTTL),
		Archiver: out.archiver,
		Settings: cfg.Harness.Settings,
	})
	if err != nil {
		return nil, fmt.Errorf("init harness failed: %w", err)
	}

	// llm-backed features
	cat, err := catalog.Default()
	if err != nil {
		return nil, fmt.Errorf("load challenge catalog failed: %w", err)
	}
	llmClient := llm.NewClient(cfg.LLM)
	if !llmClient.Enabled() {
		logger.Warn(ctx, "llm is not configured, challenges come from the catalog and quiz generation is off")
	}
	out.generator = challengeService.NewGenerator(llmClient, cat)
	out.learning = learningService.NewLearningService(cat, out.harness, out.progress, out.activity)

	var questions quizStore.QuestionStore
	if redisCache != nil {
		questions = quizStore.NewRedisStore(redisCache)
	} else {
		ms, err := quizStore.NewMemoryStore(cfg.Quiz.QuestionTTL)
		if err != nil {
			return nil, fmt.Errorf("init quiz store failed: %w", err)
		}
		questions = ms
	}
	out.quiz = quizService.NewQuizService(quizService.Config{
		LLM:         llmClient,
		Store:       questions,
		Progress:    out.progress,
		Activity:    out.activity,
		QuestionTTL: cfg.Quiz.QuestionTTL,
	})

	if redisCache != nil {
		out.limiter = redisCache
	}
	return out, nil
}

func pruneArchives(a *archive.Archiver, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			n, err := a.Prune(ctx)
			cancel()
			if err != nil {
				logger.Warn(ctx, "prune run archives failed", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Info(ctx, "pruned run archives", zap.Int("count", n))
			}
		}
	}
}
