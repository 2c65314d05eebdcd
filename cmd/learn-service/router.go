package main

import (
	"net/http"
	"time"

	activityController "learnhub/internal/activity/controller"
	challengeController "learnhub/internal/challenge/controller"
	commonmw "learnhub/internal/common/http/middleware"
	harnessController "learnhub/internal/harness/controller"
	learningController "learnhub/internal/learning/controller"
	progressController "learnhub/internal/progress/controller"
	quizController "learnhub/internal/quiz/controller"
	"learnhub/pkg/utils/logger"
	"learnhub/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func buildHTTPServer(cfg *AppConfig, svcs *services) *http.Server {
	return &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      buildRouter(cfg, svcs),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}

func buildRouter(cfg *AppConfig, svcs *services) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(commonmw.TraceContextMiddleware())
	router.Use(commonmw.CORSMiddleware(cfg.CORS))
	router.Use(requestLogger())

	router.GET("/health", func(c *gin.Context) {
		response.Success(c, gin.H{"status": "ok"})
	})

	var limiter *commonmw.RateLimiter
	if svcs.limiter != nil {
		limiter = commonmw.NewRateLimiter(svcs.limiter, cfg.Redis.ReadTimeout)
	}

	api := router.Group("/api/v1")

	// The archive reader must stay a nil interface when archiving is off.
	var archives harnessController.ArchiveReader
	if svcs.archiver != nil {
		archives = svcs.archiver
	}
	harnessHandler := harnessController.NewHarnessController(svcs.harness, archives)
	challengeHandler := challengeController.NewChallengeController(svcs.generator)
	ai := api.Group("/ai")
	ai.POST("/run-tests", commonmw.RateLimitMiddleware(limiter, "ai.run-tests", cfg.RateLimit), harnessHandler.RunTests)
	ai.POST("/generate-challenge", commonmw.RateLimitMiddleware(limiter, "ai.generate-challenge", cfg.RateLimit), challengeHandler.Generate)
	ai.GET("/toolchains", harnessHandler.Toolchains)

	admin := api.Group("/admin/archives")
	admin.GET("", harnessHandler.ListArchives)
	admin.GET("/link", harnessHandler.LinkArchive)
	admin.GET("/inspect", harnessHandler.InspectArchive)

	learningHandler := learningController.NewLearningController(svcs.learning)
	learning := api.Group("/learning")
	learning.GET("/challenge", learningHandler.Challenge)
	learning.POST("/run-tests", commonmw.RateLimitMiddleware(limiter, "learning.run-tests", cfg.RateLimit), learningHandler.RunTests)

	progressHandler := progressController.NewProgressController(svcs.progress)
	api.GET("/progress/:username", progressHandler.Get)
	api.POST("/progress/award", progressHandler.Award)

	quizHandler := quizController.NewQuizController(svcs.quiz)
	quiz := api.Group("/quiz")
	quiz.POST("/generate", commonmw.RateLimitMiddleware(limiter, "quiz.generate", cfg.RateLimit), quizHandler.Generate)
	quiz.POST("/submit", quizHandler.Submit)
	quiz.POST("/finish", quizHandler.Finish)

	activityHandler := activityController.NewActivityController(svcs.activity)
	api.POST("/activity/log", activityHandler.Log)
	api.GET("/activity/history/:username", activityHandler.History)

	return router
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
