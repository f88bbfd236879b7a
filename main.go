package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"civicreport-be/config"
	"civicreport-be/controllers"
	"civicreport-be/feed"
	"civicreport-be/logger"
	"civicreport-be/metrics"
	"civicreport-be/middlewares"
	"civicreport-be/repositories"
	"civicreport-be/routes"
	"civicreport-be/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.NewLogger("civicreport-api", "info").Service().WithError(err).Fatal("invalid configuration")
	}
	log := logger.NewLogger("civicreport-api", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := config.ConnectDB(ctx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		log.Service().WithError(err).Fatal("failed to connect to MongoDB")
	}
	log.Service().Info("MongoDB connection established successfully")
	if err := repositories.EnsureIndexes(ctx, db); err != nil {
		log.Service().WithError(err).Fatal("failed to create indexes")
	}

	rdb, err := config.ConnectRedis(ctx, cfg)
	if err != nil {
		log.Service().WithError(err).Fatal("failed to connect to Redis")
	}
	defer rdb.Close()

	s3Client, err := config.NewS3Client(ctx, cfg)
	if err != nil {
		log.Service().WithError(err).Fatal("failed to configure S3")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(reg, "api")

	var (
		publisher services.PushPublisher
		otpSender services.OTPSender = services.NewLogOTPSender(log)
	)
	if writer := config.NewKafkaWriter(cfg); writer != nil {
		defer writer.Close()
		publisher = services.NewKafkaPushPublisher(writer, cfg.KafkaPushTopic)
		otpSender = services.NewKafkaOTPSender(writer, cfg.KafkaOTPTopic)
	} else {
		log.Service().Warn("KAFKA_BROKERS not set, push delivery disabled")
	}
	if cfg.KavenegarAPIKey != "" {
		otpSender = services.NewKavenegarOTPSender(cfg.KavenegarAPIKey, cfg.KavenegarSender, cfg.KavenegarOTPTemplate)
	}

	issueRepo := repositories.NewIssueRepository(db)
	photoRepo := repositories.NewPhotoRepository(db)
	profileRepo := repositories.NewProfileRepository(db)
	notificationRepo := repositories.NewNotificationRepository(db)

	location := services.NewLocationService(rdb, cfg.LocationSlotTTL)
	push := services.NewPushService(profileRepo, publisher, log).CountPublished(m.NotificationsPushed)
	auth := services.NewAuthService(profileRepo, rdb, otpSender, services.AuthConfig{
		Secret:   cfg.JWTSecret,
		TokenTTL: cfg.TokenTTL,
		OTPTTL:   cfg.OTPTTL,
	})
	issues := services.NewIssueService(services.IssueDeps{
		Tx:            repositories.NewMongoTransactor(db),
		Issues:        issueRepo,
		Updates:       repositories.NewUpdateRepository(db),
		Upvotes:       repositories.NewUpvoteRepository(db),
		Comments:      repositories.NewCommentRepository(db),
		Photos:        photoRepo,
		Notifications: notificationRepo,
		Location:      location,
		Push:          push,
		Log:           log,
		Clock:         func() time.Time { return time.Now().In(cfg.Location) },
	})
	photos := services.NewPhotoService(issueRepo, photoRepo, s3Client, cfg.S3Bucket, cfg.S3PublicBaseURL)
	notifications := services.NewNotificationService(notificationRepo, feed.NewMongoWatcher(notificationRepo.Collection(), log))

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	controllers.RegisterValidators()
	r := gin.New()
	r.Use(gin.Recovery(), middlewares.RequestLogger(log), metrics.Middleware(m))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middlewares.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", middlewares.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	routes.Register(r, routes.Handlers{
		Auth:          controllers.NewAuthController(auth, controllers.CookieSettings{Domain: cfg.Domain, Production: cfg.IsProduction()}, log),
		Issues:        controllers.NewIssueController(issues, photos, log),
		Users:         controllers.NewUserController(services.NewProfileService(profileRepo), push, log),
		Location:      controllers.NewLocationController(location, log),
		Notifications: controllers.NewNotificationController(notifications, cfg.CORSOrigins, m.FeedConnections, log),
		RequireAuth:   middlewares.AuthMiddleware(auth, log),
		IssueLimiter:  middlewares.IssueRateLimiter(rdb, cfg.IssueLimitPrefix, cfg.IssueDailyLimit, log),
	})

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Service().WithField("port", cfg.Port).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Service().WithError(err).Fatal("failed to start server")
		}
	}()

	<-ctx.Done()
	log.Service().Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Service().WithError(err).Error("server shutdown failed")
	}
	if err := config.DisconnectDB(shutdownCtx); err != nil {
		log.Service().WithError(err).Error("MongoDB disconnect failed")
	}
}
