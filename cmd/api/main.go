package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/yourusername/cipherquiz-api/internal/codec"
	"github.com/yourusername/cipherquiz-api/internal/config"
	"github.com/yourusername/cipherquiz-api/internal/engine"
	"github.com/yourusername/cipherquiz-api/internal/handler"
	"github.com/yourusername/cipherquiz-api/internal/middleware"
	pgRepo "github.com/yourusername/cipherquiz-api/internal/repository/postgres"
	redisRepo "github.com/yourusername/cipherquiz-api/internal/repository/redis"
	"github.com/yourusername/cipherquiz-api/internal/service"
	"github.com/yourusername/cipherquiz-api/internal/service/verification"
	ws "github.com/yourusername/cipherquiz-api/internal/websocket"
	"github.com/yourusername/cipherquiz-api/pkg/auth"
	"github.com/yourusername/cipherquiz-api/pkg/database"
)

func main() {
	// Загружаем конфигурацию
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	log.Printf("Загрузка конфигурации из %s", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		os.Exit(1)
	}

	// Инициализируем подключение к PostgreSQL
	db, err := database.NewPostgresDB(cfg.Database.PostgresConnectionString())
	if err != nil {
		log.Printf("Failed to connect to database: %v", err)
		os.Exit(1)
	}

	// Применяем миграции
	if err := database.MigrateDB(db, "file://migrations"); err != nil {
		log.Printf("Failed to migrate database: %v", err)
		os.Exit(1)
	}

	// Инициализируем подключение к Redis с использованием унифицированной конфигурации
	redisClient, err := database.NewUniversalRedisClient(cfg.Redis)
	if err != nil {
		log.Printf("Failed to connect to Redis: %v", err)
		os.Exit(1)
	}
	log.Println("Successfully connected to Redis")

	// Инициализируем репозитории
	topicRepo := pgRepo.NewTopicRepo(db)
	quizSetRepo := pgRepo.NewQuizSetRepo(db)
	questionBlockRepo := pgRepo.NewQuestionBlockRepo(db)
	scoreRepo := pgRepo.NewScoreRepo(db)
	accountRepo := pgRepo.NewAccountRepo(db)

	cacheRepo, err := redisRepo.NewCacheRepo(redisClient)
	if err != nil {
		log.Printf("Failed to initialize CacheRepo: %v", err)
		os.Exit(1)
	}

	// Инициализируем кодек шифроблоков
	var contentCodec *codec.Codec
	switch cfg.Codec.Cipher {
	case "chacha20":
		key, err := cfg.Codec.CodecKeyBytes()
		if err != nil {
			log.Printf("Failed to decode codec key: %v", err)
			os.Exit(1)
		}
		cipher, err := codec.NewChaChaCipher(key)
		if err != nil {
			log.Printf("Failed to initialize ChaCha20 cipher: %v", err)
			os.Exit(1)
		}
		contentCodec = codec.New(cipher)
		log.Println("Кодек: ChaCha20")
	default:
		contentCodec = codec.NewDefault()
		log.Println("Кодек: референсный формат (nonce)")
	}

	// Инициализируем движок конфиденциальных вычислений
	var verifyEngine engine.Engine
	switch cfg.Engine.Mode {
	case "http":
		verifyEngine, err = engine.NewHTTPEngine(cfg.Engine.BaseURL, cfg.Engine.AuthToken, cfg.Engine.PollInterval)
		if err != nil {
			log.Printf("Failed to initialize HTTP engine: %v", err)
			os.Exit(1)
		}
		log.Printf("Движок верификации: удалённый (%s)", cfg.Engine.BaseURL)
	default:
		verifyEngine = engine.NewLocalEngine(contentCodec)
		log.Println("Движок верификации: локальный (dev/test)")
	}

	// Токены для callback-ов движка выпускаются только в режиме http
	var engineTokens *auth.EngineTokenService
	if cfg.Engine.CallbackSecret != "" {
		engineTokens, err = auth.NewEngineTokenService(cfg.Engine.CallbackSecret, cfg.Engine.CallbackTokenTTL)
		if err != nil {
			log.Printf("Failed to initialize engine token service: %v", err)
			os.Exit(1)
		}
	}

	// Создаем контекст с отменой для корректного завершения работы горутин
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Инициализация WebSocket Hub
	hub := ws.NewHub()
	go hub.Run(ctx)

	// Инициализируем сервисы
	ledgerService := service.NewLedgerService(
		topicRepo,
		quizSetRepo,
		questionBlockRepo,
		scoreRepo,
		accountRepo,
		contentCodec,
		service.LedgerConfig{
			InitialBalance: cfg.Ledger.InitialBalance,
			VerifierSeed:   cfg.Ledger.VerifierSeed,
		},
	)
	scoreService := service.NewScoreService(scoreRepo, cacheRepo)
	vaultService := service.NewVaultService(quizSetRepo, accountRepo, hub)

	var notifier service.NotifyService = &service.NoopNotifyService{}
	if cfg.Notify.Enabled {
		resendNotifier, err := service.NewResendNotifyService(cfg.Notify.ResendAPIKey, cfg.Notify.FromEmail)
		if err != nil {
			log.Printf("Failed to initialize notify service: %v", err)
			os.Exit(1)
		}
		notifier = resendNotifier
		log.Println("Уведомления победителям включены (Resend)")
	}

	protocol := verification.NewProtocol(
		&verification.Config{
			ResultTimeout: cfg.Engine.ResultTimeout,
			MaxBatch:      cfg.Engine.MaxBatch,
		},
		&verification.Dependencies{
			QuizSetRepo:  quizSetRepo,
			QuestionRepo: questionBlockRepo,
			CacheRepo:    cacheRepo,
			Engine:       verifyEngine,
			Completions:  ledgerService,
			Scores:       scoreService,
			Notifier:     notifier,
			Hub:          hub,
		},
	)

	// Инициализируем обработчики
	topicHandler := handler.NewTopicHandler(ledgerService, scoreService)
	quizSetHandler := handler.NewQuizSetHandler(ledgerService, vaultService, protocol, hub)
	scoreHandler := handler.NewScoreHandler(ledgerService, scoreService)
	engineHandler := handler.NewEngineHandler(protocol)
	wsHandler := handler.NewWSHandler(hub, cfg.WebSocket.AllowedOrigins)

	// Инициализируем middleware
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Инициализируем роутер Gin
	router := gin.Default()

	// Настройка доверенных прокси для корректной работы c.ClientIP()
	// В production (GIN_MODE=release): не доверяем прокси (защита от IP spoofing)
	// В development: доверяем localhost
	// При деплое на VM с load balancer: добавьте IP балансировщика в список
	isProduction := gin.Mode() == gin.ReleaseMode
	if isProduction {
		// Production: не доверять прокси-заголовкам
		// Если используете load balancer, замените nil на []string{"IP_БАЛАНСИРОВЩИКА"}
		if err := router.SetTrustedProxies(nil); err != nil {
			log.Printf("Warning: failed to set trusted proxies: %v", err)
		}
	} else {
		// Development: доверяем localhost
		if err := router.SetTrustedProxies([]string{"127.0.0.1", "::1"}); err != nil {
			log.Printf("Warning: failed to set trusted proxies: %v", err)
		}
	}

	// Настройка CORS (список origin разделяется с WebSocket-обработчиком)
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.WebSocket.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Actor-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Настраиваем маршруты API
	api := router.Group("/api/v1")
	{
		// Темы
		topics := api.Group("/topics")
		{
			topics.GET("", topicHandler.ListTopics)
			topics.GET("/:name", topicHandler.GetTopic)
			topics.GET("/:name/leaderboard", topicHandler.TopicLeaderboard)

			topics.POST("",
				middleware.RequireActor(),
				rateLimiter.LimitByActor(middleware.MutationRateLimitConfig()),
				topicHandler.CreateTopic,
			)
		}

		// Наборы вопросов
		quizSets := api.Group("/quiz-sets")
		{
			quizSets.GET("", quizSetHandler.ListQuizSets)

			quizSets.POST("",
				middleware.RequireActor(),
				rateLimiter.LimitByActor(middleware.MutationRateLimitConfig()),
				quizSetHandler.CreateQuizSet,
			)

			// Группа маршрутов, требующих адрес набора
			quizSetWithAddr := quizSets.Group("/:address")
			quizSetWithAddr.Use(middleware.ExtractAddressParam("address", "quizSetAddress")) // Применяем middleware
			{
				quizSetWithAddr.GET("", quizSetHandler.GetQuizSet)
				quizSetWithAddr.GET("/vault", quizSetHandler.GetVault)

				// Маршруты с обязательной идентичностью
				actorQuizSets := quizSetWithAddr.Group("") // Наследует middleware
				actorQuizSets.Use(middleware.RequireActor())
				{
					actorQuizSets.POST("/questions",
						rateLimiter.LimitByActor(middleware.MutationRateLimitConfig()),
						quizSetHandler.AddQuestionBlock,
					)
					actorQuizSets.POST("/answers",
						rateLimiter.LimitByActor(middleware.AnswerRateLimitConfig()),
						quizSetHandler.SubmitAnswers,
					)
					actorQuizSets.POST("/claim",
						rateLimiter.LimitByActor(middleware.ClaimRateLimitConfig()),
						quizSetHandler.ClaimReward,
					)
				}
			}
		}

		// Прохождения и результаты
		api.POST("/completions",
			middleware.RequireActor(),
			rateLimiter.LimitByActor(middleware.MutationRateLimitConfig()),
			scoreHandler.RecordCompletion,
		)
		api.GET("/scores", scoreHandler.ListUserScores)
		api.GET("/history", scoreHandler.ListHistory)
		api.GET("/accounts/:id", scoreHandler.GetAccount)

		// Таблицы лидеров (публичные маршруты)
		api.GET("/leaderboard", scoreHandler.GlobalLeaderboard)
		api.GET("/leaderboard/export", scoreHandler.ExportLeaderboard)

		// Callback движка верификации (только при настроенном секрете)
		if engineTokens != nil {
			engineAuth := middleware.NewEngineAuthMiddleware(engineTokens)
			engineGroup := api.Group("/engine")
			engineGroup.Use(engineAuth.RequireEngineToken())
			{
				engineGroup.POST("/callback", engineHandler.HandleCallback)
			}
		}
	}

	// WebSocket маршрут
	router.GET("/ws", wsHandler.HandleConnection)

	// Настраиваем HTTP сервер с тайм-аутами для защиты от slow client attacks
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Запускаем сервер в горутине
	go func() {
		log.Printf("Starting server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Failed to start server: %v", err)
		}
	}()

	log.Printf("Server started on port %s", cfg.Server.Port)

	// В обработчике сигналов остановки
	// После получения сигнала SIGINT или SIGTERM вызываем cancel() для завершения горутин
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Отправляем сигнал завершения для всех горутин
	cancel()

	// Создаем контекст с таймаутом для graceful shutdown сервера
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
		os.Exit(1)
	}

	log.Println("Server exited properly")
}
