package main

import (
	"context"

	"letterworks/internal/audit"
	"letterworks/internal/handlers"
	"letterworks/internal/ledger"
	"letterworks/internal/letters"
	"letterworks/internal/notify"
	"letterworks/internal/orchestrator"
	"letterworks/internal/provider"
	"letterworks/internal/review"
	"letterworks/pkg/auth"
	"letterworks/pkg/config"
	"letterworks/pkg/database"
	"letterworks/pkg/logging"
	"letterworks/pkg/monitoring"
	"letterworks/pkg/server"
	"letterworks/pkg/version"
)

func main() {
	// Setup logger
	logger := logging.NewLoggerWithService("scrivener")

	// Load environment variables
	config.LoadEnv(logger)

	logger.Info("Starting Scrivener (Letter Engine)")

	dbURL := config.RequireEnv("DATABASE_URL")
	jwtSecret := config.RequireEnv("JWT_SECRET")
	serviceToken := config.RequireEnv("SERVICE_TOKEN")

	// Connect to database
	dbConfig := database.DefaultConfig()
	dbConfig.URL = dbURL
	db := database.MustConnect(dbConfig, logger)
	defer db.Close()

	if config.GetEnvBool("DB_APPLY_SCHEMA", true) {
		if err := database.ApplySchema(context.Background(), db, logger); err != nil {
			logger.WithError(err).Fatal("Failed to apply database schema")
		}
	}

	// Setup monitoring
	healthChecker := monitoring.NewHealthChecker("scrivener", version.Version)
	metricsCollector := monitoring.NewMetricsCollector("scrivener", version.Version, version.GitCommit)

	healthChecker.AddCheck("database", monitoring.DatabaseHealthCheck(db))
	healthChecker.AddCheck("config", monitoring.ConfigurationHealthCheck(map[string]string{
		"DATABASE_URL": dbURL,
		"JWT_SECRET":   jwtSecret,
	}))

	// Provider chain
	providerConfig := provider.LoadConfig()
	adapter := provider.NewAdapter(providerConfig, logger)

	// Notifications (Kafka events + operator alert email)
	notifier, err := notify.NewNotifier(logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to set up notifier")
	}
	defer notifier.Close()
	if client := notifier.Client(); client != nil {
		healthChecker.AddCheck("kafka", monitoring.KafkaProducerHealthCheck(client))
	}

	// Domain services
	letterStore := letters.NewStore(db, logger)
	allowanceLedger := ledger.New(db, logger)
	auditTrail := audit.NewTrail(db, logger)
	reviewService := review.NewService(letterStore, auditTrail, notifier, logger)
	orch := orchestrator.New(allowanceLedger, letterStore, adapter, auditTrail, notifier,
		orchestrator.IntakeValidator{}, logger)

	// Custom letter workflow metrics
	metrics := handlers.NewScrivenerMetrics(metricsCollector)

	// Initialize handlers
	handlers.Init(db, logger, letterStore, allowanceLedger, auditTrail, orch, reviewService, metrics)

	// Setup router with unified monitoring
	router := server.SetupServiceRouter(logger, "scrivener", healthChecker, metricsCollector)

	// API routes (root level - nginx adds /api/letters/ prefix)
	{
		protected := router.Group("")
		protected.Use(auth.JWTAuthMiddleware([]byte(jwtSecret)))
		{
			// Owner endpoints
			protected.POST("/letters/generate", handlers.GenerateLetter)
			protected.GET("/letters/allowance", handlers.CheckAllowance)
			protected.GET("/letters", handlers.ListLetters)
			protected.POST("/letters/drafts", handlers.SaveDraft)
			protected.POST("/letters/improve", handlers.ImproveLetter)
			protected.GET("/letters/:id", handlers.GetLetter)
			protected.DELETE("/letters/:id", handlers.DeleteLetter)
			protected.POST("/letters/:id/submit", handlers.SubmitLetter)
			protected.POST("/letters/:id/retry", handlers.RetryLetter)
			protected.POST("/letters/:id/resubmit", handlers.ResubmitLetter)
			protected.GET("/letters/:id/history", handlers.GetAuditHistory)

			// Reviewer endpoints (capabilities enforced per role)
			protected.GET("/reviews/pending", handlers.GetPendingLetters)
			protected.POST("/reviews/:id/claim", handlers.StartReview)
			protected.POST("/reviews/:id/approve", handlers.ApproveLetter)
			protected.POST("/reviews/:id/reject", handlers.RejectLetter)
			protected.POST("/reviews/bulk-approve", handlers.BulkApproveLetters)
			protected.POST("/reviews/:id/reassign", handlers.ReassignLetter)
		}

		// Delivery pipeline callbacks (service-to-service)
		serviceAPI := router.Group("")
		serviceAPI.Use(auth.ServiceAuthMiddleware(serviceToken))
		{
			serviceAPI.POST("/service/letters/:id/delivery-events", handlers.RecordDeliveryEvent)
		}
	}

	// Start server with graceful shutdown
	serverConfig := server.DefaultConfig("scrivener", "18010")
	if err := server.Start(serverConfig, router, logger); err != nil {
		logger.WithError(err).Fatal("Server startup failed")
	}
}
