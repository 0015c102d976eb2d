package main

import (
	"context"
	"log"
	"strings"

	api "followup-backend/cmd/api"
	"followup-backend/internal/followup/detector"
	followupdomain "followup-backend/internal/followup/domain"
	followupRepo "followup-backend/internal/followup/repository"
	"followup-backend/internal/followup/scheduler"
	followupUsecase "followup-backend/internal/followup/usecase"
	"followup-backend/internal/mail"
	"followup-backend/internal/notification"
	teamdomain "followup-backend/internal/team/domain"
	teamRepo "followup-backend/internal/team/repository"
	"followup-backend/pkg/ai"
	"followup-backend/pkg/config"
	"followup-backend/pkg/database"
	"followup-backend/pkg/fcm"
	"followup-backend/pkg/gmail"
	"followup-backend/pkg/imap"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize database
	db, err := database.NewPostgresConnection(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Auto-migrate database schemas
	if err := db.AutoMigrate(
		&teamdomain.Team{},
		&teamdomain.TeamMember{},
		&teamdomain.MailAccount{},
		&teamdomain.DeviceToken{},
		&followupdomain.FollowUpTask{},
		&followupdomain.FollowUpEvent{},
	); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	// Make sure a team exists so fresh installs can onboard members
	if _, err := teamRepo.EnsureDefaultTeam(db, "Default Team"); err != nil {
		log.Fatal("Failed to ensure default team:", err)
	}

	// Initialize repositories (dependency injection)
	followUpRepository := followupRepo.NewGormFollowUpRepository(db)
	teamRepository := teamRepo.NewGormTeamRepository(db)

	// Initialize mail gateways and the provider router
	gmailService := gmail.NewService(cfg.GoogleClientID, cfg.GoogleClientSecret)
	imapService := imap.NewService()
	mailRouter := mail.NewRouter(gmailService, imapService)

	// Initialize AI draft service. Degrades to the template fallback when no
	// provider is configured.
	draftService := ai.NewDraftService(ai.Config{
		Provider:      ai.ProviderType(cfg.AIProvider),
		GeminiAPIKey:  cfg.GeminiApiKey,
		OllamaBaseURL: cfg.OllamaBaseURL,
		OllamaModel:   cfg.OllamaModel,
	})
	log.Printf("AI draft service initialized with provider: %s", cfg.AIProvider)

	// Initialize FCM Client (optional, engine works without it)
	var fcmClient *fcm.Client
	if cfg.FirebaseCredentials != "" {
		fcmClient, err = fcm.NewClient(cfg.FirebaseCredentials)
		if err != nil {
			log.Printf("[WARN] Failed to initialize FCM client (push notifications disabled): %v", err)
			fcmClient = nil
		}
	}

	// Initialize the follow-up engine
	det := detector.New(mailRouter, cfg.LookbackDays, cfg.IdleThresholdDays, cfg.MaxThreads)
	followUpScheduler := scheduler.NewFollowUpScheduler(
		followUpRepository,
		teamRepository,
		det,
		draftService,
		mailRouter,
		fcmClient,
		scheduler.Options{
			DiscoveryInterval: cfg.DiscoveryInterval,
			DueSendInterval:   cfg.DueSendInterval,
			DueSendBatchSize:  cfg.DueSendBatchSize,
		},
	)
	followUpScheduler.Start()

	// Initialize Notification Service (Pub/Sub)
	// Only start if project ID is configured
	if cfg.GoogleProjectID != "" {
		// Extract short topic name from full resource name if necessary
		topicName := cfg.GooglePubSubTopic
		if parts := strings.Split(topicName, "/"); len(parts) > 1 {
			topicName = parts[len(parts)-1]
		}
		if topicName == "" {
			topicName = "gmail-updates"
		}

		notifService, err := notification.NewService(cfg.GoogleProjectID, topicName, teamRepository, followUpScheduler, gmailService, cfg.GoogleCredentials)
		if err != nil {
			log.Printf("[ERROR] Failed to initialize notification service: %v", err)
		} else {
			go notifService.Start(context.Background())
		}
	} else {
		log.Printf("[WARN] GoogleProjectID not configured, notification service disabled")
	}

	// Initialize use cases (dependency injection)
	followUpUsecaseInstance := followupUsecase.NewFollowUpUsecase(followUpRepository, teamRepository, draftService)

	// Initialize HTTP handler
	handler := api.NewHandler(cfg, followUpUsecaseInstance, teamRepository)

	log.Printf("Server starting on port %s", cfg.Port)
	if err := handler.Start(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
