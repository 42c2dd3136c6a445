package router

import (
	"log"

	"github.com/anonto42/collab-sync/backend/internal/handlers"
	"github.com/anonto42/collab-sync/backend/internal/middleware"
	"github.com/anonto42/collab-sync/backend/internal/models"
	"github.com/anonto42/collab-sync/backend/internal/realtime"
	"github.com/anonto42/collab-sync/backend/internal/repositories"
	"github.com/anonto42/collab-sync/backend/internal/services"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

// Dependencies are the connections and adapters built in main
type Dependencies struct {
	Postgres *gorm.DB
	// Messages defaults to the PostgreSQL store when nil.
	Messages repositories.MessageRepository
	Bus      *realtime.Bus
	// Pusher is optional.
	Pusher services.Pusher
	// FirebaseAuth, when set, replaces JWT verification.
	FirebaseAuth middleware.TokenVerifier
	JWTSecret    string
}

// Migrate creates or updates the PostgreSQL schema
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.ProjectMembership{},
		&models.Conversation{},
		&models.ConversationMember{},
		&models.Message{},
		&models.Notification{},
	)
}

// SetupRoutes configures all application routes and injects dependencies
func SetupRoutes(e *echo.Echo, deps Dependencies) {
	if err := Migrate(deps.Postgres); err != nil {
		log.Fatalf("Failed to auto migrate models: %v", err)
	}
	log.Println("PostgreSQL auto-migrations completed for all models.")

	e.GET("/health", handlers.HealthCheck)

	// --- Initialize Repositories ---
	userRepo := repositories.NewPostgresUserRepository(deps.Postgres)
	membershipRepo := repositories.NewPostgresMembershipRepository(deps.Postgres)
	conversationRepo := repositories.NewPostgresConversationRepository(deps.Postgres)
	notificationRepo := repositories.NewPostgresNotificationRepository(deps.Postgres)
	messageRepo := deps.Messages
	if messageRepo == nil {
		messageRepo = repositories.NewPostgresMessageRepository(deps.Postgres)
	}

	// --- Services ---
	var publisher services.Publisher
	if deps.Bus != nil {
		publisher = deps.Bus
	}
	conversationService := services.NewConversationService(deps.Postgres, conversationRepo, membershipRepo, messageRepo, userRepo, publisher)
	messageService := services.NewMessageService(messageRepo, membershipRepo, publisher)
	notificationService := services.NewNotificationService(deps.Postgres, notificationRepo, membershipRepo, userRepo, publisher, deps.Pusher)
	authorizer := services.NewScopeAuthorizer(membershipRepo)

	// --- Protected routes ---
	api := e.Group("/api/v1")
	if deps.FirebaseAuth != nil {
		api.Use(middleware.FirebaseAuthMiddleware(deps.FirebaseAuth, userRepo))
		log.Println("Firebase authentication middleware applied to /api/v1 group.")
	} else {
		api.Use(middleware.JWTAuthMiddleware(deps.JWTSecret))
		log.Println("JWT authentication middleware applied to /api/v1 group.")
	}

	userHandler := handlers.NewUserHandler(userRepo)
	userHandler.RegisterProfileRoutes(api)
	log.Println("User profile routes configured.")

	conversationHandler := handlers.NewConversationHandler(conversationService, messageService)
	conversationHandler.RegisterConversationRoutes(api)
	log.Println("Conversation routes configured.")

	notificationHandler := handlers.NewNotificationHandler(notificationService, userRepo)
	notificationHandler.RegisterNotificationRoutes(api)
	log.Println("Notification routes configured.")

	inviteHandler := handlers.NewInviteHandler(notificationService)
	inviteHandler.RegisterInviteRoutes(api)
	log.Println("Invite routes configured.")

	if deps.Bus != nil {
		realtimeHandler := handlers.NewRealtimeHandler(deps.Bus, authorizer)
		realtimeHandler.RegisterRealtimeRoutes(api)
		log.Println("Realtime route configured.")
	}

	log.Println("All routes configured.")
}
