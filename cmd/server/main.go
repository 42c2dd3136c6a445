package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anonto42/collab-sync/backend/internal/realtime"
	"github.com/anonto42/collab-sync/backend/internal/repositories"
	"github.com/anonto42/collab-sync/backend/internal/router"
	"github.com/anonto42/collab-sync/backend/pkg/config"
	"github.com/anonto42/collab-sync/backend/pkg/firebase"
	"github.com/anonto42/collab-sync/backend/validators"
	"github.com/labstack/echo/v4"
)

func main() {
	cfg := config.Load()
	setupLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := config.InitDB(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize databases: %v", err)
	}
	defer db.CloseDB()

	deps := router.Dependencies{Postgres: db.Postgres, JWTSecret: cfg.JWTSecret}

	if db.Mongo != nil {
		store := repositories.NewMongoMessageRepository(db.Mongo.Database(cfg.MongoDatabase))
		if err := store.EnsureIndexes(ctx); err != nil {
			log.Fatalf("Failed to create message indexes: %v", err)
		}
		deps.Messages = store
		log.Println("Messages stored in MongoDB.")
	}

	if cfg.FirebaseCredentialsPath != "" {
		firebaseApp, err := firebase.InitFirebase(ctx, cfg.FirebaseCredentialsPath, cfg.FCMEnabled)
		if err != nil {
			log.Fatalf("Failed to initialize Firebase: %v", err)
		}
		deps.FirebaseAuth = firebaseApp.AuthClient
		if firebaseApp.MessagingClient != nil {
			deps.Pusher = firebase.NewFCMPusher(firebaseApp.MessagingClient)
			log.Println("FCM push enabled.")
		}
	}

	bus, err := newBus(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to start realtime bus: %v", err)
	}
	defer bus.Close()
	deps.Bus = bus

	e := echo.New()
	e.HideBanner = true
	e.Validator = validators.NewValidator()
	config.SetupMiddleware(e)
	router.SetupRoutes(e, deps)

	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}
}

// newBus builds the realtime bus and its cross-instance relay
func newBus(ctx context.Context, cfg *config.Config) (*realtime.Bus, error) {
	opts := []realtime.Option{realtime.WithQueueSize(cfg.BusQueueSize), realtime.WithLogger(slog.Default())}

	switch cfg.BusRelay {
	case config.RelayRedis:
		relay, err := realtime.NewRedisRelay(ctx, cfg.RedisURL, realtime.DefaultRedisChannel)
		if err != nil {
			return nil, err
		}
		opts = append(opts, realtime.WithRelay(relay))
		log.Println("Realtime relay: Redis.")
	case config.RelayNats:
		relay, err := realtime.NewNatsRelay(cfg.NatsURL, realtime.DefaultNatsSubject)
		if err != nil {
			return nil, err
		}
		opts = append(opts, realtime.WithRelay(relay))
		log.Println("Realtime relay: NATS.")
	case config.RelayNone, "":
	default:
		return nil, errors.New("unknown BUS_RELAY " + cfg.BusRelay)
	}

	bus := realtime.NewBus(opts...)
	if err := bus.Start(ctx); err != nil {
		bus.Close()
		return nil, err
	}
	return bus, nil
}

func setupLogger(cfg *config.Config) {
	var handler slog.Handler
	if cfg.Env == "production" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	slog.SetDefault(slog.New(handler))
}
