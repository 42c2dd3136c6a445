package firebase

import (
	"context"
	"fmt"
	"log"
	"os"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// App holds the initialized Firebase app with its auth and messaging clients
type App struct {
	FirebaseApp     *firebase.App
	AuthClient      *auth.Client
	MessagingClient *messaging.Client
}

// InitFirebase initializes the Firebase application. The messaging client is
// only created when withMessaging is set.
func InitFirebase(ctx context.Context, credentialsPath string, withMessaging bool) (*App, error) {
	if credentialsPath == "" {
		return nil, fmt.Errorf("firebase credentials path not provided")
	}

	if _, err := os.Stat(credentialsPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("firebase credentials file not found at %s", credentialsPath)
	}

	opt := option.WithCredentialsFile(credentialsPath)

	firebaseApp, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}

	authClient, err := firebaseApp.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting firebase auth client: %w", err)
	}

	app := &App{FirebaseApp: firebaseApp, AuthClient: authClient}
	if withMessaging {
		app.MessagingClient, err = firebaseApp.Messaging(ctx)
		if err != nil {
			return nil, fmt.Errorf("error getting firebase messaging client: %w", err)
		}
	}

	log.Println("Firebase app initialized successfully!")
	return app, nil
}
