package firebase

import (
	"context"
	"fmt"
	"os"

	"cloud.google.com/go/firestore"
	fbapp "firebase.google.com/go/v4"
	"google.golang.org/api/option"

	"campusmarket/pkg/config"
	"campusmarket/pkg/logger"
)

// ClientOptions picks Google credentials from the service account JSON, then
// the service account file. With neither, application default credentials
// (or the Firestore emulator) are used.
func ClientOptions(cfg *config.Config) ([]option.ClientOption, error) {
	if cfg.FirebaseServiceAccountJSON != "" {
		logger.Info("Using Firebase service account from environment variable")
		return []option.ClientOption{option.WithCredentialsJSON([]byte(cfg.FirebaseServiceAccountJSON))}, nil
	}

	if path := cfg.FirebaseServiceAccountPath; path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("firebase: service account file %s: %w", path, err)
		}
		logger.Info("Using Firebase service account from file: %s", path)
		return []option.ClientOption{option.WithCredentialsFile(path)}, nil
	}

	logger.Info("Using application default credentials for Firebase")
	return nil, nil
}

// NewAuthClient initializes the Firebase app and returns a token verifier.
func NewAuthClient(ctx context.Context, cfg *config.Config, opts []option.ClientOption) (*FirebaseAuthClient, error) {
	app, err := fbapp.NewApp(ctx, &fbapp.Config{ProjectID: cfg.FirebaseProject}, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase: init app: %w", err)
	}

	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase: init auth: %w", err)
	}
	return NewFirebaseAuthClient(client), nil
}

// NewFirestoreClient opens a Firestore client for the configured project.
func NewFirestoreClient(ctx context.Context, cfg *config.Config, opts []option.ClientOption) (*firestore.Client, error) {
	client, err := firestore.NewClient(ctx, cfg.FirebaseProject, opts...)
	if err != nil {
		return nil, fmt.Errorf("firestore: new client: %w", err)
	}
	return client, nil
}
