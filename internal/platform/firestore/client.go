package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/weiwei-tsao/grocery-price-compare/internal/platform/config"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

const pingTimeout = 5 * time.Second

// SourceEmulator is reported when the client talks to a local emulator.
const SourceEmulator = "emulator"

// New creates a Firestore client for cfg.FirestoreDatabase. Against the emulator no credentials
// are sent; otherwise the service account comes from env (base64 or file).
// It returns the client and a description of which credential source was used.
func New(ctx context.Context, cfg config.Config) (*firestore.Client, string, error) {
	opts, source, err := clientOptions(cfg)
	if err != nil {
		return nil, "", err
	}

	database := cfg.FirestoreDatabase
	if database == "" {
		database = firestore.DefaultDatabaseID
	}
	client, err := firestore.NewClientWithDatabase(ctx, cfg.FirebaseProjectID, database, opts...)
	if err != nil {
		return nil, "", fmt.Errorf("init firestore client (database %s): %w", database, err)
	}
	return client, source, nil
}

func clientOptions(cfg config.Config) ([]option.ClientOption, string, error) {
	if cfg.FirestoreEmulator != "" {
		// The SDK reads FIRESTORE_EMULATOR_HOST itself; only auth needs disabling.
		return []option.ClientOption{option.WithoutAuthentication()}, SourceEmulator, nil
	}
	creds, source, err := cfg.FirebaseCredentialsJSON()
	if err != nil {
		return nil, "", err
	}
	return []option.ClientOption{option.WithCredentialsJSON(creds)}, source, nil
}

// Ping performs a lightweight check by attempting to iterate collections.
func Ping(ctx context.Context, client *firestore.Client) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	iter := client.Collections(ctx)
	_, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("list collections: %w", err)
	}
	return nil
}
