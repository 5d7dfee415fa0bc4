// Package firestore backs the proximity service with Cloud Firestore: live
// geohash window queries, the position writer and the SOS and ride
// repositories.
//
// Set FIRESTORE_EMULATOR_HOST to point the client at the local emulator; the
// SDK picks it up without further configuration.
package firestore

import (
	"context"
	"fmt"
	"os"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"

	"convoy/internal/config"
	"convoy/internal/logger"
)

// Collection and field names shared with the mobile client.
const (
	usersCollection = "users"

	fieldGeohash      = "geohash"
	fieldStatus       = "status"
	fieldLastLocation = "lastLocation"
	fieldUpdatedAt    = "updatedAt"
	fieldActiveSOSID  = "activeSosId"
	fieldActiveSOSAt  = "activeSosAt"
)

// Client owns the underlying Firestore client.
type Client struct {
	client *firestore.Client
}

// NewClient connects to cfg.ProjectID. A credentials file is used when it
// exists; otherwise the client falls back to application default
// credentials (or the emulator).
func NewClient(ctx context.Context, cfg config.FirestoreConfig) (*Client, error) {
	log := logger.With("firestore")

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" && os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		if _, err := os.Stat(cfg.CredentialsFile); err != nil {
			log.Warn("credentials file not found, using default credentials", "path", cfg.CredentialsFile)
		} else {
			log.Info("using credentials file", "path", cfg.CredentialsFile)
			opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
		}
	}

	client, err := firestore.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create firestore client for %s: %w", cfg.ProjectID, err)
	}
	log.Info("firestore client initialized", "project", cfg.ProjectID)
	return &Client{client: client}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}
