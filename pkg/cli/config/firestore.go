package config

import (
	"context"
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/medic/pkg/domain/interfaces"
	"github.com/secmon-lab/medic/pkg/repository"
	"github.com/secmon-lab/medic/pkg/repository/firestore"
	"github.com/secmon-lab/medic/pkg/utils/logging"
	"github.com/secmon-lab/medic/pkg/utils/safe"
	"github.com/urfave/cli/v3"
)

type Firestore struct {
	projectID        string
	databaseID       string
	collectionPrefix string
}

func (c *Firestore) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "firestore-project-id",
			Usage:       "Firestore project ID, in-memory store is used when empty",
			Destination: &c.projectID,
			Category:    "Firestore",
			Sources:     cli.EnvVars("MEDIC_FIRESTORE_PROJECT_ID"),
		},
		&cli.StringFlag{
			Name:        "firestore-database-id",
			Usage:       "Firestore database ID",
			Destination: &c.databaseID,
			Category:    "Firestore",
			Sources:     cli.EnvVars("MEDIC_FIRESTORE_DATABASE_ID"),
			Value:       "(default)",
		},
		&cli.StringFlag{
			Name:        "firestore-collection-prefix",
			Usage:       "Prefix for every collection name",
			Destination: &c.collectionPrefix,
			Category:    "Firestore",
			Sources:     cli.EnvVars("MEDIC_FIRESTORE_COLLECTION_PREFIX"),
		},
	}
}

func (c Firestore) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("project_id", c.projectID),
		slog.String("database_id", c.databaseID),
		slog.String("collection_prefix", c.collectionPrefix),
	)
}

// Configure connects to Firestore. The returned closer releases the client.
func (c *Firestore) Configure(ctx context.Context) (*firestore.Firestore, func(), error) {
	if c.projectID == "" {
		return nil, func() {}, goerr.New("firestore-project-id is required")
	}

	client, err := firestore.New(ctx, c.projectID, c.databaseID, firestore.WithCollectionPrefix(c.collectionPrefix))
	if err != nil {
		return nil, func() {}, err
	}

	return client, func() { safe.Close(ctx, client) }, nil
}

// Repository returns the Firestore store when configured and an in-memory
// store otherwise.
func (c *Firestore) Repository(ctx context.Context) (interfaces.IncidentRepository, func(), error) {
	if !c.IsConfigured() {
		logging.From(ctx).Warn("Firestore is not configured, incidents are kept in memory and lost on restart")
		return repository.NewMemory(), func() {}, nil
	}
	client, closer, err := c.Configure(ctx)
	if err != nil {
		return nil, closer, err
	}
	return client, closer, nil
}

func (c *Firestore) ProjectID() string {
	return c.projectID
}

func (c *Firestore) DatabaseID() string {
	return c.databaseID
}

func (c *Firestore) CollectionPrefix() string {
	return c.collectionPrefix
}

func (c *Firestore) IsConfigured() bool {
	return c.projectID != ""
}
