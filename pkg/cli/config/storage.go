package config

import (
	"context"
	"log/slog"

	"github.com/secmon-lab/medic/pkg/adapter/storage"
	"github.com/secmon-lab/medic/pkg/domain/interfaces"
	"github.com/secmon-lab/medic/pkg/service/archive"
	"google.golang.org/api/option"

	"github.com/urfave/cli/v3"
)

// Storage configures the Cloud Storage bucket that receives execution
// archives.
type Storage struct {
	bucket    string
	prefix    string
	projectID string
}

func (x *Storage) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "storage-bucket",
			Usage:       "Cloud Storage bucket for execution archives, disabled when empty",
			Category:    "Storage",
			Destination: &x.bucket,
			Sources:     cli.EnvVars("MEDIC_STORAGE_BUCKET"),
		},
		&cli.StringFlag{
			Name:        "storage-prefix",
			Usage:       "Object name prefix",
			Category:    "Storage",
			Destination: &x.prefix,
			Sources:     cli.EnvVars("MEDIC_STORAGE_PREFIX"),
		},
		&cli.StringFlag{
			Name:        "storage-project-id",
			Usage:       "Quota project ID for Cloud Storage requests",
			Category:    "Storage",
			Destination: &x.projectID,
			Sources:     cli.EnvVars("MEDIC_STORAGE_PROJECT_ID"),
		},
	}
}

func (x Storage) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("bucket", x.bucket),
		slog.String("prefix", x.prefix),
		slog.String("project_id", x.projectID),
	)
}

// Configure returns nil without error when no bucket is set.
func (x *Storage) Configure(ctx context.Context) (interfaces.ExecutionArchive, func(), error) {
	if !x.IsConfigured() {
		return nil, func() {}, nil
	}

	var opts []option.ClientOption
	if x.projectID != "" {
		opts = append(opts, option.WithQuotaProject(x.projectID))
	}

	client, err := storage.New(ctx, x.bucket, opts...)
	if err != nil {
		return nil, func() {}, err
	}

	return archive.New(client, archive.WithPrefix(x.prefix)), func() { client.Close(ctx) }, nil
}

func (x *Storage) Bucket() string {
	return x.bucket
}

func (x *Storage) IsConfigured() bool {
	return x.bucket != ""
}
