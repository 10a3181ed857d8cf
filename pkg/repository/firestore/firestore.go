package firestore

import (
	"context"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/medic/pkg/domain/interfaces"
	"github.com/secmon-lab/medic/pkg/utils/errutil"
)

type Firestore struct {
	db *firestore.Client
	eb *goerr.Builder

	// collection prefix, used to isolate test runs sharing one database
	prefix string
}

var _ interfaces.IncidentRepository = &Firestore{}

type Option func(*Firestore)

// WithCollectionPrefix prepends prefix to every collection name.
func WithCollectionPrefix(prefix string) Option {
	return func(r *Firestore) {
		r.prefix = prefix
	}
}

func New(ctx context.Context, projectID, databaseID string, opts ...Option) (*Firestore, error) {
	db, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client")
	}

	r := &Firestore{
		db: db,
		eb: goerr.NewBuilder(
			goerr.TV(errutil.RepositoryKey, "firestore"),
			goerr.V("project_id", projectID),
			goerr.V("database_id", databaseID),
		),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func (r *Firestore) Close() error {
	return r.db.Close()
}

const (
	CollectionIncidents   = "incidents"
	CollectionDedupOwners = "dedup_owners"
	CollectionDeadLetters = "dead_letters"
)

func (r *Firestore) collection(name string) *firestore.CollectionRef {
	return r.db.Collection(r.prefix + name)
}
