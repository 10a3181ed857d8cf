package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/medic/pkg/domain/model/errs"
	"github.com/secmon-lab/medic/pkg/domain/model/incident"
	"github.com/secmon-lab/medic/pkg/domain/types"
	"github.com/secmon-lab/medic/pkg/utils/clock"
	"github.com/secmon-lab/medic/pkg/utils/errutil"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// dedupOwner points an identity at the incident currently absorbing its alerts.
type dedupOwner struct {
	IncidentID types.IncidentID
	Key        string
	UpdatedAt  time.Time
}

func (r *Firestore) CreateOrGetIncident(ctx context.Context, identity incident.Identity, newIncident func() *incident.Incident) (*incident.Incident, bool, error) {
	ownerDoc := r.collection(CollectionDedupOwners).Doc(identity.Hash())

	var (
		result  *incident.Incident
		created bool
	)

	err := r.db.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		result, created = nil, false
		now := clock.Now(ctx)

		ownerSnap, err := tx.Get(ownerDoc)
		if err != nil && status.Code(err) != codes.NotFound {
			return goerr.Wrap(err, "failed to get dedup owner", goerr.T(errs.TagDatabase))
		}

		if ownerSnap != nil && ownerSnap.Exists() {
			var owner dedupOwner
			if err := ownerSnap.DataTo(&owner); err != nil {
				return goerr.Wrap(err, "failed to convert data to dedup owner", goerr.T(errs.TagInternal))
			}

			current, err := getIncidentTx(tx, r.collection(CollectionIncidents).Doc(owner.IncidentID.String()))
			if err != nil && !goerr.HasTag(err, errs.TagNotFound) {
				return err
			}
			if identity.Owns(current, now) {
				result = current
				return nil
			}
		}

		inc := newIncident()
		if err := inc.Validate(); err != nil {
			return goerr.Wrap(err, "invalid incident", goerr.T(errs.TagValidation))
		}

		if err := tx.Create(r.collection(CollectionIncidents).Doc(inc.ID.String()), inc); err != nil {
			return goerr.Wrap(err, "failed to create incident",
				goerr.TV(errutil.IncidentIDKey, inc.ID),
				goerr.T(errs.TagDatabase))
		}
		if err := tx.Set(ownerDoc, dedupOwner{IncidentID: inc.ID, Key: identity.Key(), UpdatedAt: now}); err != nil {
			return goerr.Wrap(err, "failed to set dedup owner",
				goerr.TV(errutil.IncidentIDKey, inc.ID),
				goerr.T(errs.TagDatabase))
		}

		result, created = inc, true
		return nil
	})
	if err != nil {
		return nil, false, r.eb.Wrap(err, "failed to create or get incident",
			goerr.V("dedup_key", identity.Key()))
	}

	return result, created, nil
}

func (r *Firestore) TransitionIncident(ctx context.Context, id types.IncidentID, expected, next types.IncidentState, patch incident.Patch) (*incident.Incident, error) {
	doc := r.collection(CollectionIncidents).Doc(id.String())

	var updated *incident.Incident
	err := r.db.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		current, err := getIncidentTx(tx, doc)
		if err != nil {
			return err
		}

		if err := current.Apply(expected, next, patch, clock.Now(ctx)); err != nil {
			return err
		}

		if err := tx.Set(doc, current); err != nil {
			return goerr.Wrap(err, "failed to save incident", goerr.T(errs.TagDatabase))
		}
		updated = current
		return nil
	})
	if err != nil {
		return nil, r.eb.Wrap(err, "failed to transition incident",
			goerr.TV(errutil.IncidentIDKey, id),
			goerr.TV(errutil.ExpectedStateKey, expected),
			goerr.TV(errutil.NextStateKey, next))
	}

	return updated, nil
}

func getIncidentTx(tx *firestore.Transaction, doc *firestore.DocumentRef) (*incident.Incident, error) {
	snap, err := tx.Get(doc)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.New("incident not found",
				goerr.V("doc", doc.ID),
				goerr.T(errs.TagNotFound))
		}
		return nil, goerr.Wrap(err, "failed to get incident", goerr.T(errs.TagDatabase))
	}

	var inc incident.Incident
	if err := snap.DataTo(&inc); err != nil {
		return nil, goerr.Wrap(err, "failed to convert data to incident", goerr.T(errs.TagInternal))
	}
	return &inc, nil
}

func (r *Firestore) GetIncident(ctx context.Context, id types.IncidentID) (*incident.Incident, error) {
	doc, err := r.collection(CollectionIncidents).Doc(id.String()).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, r.eb.New("incident not found",
				goerr.TV(errutil.IncidentIDKey, id),
				goerr.T(errs.TagNotFound))
		}
		return nil, r.eb.Wrap(err, "failed to get incident",
			goerr.TV(errutil.IncidentIDKey, id),
			goerr.T(errs.TagDatabase))
	}

	var inc incident.Incident
	if err := doc.DataTo(&inc); err != nil {
		return nil, r.eb.Wrap(err, "failed to convert data to incident",
			goerr.TV(errutil.IncidentIDKey, id),
			goerr.T(errs.TagInternal))
	}
	return &inc, nil
}

func (r *Firestore) ListIncidentsByState(ctx context.Context, state types.IncidentState, limit int) ([]*incident.Incident, error) {
	q := r.collection(CollectionIncidents).
		Where("State", "==", state.String()).
		OrderBy("CreatedAt", firestore.Asc)
	if limit > 0 {
		q = q.Limit(limit)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	var result []*incident.Incident
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, r.eb.Wrap(err, "failed to list incidents",
				goerr.TV(errutil.StateKey, state),
				goerr.T(errs.TagDatabase))
		}

		var inc incident.Incident
		if err := doc.DataTo(&inc); err != nil {
			return nil, r.eb.Wrap(err, "failed to convert data to incident",
				goerr.V("doc", doc.Ref.ID),
				goerr.T(errs.TagInternal))
		}
		result = append(result, &inc)
	}
	return result, nil
}
