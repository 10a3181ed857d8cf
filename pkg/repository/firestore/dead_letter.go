package firestore

import (
	"context"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/medic/pkg/domain/model/alert"
	"github.com/secmon-lab/medic/pkg/domain/model/errs"
	"github.com/secmon-lab/medic/pkg/utils/errutil"
	"google.golang.org/api/iterator"
)

func (r *Firestore) PutDeadLetter(ctx context.Context, dl *alert.DeadLetter) error {
	doc := r.collection(CollectionDeadLetters).Doc(dl.ID.String())
	if _, err := doc.Create(ctx, dl); err != nil {
		return r.eb.Wrap(err, "failed to put dead letter",
			goerr.TV(errutil.DeadLetterIDKey, dl.ID),
			goerr.T(errs.TagDatabase))
	}
	return nil
}

func (r *Firestore) ListDeadLetters(ctx context.Context, limit int) ([]*alert.DeadLetter, error) {
	q := r.collection(CollectionDeadLetters).OrderBy("CreatedAt", firestore.Desc)
	if limit > 0 {
		q = q.Limit(limit)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	var result []*alert.DeadLetter
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, r.eb.Wrap(err, "failed to list dead letters",
				goerr.TV(errutil.LimitKey, limit),
				goerr.T(errs.TagDatabase))
		}

		var dl alert.DeadLetter
		if err := doc.DataTo(&dl); err != nil {
			return nil, r.eb.Wrap(err, "failed to convert data to dead letter",
				goerr.V("doc", doc.Ref.ID),
				goerr.T(errs.TagInternal))
		}
		result = append(result, &dl)
	}
	return result, nil
}
