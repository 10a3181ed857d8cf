package repository_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/medic/pkg/domain/interfaces"
	"github.com/secmon-lab/medic/pkg/domain/model/alert"
	"github.com/secmon-lab/medic/pkg/domain/model/errs"
	"github.com/secmon-lab/medic/pkg/domain/model/incident"
	"github.com/secmon-lab/medic/pkg/domain/model/remediation"
	"github.com/secmon-lab/medic/pkg/domain/types"
	"github.com/secmon-lab/medic/pkg/repository"
	"github.com/secmon-lab/medic/pkg/repository/firestore"
	"github.com/secmon-lab/medic/pkg/utils/clock"
	"github.com/secmon-lab/medic/pkg/utils/test"
)

func newFirestoreClient(t *testing.T) *firestore.Firestore {
	vars := test.NewEnvVars(t, "TEST_FIRESTORE_PROJECT_ID", "TEST_FIRESTORE_DATABASE_ID")
	client, err := firestore.New(t.Context(),
		vars.Get("TEST_FIRESTORE_PROJECT_ID"),
		vars.Get("TEST_FIRESTORE_DATABASE_ID"),
		firestore.WithCollectionPrefix(fmt.Sprintf("test_%s_", uuid.NewString()[:8])),
	)
	gt.NoError(t, err).Required()
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func newTestAlert() *alert.Normalized {
	return &alert.Normalized{
		AlertName: "DiskFull",
		Target:    "web-" + uuid.NewString()[:8],
		Project:   "prj-test",
		Severity:  types.SeverityCritical,
		Labels:    map[string]string{"alertname": "DiskFull"},
		Payload:   map[string]any{"status": "firing"},
	}
}

func runTest(t *testing.T, name string, testFn func(t *testing.T, repo interfaces.IncidentRepository)) {
	t.Run(name, func(t *testing.T) {
		t.Run("Memory", func(t *testing.T) {
			testFn(t, repository.NewMemory())
		})
		t.Run("Firestore", func(t *testing.T) {
			testFn(t, newFirestoreClient(t))
		})
	})
}

func TestCreateOrGetIncident(t *testing.T) {
	runTest(t, "same identity inside window returns existing", func(t *testing.T, repo interfaces.IncidentRepository) {
		base := time.Now().UTC().Truncate(time.Millisecond)
		fixed, advance := clock.Fixed(base)
		ctx := clock.With(t.Context(), fixed)

		a := newTestAlert()
		identity := incident.IdentityOf(a, 10*time.Minute)

		first, created, err := repo.CreateOrGetIncident(ctx, identity, func() *incident.Incident {
			return incident.New(a, clock.Now(ctx))
		})
		gt.NoError(t, err).Required()
		gt.True(t, created)

		advance(9 * time.Minute)
		second, created, err := repo.CreateOrGetIncident(ctx, identity, func() *incident.Incident {
			return incident.New(a, clock.Now(ctx))
		})
		gt.NoError(t, err).Required()
		gt.False(t, created)
		gt.Equal(t, second.ID, first.ID)
	})

	runTest(t, "window elapsed opens a new incident", func(t *testing.T, repo interfaces.IncidentRepository) {
		base := time.Now().UTC().Truncate(time.Millisecond)
		fixed, advance := clock.Fixed(base)
		ctx := clock.With(t.Context(), fixed)

		a := newTestAlert()
		identity := incident.IdentityOf(a, 10*time.Minute)

		first, _, err := repo.CreateOrGetIncident(ctx, identity, func() *incident.Incident {
			return incident.New(a, clock.Now(ctx))
		})
		gt.NoError(t, err).Required()

		advance(11 * time.Minute)
		second, created, err := repo.CreateOrGetIncident(ctx, identity, func() *incident.Incident {
			return incident.New(a, clock.Now(ctx))
		})
		gt.NoError(t, err).Required()
		gt.True(t, created)
		gt.NotEqual(t, second.ID, first.ID)
	})

	runTest(t, "terminal incident does not absorb alerts", func(t *testing.T, repo interfaces.IncidentRepository) {
		ctx := t.Context()
		a := newTestAlert()
		identity := incident.IdentityOf(a, time.Hour)

		first, _, err := repo.CreateOrGetIncident(ctx, identity, func() *incident.Incident {
			return incident.New(a, clock.Now(ctx))
		})
		gt.NoError(t, err).Required()

		_, err = repo.TransitionIncident(ctx, first.ID, types.StateTriggered, types.StateFailed, incident.Patch{FailureReason: "test"})
		gt.NoError(t, err).Required()

		second, created, err := repo.CreateOrGetIncident(ctx, identity, func() *incident.Incident {
			return incident.New(a, clock.Now(ctx))
		})
		gt.NoError(t, err).Required()
		gt.True(t, created)
		gt.NotEqual(t, second.ID, first.ID)
	})

	runTest(t, "concurrent alerts create exactly one incident", func(t *testing.T, repo interfaces.IncidentRepository) {
		ctx := t.Context()
		a := newTestAlert()
		identity := incident.IdentityOf(a, time.Hour)

		const n = 8
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			ids     = map[types.IncidentID]struct{}{}
			created int
		)
		for range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				inc, isNew, err := repo.CreateOrGetIncident(ctx, identity, func() *incident.Incident {
					return incident.New(a, clock.Now(ctx))
				})
				gt.NoError(t, err)
				if inc == nil {
					return
				}
				mu.Lock()
				defer mu.Unlock()
				ids[inc.ID] = struct{}{}
				if isNew {
					created++
				}
			}()
		}
		wg.Wait()

		gt.Equal(t, len(ids), 1)
		gt.Equal(t, created, 1)
	})
}

func TestTransitionIncident(t *testing.T) {
	newIncident := func(t *testing.T, ctx context.Context, repo interfaces.IncidentRepository) *incident.Incident {
		a := newTestAlert()
		inc, _, err := repo.CreateOrGetIncident(ctx, incident.IdentityOf(a, time.Hour), func() *incident.Incident {
			return incident.New(a, clock.Now(ctx))
		})
		gt.NoError(t, err).Required()
		return inc
	}

	runTest(t, "valid transition persists patch and history", func(t *testing.T, repo interfaces.IncidentRepository) {
		ctx := t.Context()
		inc := newIncident(t, ctx, repo)

		_, err := repo.TransitionIncident(ctx, inc.ID, types.StateTriggered, types.StateInvestigating, incident.Patch{Reason: "start"})
		gt.NoError(t, err).Required()
		_, err = repo.TransitionIncident(ctx, inc.ID, types.StateInvestigating, types.StateDeciding, incident.Patch{})
		gt.NoError(t, err).Required()

		decision := &remediation.Decision{
			Action: types.ActionCleanupDisk,
			Params: map[string]string{"target_directory": "/tmp"},
			Rule:   "disk_critical",
		}
		updated, err := repo.TransitionIncident(ctx, inc.ID, types.StateDeciding, types.StateAutoApproved, incident.Patch{Decision: decision})
		gt.NoError(t, err).Required()
		gt.Equal(t, updated.State, types.StateAutoApproved)

		got, err := repo.GetIncident(ctx, inc.ID)
		gt.NoError(t, err).Required()
		gt.Equal(t, got.State, types.StateAutoApproved)
		gt.Equal(t, got.Decision.Action, types.ActionCleanupDisk)
		gt.Equal(t, got.Decision.Params["target_directory"], "/tmp")
		gt.A(t, got.History).Length(4)
		gt.Equal(t, got.History[1].Reason, "start")
	})

	runTest(t, "expected state mismatch is a conflict", func(t *testing.T, repo interfaces.IncidentRepository) {
		ctx := t.Context()
		inc := newIncident(t, ctx, repo)

		_, err := repo.TransitionIncident(ctx, inc.ID, types.StateInvestigating, types.StateDeciding, incident.Patch{})
		gt.True(t, goerr.HasTag(err, errs.TagConflict))

		got, err := repo.GetIncident(ctx, inc.ID)
		gt.NoError(t, err).Required()
		gt.Equal(t, got.State, types.StateTriggered)
	})

	runTest(t, "edge outside the state machine is rejected", func(t *testing.T, repo interfaces.IncidentRepository) {
		ctx := t.Context()
		inc := newIncident(t, ctx, repo)

		_, err := repo.TransitionIncident(ctx, inc.ID, types.StateTriggered, types.StateExecuting, incident.Patch{})
		gt.True(t, goerr.HasTag(err, errs.TagInvalidState))
	})

	runTest(t, "only one of two racing transitions wins", func(t *testing.T, repo interfaces.IncidentRepository) {
		ctx := t.Context()
		inc := newIncident(t, ctx, repo)

		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			succeeded int
		)
		for _, next := range []types.IncidentState{types.StateInvestigating, types.StateFailed} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := repo.TransitionIncident(ctx, inc.ID, types.StateTriggered, next, incident.Patch{})
				if err == nil {
					mu.Lock()
					succeeded++
					mu.Unlock()
					return
				}
				gt.True(t, goerr.HasTag(err, errs.TagConflict))
			}()
		}
		wg.Wait()
		gt.Equal(t, succeeded, 1)
	})

	runTest(t, "missing incident", func(t *testing.T, repo interfaces.IncidentRepository) {
		_, err := repo.GetIncident(t.Context(), types.NewIncidentID())
		gt.True(t, goerr.HasTag(err, errs.TagNotFound))
	})
}

func TestListIncidentsByState(t *testing.T) {
	runTest(t, "filters by state and honors limit", func(t *testing.T, repo interfaces.IncidentRepository) {
		ctx := t.Context()
		var ids []types.IncidentID
		for range 3 {
			a := newTestAlert()
			inc, _, err := repo.CreateOrGetIncident(ctx, incident.IdentityOf(a, time.Hour), func() *incident.Incident {
				return incident.New(a, clock.Now(ctx))
			})
			gt.NoError(t, err).Required()
			ids = append(ids, inc.ID)
		}
		_, err := repo.TransitionIncident(ctx, ids[0], types.StateTriggered, types.StateInvestigating, incident.Patch{})
		gt.NoError(t, err).Required()

		investigating, err := repo.ListIncidentsByState(ctx, types.StateInvestigating, 0)
		gt.NoError(t, err).Required()
		gt.A(t, investigating).Length(1).At(0, func(t testing.TB, v *incident.Incident) {
			gt.Equal(t, v.ID, ids[0])
		})

		triggered, err := repo.ListIncidentsByState(ctx, types.StateTriggered, 1)
		gt.NoError(t, err).Required()
		gt.A(t, triggered).Length(1)
	})
}

func TestDeadLetters(t *testing.T) {
	runTest(t, "newest first", func(t *testing.T, repo interfaces.IncidentRepository) {
		ctx := t.Context()
		base := time.Now().UTC().Truncate(time.Millisecond)

		older := alert.NewDeadLetter(types.DeadLetterUnmappedAlert, "missing label: instance", map[string]any{"a": "b"}, base)
		newer := alert.NewDeadLetter(types.DeadLetterMalformedPayload, "invalid json", nil, base.Add(time.Second))
		gt.NoError(t, repo.PutDeadLetter(ctx, older))
		gt.NoError(t, repo.PutDeadLetter(ctx, newer))

		got, err := repo.ListDeadLetters(ctx, 10)
		gt.NoError(t, err).Required()
		gt.A(t, got).Longer(1)
		gt.Equal(t, got[0].ID, newer.ID)
		gt.Equal(t, got[1].ID, older.ID)
		gt.Equal(t, got[1].Reason, types.DeadLetterUnmappedAlert)

		limited, err := repo.ListDeadLetters(ctx, 1)
		gt.NoError(t, err).Required()
		gt.A(t, limited).Length(1)
	})
}
