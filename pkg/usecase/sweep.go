package usecase

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/medic/pkg/domain/model/errs"
	"github.com/secmon-lab/medic/pkg/domain/model/incident"
	"github.com/secmon-lab/medic/pkg/domain/types"
	"github.com/secmon-lab/medic/pkg/utils/async"
	"github.com/secmon-lab/medic/pkg/utils/clock"
	"github.com/secmon-lab/medic/pkg/utils/errutil"
	"github.com/secmon-lab/medic/pkg/utils/logging"
)

const DefaultSweepInterval = time.Minute

// SweepExpiredApprovals moves every awaiting_approval incident past its deadline
// to expired and returns how many it moved. It races safely with approval
// callbacks: whichever commits first wins.
func (uc *UseCases) SweepExpiredApprovals(ctx context.Context) (int, error) {
	parked, err := uc.repository.ListIncidentsByState(ctx, types.StateAwaitingApproval, 0)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to list incidents awaiting approval")
	}

	now := clock.Now(ctx)
	var expired int
	for _, inc := range parked {
		if !uc.gateSvc.Expired(inc, now) {
			continue
		}

		resolved := *inc.Approval
		resolved.Status = types.ApprovalExpired
		resolved.ResolvedAt = now
		resolved.Actor = incident.ActorSystem

		if _, err := uc.transition(ctx, inc, types.StateExpired, incident.Patch{
			Approval: &resolved,
			Reason:   "approval deadline passed",
		}); err != nil {
			if isConflict(err) {
				continue
			}
			errs.Handle(ctx, goerr.Wrap(err, "failed to expire incident", goerr.TV(errutil.IncidentIDKey, inc.ID)))
			continue
		}
		expired++
	}

	return expired, nil
}

// RecoverIncidents handles incidents stranded by a crashed worker. Triggered
// ones are orchestrated again, approved ones are executed, and ones caught
// mid-investigation or mid-decision are failed for manual follow-up. An
// incident counts as stranded once it has not moved for the recover-after
// period. Executing incidents are never recovered since the action may
// already have run.
func (uc *UseCases) RecoverIncidents(ctx context.Context) (int, error) {
	logger := logging.From(ctx)
	now := clock.Now(ctx)
	var recovered int

	stranded := func(inc *incident.Incident) bool {
		return now.Sub(inc.UpdatedAt) >= uc.recoverAfter
	}

	triggered, err := uc.repository.ListIncidentsByState(ctx, types.StateTriggered, 0)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to list triggered incidents")
	}
	for _, inc := range triggered {
		if !stranded(inc) {
			continue
		}
		logger.Warn("recovering stranded incident", "incident_id", inc.ID, "state", inc.State)
		id := inc.ID
		async.Dispatch(ctx, func(ctx context.Context) error {
			return uc.RunIncident(ctx, id)
		})
		recovered++
	}

	for _, state := range []types.IncidentState{types.StateApproved, types.StateAutoApproved} {
		incidents, err := uc.repository.ListIncidentsByState(ctx, state, 0)
		if err != nil {
			return recovered, goerr.Wrap(err, "failed to list approved incidents", goerr.TV(errutil.StateKey, state))
		}
		for _, inc := range incidents {
			if !stranded(inc) {
				continue
			}
			logger.Warn("recovering stranded incident", "incident_id", inc.ID, "state", inc.State)
			id := inc.ID
			async.Dispatch(ctx, func(ctx context.Context) error {
				_, err := uc.executorSvc.Execute(ctx, id)
				return err
			})
			recovered++
		}
	}

	for _, state := range []types.IncidentState{types.StateInvestigating, types.StateDeciding} {
		incidents, err := uc.repository.ListIncidentsByState(ctx, state, 0)
		if err != nil {
			return recovered, goerr.Wrap(err, "failed to list interrupted incidents", goerr.TV(errutil.StateKey, state))
		}
		for _, inc := range incidents {
			if !stranded(inc) {
				continue
			}
			logger.Warn("failing interrupted incident", "incident_id", inc.ID, "state", inc.State)
			if err := uc.fail(ctx, inc, FailureOrchestrationInterrupted); err != nil {
				return recovered, err
			}
			recovered++
		}
	}

	return recovered, nil
}

// Sweeper periodically expires approvals and recovers stranded incidents.
type Sweeper struct {
	uc       *UseCases
	interval time.Duration
}

func NewSweeper(uc *UseCases, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{uc: uc, interval: interval}
}

// Sweep runs one pass. Errors are reported and do not stop the next pass.
func (s *Sweeper) Sweep(ctx context.Context) {
	logger := logging.From(ctx)

	expired, err := s.uc.SweepExpiredApprovals(ctx)
	if err != nil {
		errs.Handle(ctx, err)
	}
	recovered, err := s.uc.RecoverIncidents(ctx)
	if err != nil {
		errs.Handle(ctx, err)
	}

	if expired > 0 || recovered > 0 {
		logger.Info("sweep finished", "expired", expired, "recovered", recovered)
	}
}

// Run sweeps on every tick until ctx is canceled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	logging.From(ctx).Info("sweeper started", "interval", s.interval)
	for {
		s.Sweep(ctx)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
