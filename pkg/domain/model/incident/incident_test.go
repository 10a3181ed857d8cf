package incident_test

import (
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/medic/pkg/domain/model/alert"
	"github.com/secmon-lab/medic/pkg/domain/model/errs"
	"github.com/secmon-lab/medic/pkg/domain/model/incident"
	"github.com/secmon-lab/medic/pkg/domain/types"
)

func newAlert() *alert.Normalized {
	return &alert.Normalized{
		AlertName: "DiskFull",
		Target:    "web-1",
		Project:   "prj-a",
		Severity:  types.SeverityCritical,
		Labels:    map[string]string{"alertname": "DiskFull", "service": "nginx"},
	}
}

func TestNew(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	inc := incident.New(newAlert(), now)

	gt.NoError(t, inc.Validate())
	gt.Equal(t, inc.State, types.StateTriggered)
	gt.Equal(t, inc.DedupKey, "web-1|DiskFull")
	gt.Equal(t, inc.Service(), "nginx")
	gt.A(t, inc.History).Length(1)
}

func TestApply(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("valid edge appends history", func(t *testing.T) {
		inc := incident.New(newAlert(), now)
		err := inc.Apply(types.StateTriggered, types.StateInvestigating, incident.Patch{Reason: "start"}, now.Add(time.Second))
		gt.NoError(t, err)
		gt.Equal(t, inc.State, types.StateInvestigating)
		gt.A(t, inc.History).Length(2)
		gt.Equal(t, inc.History[1].From, types.StateTriggered)
		gt.Equal(t, inc.History[1].Actor, incident.ActorSystem)
		gt.Equal(t, inc.UpdatedAt, now.Add(time.Second))
	})

	t.Run("expected state mismatch", func(t *testing.T) {
		inc := incident.New(newAlert(), now)
		err := inc.Apply(types.StateDeciding, types.StateAutoApproved, incident.Patch{}, now)
		gt.True(t, goerr.HasTag(err, errs.TagConflict))
		gt.Equal(t, inc.State, types.StateTriggered)
	})

	t.Run("edge outside the table", func(t *testing.T) {
		inc := incident.New(newAlert(), now)
		err := inc.Apply(types.StateTriggered, types.StateExecuting, incident.Patch{}, now)
		gt.True(t, goerr.HasTag(err, errs.TagInvalidState))
		gt.Equal(t, inc.State, types.StateTriggered)
	})
}

func TestIdentityOwns(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	a := newAlert()
	inc := incident.New(a, now)
	id := incident.IdentityOf(a, 10*time.Minute)

	gt.True(t, id.Owns(inc, now.Add(9*time.Minute)))
	gt.False(t, id.Owns(inc, now.Add(10*time.Minute)))

	other := incident.IdentityOf(&alert.Normalized{Target: "web-2", AlertName: "DiskFull"}, 10*time.Minute)
	gt.False(t, other.Owns(inc, now))

	inc.State = types.StateResolved
	gt.False(t, id.Owns(inc, now))
}

func TestCopy(t *testing.T) {
	inc := incident.New(newAlert(), time.Now())
	c := inc.Copy()
	c.Labels["service"] = "changed"
	c.History[0].Reason = "changed"

	gt.Equal(t, inc.Labels["service"], "nginx")
	gt.Equal(t, inc.History[0].Reason, "alert received")
}
