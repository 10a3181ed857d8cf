package decision_test

import (
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/medic/pkg/domain/model/diagnosis"
	"github.com/secmon-lab/medic/pkg/domain/model/policy"
	"github.com/secmon-lab/medic/pkg/domain/types"
	"github.com/secmon-lab/medic/pkg/service/decision"
)

const dfCritical = `Filesystem      Size  Used Avail Use% Mounted on
/dev/sda1        50G   48G  1.0G  97% /
tmpfs           2.0G     0  2.0G   0% /dev/shm`

const dfHealthy = `Filesystem      Size  Used Avail Use% Mounted on
/dev/sda1        50G   20G   30G  40% /`

func reportWith(entries map[types.ProbeName]string) *diagnosis.Report {
	r := &diagnosis.Report{}
	for _, probe := range []types.ProbeName{types.ProbeDiskUsage, types.ProbeProcessSnapshot, types.ProbeLogTail, types.ProbeUptime} {
		out, ok := entries[probe]
		if !ok {
			out = "nothing interesting"
		}
		r.Entries = append(r.Entries, diagnosis.Entry{Probe: probe, Output: out})
	}
	return r
}

func allowAll() *policy.Remediation {
	return &policy.Remediation{AllowedActions: types.KnownActions}
}

func TestDecide(t *testing.T) {
	engine := decision.New()

	t.Run("unreachable never picks a destructive action", func(t *testing.T) {
		report := reportWith(map[types.ProbeName]string{types.ProbeDiskUsage: dfCritical})
		report.Unreachable = true

		d := engine.Decide(decision.Input{Report: report, Policy: allowAll()})
		gt.Equal(t, d.Action, types.ActionManualIntervention)
		gt.Equal(t, d.Rule, decision.RuleUnreachable)
	})

	t.Run("disk at or above threshold cleans up", func(t *testing.T) {
		d := engine.Decide(decision.Input{
			Report: reportWith(map[types.ProbeName]string{types.ProbeDiskUsage: dfCritical}),
			Policy: allowAll(),
		})
		gt.Equal(t, d.Action, types.ActionCleanupDisk)
		gt.Equal(t, d.Rule, decision.RuleDiskCritical)
		gt.Equal(t, d.Params["target_directory"], "/tmp")
		gt.Equal(t, d.Params["dry_run"], "false")
	})

	t.Run("exactly at threshold", func(t *testing.T) {
		d := engine.Decide(decision.Input{
			Report: reportWith(map[types.ProbeName]string{types.ProbeDiskUsage: "/dev/sda1 50G 47G 2G 95% /"}),
			Policy: allowAll(),
		})
		gt.Equal(t, d.Action, types.ActionCleanupDisk)
	})

	t.Run("degraded disk probe does not trigger cleanup", func(t *testing.T) {
		report := reportWith(nil)
		report.Entries[0] = diagnosis.Entry{Probe: types.ProbeDiskUsage, Output: "<error>: 99% sure it failed", Degraded: true}

		d := engine.Decide(decision.Input{Report: report, Policy: allowAll()})
		gt.Equal(t, d.Rule, decision.RuleDefault)
	})

	t.Run("oom in logs restarts named service", func(t *testing.T) {
		d := engine.Decide(decision.Input{
			Report: reportWith(map[types.ProbeName]string{
				types.ProbeDiskUsage: dfHealthy,
				types.ProbeLogTail:   "kernel: Out of memory: Killed process 1234 (java)",
			}),
			Policy:  allowAll(),
			Service: "payments",
		})
		gt.Equal(t, d.Action, types.ActionRestartService)
		gt.Equal(t, d.Rule, decision.RuleMemoryPressure)
		gt.Equal(t, d.Params["service_name"], "payments")
	})

	t.Run("default restarts the default service", func(t *testing.T) {
		d := engine.Decide(decision.Input{
			Report: reportWith(map[types.ProbeName]string{types.ProbeDiskUsage: dfHealthy}),
			Policy: allowAll(),
		})
		gt.Equal(t, d.Rule, decision.RuleDefault)
		gt.Equal(t, d.Params["service_name"], decision.DefaultServiceName)
	})

	t.Run("action outside allowed list is downgraded", func(t *testing.T) {
		d := engine.Decide(decision.Input{
			Report: reportWith(map[types.ProbeName]string{types.ProbeDiskUsage: dfCritical}),
			Policy: &policy.Remediation{AllowedActions: []types.ActionName{types.ActionRestartService}},
		})
		gt.Equal(t, d.Action, types.ActionManualIntervention)
		gt.Equal(t, d.Rule, decision.RuleNotAllowed)
	})

	t.Run("impact ceiling is enforced", func(t *testing.T) {
		d := engine.Decide(decision.Input{
			Report: reportWith(map[types.ProbeName]string{types.ProbeDiskUsage: dfHealthy}),
			Policy: &policy.Remediation{AllowedActions: types.KnownActions, MaxImpact: 2},
		})
		gt.Equal(t, d.Action, types.ActionManualIntervention)
		gt.Equal(t, d.Rule, decision.RuleImpactCeiling)
	})

	t.Run("same input gives same output", func(t *testing.T) {
		in := decision.Input{
			Report: reportWith(map[types.ProbeName]string{types.ProbeDiskUsage: dfCritical}),
			Policy: allowAll(),
		}
		first := engine.Decide(in)
		for range 20 {
			gt.Equal(t, engine.Decide(in), first)
		}
	})

	t.Run("configurable threshold", func(t *testing.T) {
		d := decision.New(decision.WithDiskCriticalPercent(30)).Decide(decision.Input{
			Report: reportWith(map[types.ProbeName]string{types.ProbeDiskUsage: dfHealthy}),
			Policy: allowAll(),
		})
		gt.Equal(t, d.Action, types.ActionCleanupDisk)
	})
}

func TestMaxDiskUsage(t *testing.T) {
	v, ok := decision.MaxDiskUsage(dfCritical)
	gt.True(t, ok)
	gt.Equal(t, v, 97)

	_, ok = decision.MaxDiskUsage("no percentages")
	gt.False(t, ok)
}
