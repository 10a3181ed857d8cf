package decision

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/secmon-lab/medic/pkg/domain/model/diagnosis"
	"github.com/secmon-lab/medic/pkg/domain/model/policy"
	"github.com/secmon-lab/medic/pkg/domain/model/remediation"
	"github.com/secmon-lab/medic/pkg/domain/types"
)

const (
	DefaultDiskCriticalPercent = 95
	DefaultCleanupDirectory    = "/tmp"
	DefaultServiceName         = "app-service"

	RuleUnreachable    = "unreachable"
	RuleDiskCritical   = "disk_critical"
	RuleMemoryPressure = "memory_pressure"
	RuleDefault        = "default"
	RuleNotAllowed     = "not_allowed"
	RuleImpactCeiling  = "impact_ceiling"
)

var (
	percentPattern = regexp.MustCompile(`(\d{1,3})%`)
	oomPattern     = regexp.MustCompile(`(?i)(out of memory|oom-killer|oom_kill|killed process|cannot allocate memory)`)
)

// Input is everything a decision may depend on. Decide is a pure function of it.
type Input struct {
	Report  *diagnosis.Report
	Policy  *policy.Remediation
	Service string
}

type rule struct {
	name  string
	match func(e *Engine, in *Input) (string, bool)
	build func(e *Engine, in *Input) (types.ActionName, map[string]string)
}

// Engine applies an ordered rule table. The first matching rule wins and the
// result is then filtered through the remediation policy.
type Engine struct {
	diskCriticalPercent int
	cleanupDirectory    string
	rules               []rule
}

type Option func(*Engine)

func WithDiskCriticalPercent(p int) Option {
	return func(e *Engine) {
		e.diskCriticalPercent = p
	}
}

func WithCleanupDirectory(dir string) Option {
	return func(e *Engine) {
		e.cleanupDirectory = dir
	}
}

func New(opts ...Option) *Engine {
	e := &Engine{
		diskCriticalPercent: DefaultDiskCriticalPercent,
		cleanupDirectory:    DefaultCleanupDirectory,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.rules = []rule{
		{name: RuleUnreachable, match: matchUnreachable, build: buildManual},
		{name: RuleDiskCritical, match: matchDiskCritical, build: buildCleanupDisk},
		{name: RuleMemoryPressure, match: matchMemoryPressure, build: buildRestartService},
		{name: RuleDefault, match: matchAlways, build: buildRestartService},
	}
	return e
}

func (e *Engine) Decide(in Input) remediation.Decision {
	var d remediation.Decision
	for _, r := range e.rules {
		reason, ok := r.match(e, &in)
		if !ok {
			continue
		}
		action, params := r.build(e, &in)
		d = remediation.Decision{Action: action, Params: params, Rule: r.name, Reason: reason}
		break
	}

	return e.applyPolicy(d, in.Policy)
}

func (e *Engine) applyPolicy(d remediation.Decision, p *policy.Remediation) remediation.Decision {
	if p == nil || d.Action.IsNoop() {
		return d
	}

	if !p.Allows(d.Action) {
		return remediation.Decision{
			Action: types.ActionManualIntervention,
			Params: map[string]string{},
			Rule:   RuleNotAllowed,
			Reason: fmt.Sprintf("%s selected by %s is not in allowed actions", d.Action, d.Rule),
		}
	}

	if impact := remediation.Impact(d.Action); !p.WithinImpact(impact) {
		return remediation.Decision{
			Action: types.ActionManualIntervention,
			Params: map[string]string{},
			Rule:   RuleImpactCeiling,
			Reason: fmt.Sprintf("%s impact %d exceeds ceiling %d", d.Action, impact, p.MaxImpact),
		}
	}

	return d
}

func matchUnreachable(_ *Engine, in *Input) (string, bool) {
	if in.Report == nil {
		return "no diagnostics available", true
	}
	if in.Report.Unreachable {
		return "target unreachable during investigation", true
	}
	return "", false
}

func matchDiskCritical(e *Engine, in *Input) (string, bool) {
	out, ok := in.Report.Output(types.ProbeDiskUsage)
	if !ok {
		return "", false
	}
	usage, found := MaxDiskUsage(out)
	if !found || usage < e.diskCriticalPercent {
		return "", false
	}
	return fmt.Sprintf("disk usage %d%% >= %d%%", usage, e.diskCriticalPercent), true
}

func matchMemoryPressure(_ *Engine, in *Input) (string, bool) {
	if m := oomPattern.FindString(in.Report.Text()); m != "" {
		return "memory pressure signal: " + strings.ToLower(m), true
	}
	return "", false
}

func matchAlways(_ *Engine, _ *Input) (string, bool) {
	return "no specific rule matched", true
}

func buildManual(_ *Engine, _ *Input) (types.ActionName, map[string]string) {
	return types.ActionManualIntervention, map[string]string{}
}

func buildCleanupDisk(e *Engine, _ *Input) (types.ActionName, map[string]string) {
	return types.ActionCleanupDisk, map[string]string{
		remediation.ParamTargetDirectory: e.cleanupDirectory,
		remediation.ParamDryRun:          "false",
	}
}

func buildRestartService(_ *Engine, in *Input) (types.ActionName, map[string]string) {
	svc := in.Service
	if svc == "" {
		svc = DefaultServiceName
	}
	return types.ActionRestartService, map[string]string{
		remediation.ParamServiceName: svc,
	}
}

// MaxDiskUsage returns the highest NN% value found in df output.
func MaxDiskUsage(output string) (int, bool) {
	maxUsage, found := 0, false
	for _, m := range percentPattern.FindAllStringSubmatch(output, -1) {
		v, err := strconv.Atoi(m[1])
		if err != nil || v > 100 {
			continue
		}
		if !found || v > maxUsage {
			maxUsage, found = v, true
		}
	}
	return maxUsage, found
}
