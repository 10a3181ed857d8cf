package diagnosis

import (
	"strings"
	"time"

	"github.com/secmon-lab/medic/pkg/domain/types"
)

type Entry struct {
	Probe    types.ProbeName `json:"probe"`
	Output   string          `json:"output"`
	Degraded bool            `json:"degraded"`
}

// Report is the immutable outcome of one investigation. Entries follow probe
// whitelist order.
type Report struct {
	Entries     []Entry   `json:"entries"`
	Summary     string    `json:"summary"`
	Unreachable bool      `json:"unreachable"`
	CollectedAt time.Time `json:"collected_at"`
}

// Output returns the raw output of a probe that succeeded.
func (x *Report) Output(probe types.ProbeName) (string, bool) {
	if x == nil {
		return "", false
	}
	for _, e := range x.Entries {
		if e.Probe == probe && !e.Degraded {
			return e.Output, true
		}
	}
	return "", false
}

// Text concatenates summary and every non-degraded output for keyword matching.
func (x *Report) Text() string {
	if x == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(x.Summary)
	for _, e := range x.Entries {
		if e.Degraded {
			continue
		}
		b.WriteString("\n")
		b.WriteString(e.Output)
	}
	return b.String()
}

func (x *Report) DegradedCount() int {
	if x == nil {
		return 0
	}
	n := 0
	for _, e := range x.Entries {
		if e.Degraded {
			n++
		}
	}
	return n
}
