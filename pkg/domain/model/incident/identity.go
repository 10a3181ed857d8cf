package incident

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/secmon-lab/medic/pkg/domain/model/alert"
)

// Identity decides whether two alerts are the same incident: the same target and
// alert name while the first incident is still open and younger than Window.
type Identity struct {
	Target    string
	AlertName string
	Window    time.Duration
}

func IdentityOf(a *alert.Normalized, window time.Duration) Identity {
	return Identity{Target: a.Target, AlertName: a.AlertName, Window: window}
}

func (x Identity) Key() string {
	return x.Target + "|" + x.AlertName
}

// Hash is a document-safe form of Key.
func (x Identity) Hash() string {
	sum := sha256.Sum256([]byte(x.Key()))
	return hex.EncodeToString(sum[:])
}

// Owns reports whether inc absorbs a new alert with this identity at now.
func (x Identity) Owns(inc *Incident, now time.Time) bool {
	if inc == nil || inc.State.IsTerminal() {
		return false
	}
	if inc.DedupKey != x.Key() {
		return false
	}
	return now.Sub(inc.CreatedAt) < x.Window
}
