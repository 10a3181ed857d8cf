package test

import (
	"fmt"
	"os"
	"testing"
)

// EnvVars holds integration test settings read from the environment. Tests that
// need a real backend (Firestore, SSH target, Slack) skip when a key is missing.
type EnvVars struct {
	vars map[string]string
}

func NewEnvVars(t testing.TB, keys ...string) EnvVars {
	t.Helper()
	e := EnvVars{vars: make(map[string]string, len(keys))}

	for _, key := range keys {
		value, ok := os.LookupEnv(key)
		if !ok || value == "" {
			t.Skipf("skipping test because %s is not set", key)
		}
		e.vars[key] = value
	}

	return e
}

func (e EnvVars) Get(key string) string {
	if v, ok := e.vars[key]; ok {
		return v
	}
	panic(fmt.Sprintf("env var %s is not requested", key))
}
