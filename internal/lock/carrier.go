package lock

import (
	"encoding/json"
	"os"
)

// carrierEnvVar is the environment variable carrying the inheritable-lock
// handoff map across a spawn/exec boundary: absolute lock path -> decimal PID
// string of the process the lock is being handed to.
const carrierEnvVar = "INHERITABLE_LOCK"

type envCarrier map[string]string

func readCarrier() envCarrier {
	raw := os.Getenv(carrierEnvVar)
	if raw == "" {
		return envCarrier{}
	}
	var m envCarrier
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return envCarrier{}
	}
	return m
}

// writeEnv serializes the carrier back into the current process's
// environment, so that a child spawned afterwards with an inherited
// environment (env == nil to process.Spawn) picks it up.
func (c envCarrier) writeEnv() {
	if len(c) == 0 {
		os.Unsetenv(carrierEnvVar)
		return
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return
	}
	os.Setenv(carrierEnvVar, string(raw))
}
