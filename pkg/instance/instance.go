package instance

import "github.com/angelmondragon/earnings-ledger/pkg/env"

// GetID identifies the running process in logs and lock values.
// EARNINGS_INSTANCE_ID wins, then the platform dyno name, then "local".
func GetID() string {
	return env.Get("INSTANCE_ID", env.Raw("DYNO", "local"))
}
