package instance

import (
	"os"

	"github.com/angelmondragon/partsrunner-backend/pkg/env"
)

// GetID returns the process instance identifier used in logs and lock owners.
// PARTSRUNNER_WORKER_ID wins, then the hostname, then "<kind>-0".
func GetID(kind string) string {
	if id := env.Get("PARTSRUNNER_WORKER_ID", ""); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	if kind == "" {
		kind = "worker"
	}
	return kind + "-0"
}
