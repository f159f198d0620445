package instance

import (
	"fmt"
	"os"

	"github.com/google/uuid"
)

// EnvWorkerID overrides the generated instance identifier.
const EnvWorkerID = "WORKER_ID"

// ID returns configured when set, then $WORKER_ID, and otherwise the hostname plus a random
// suffix so restarted pods never share a consumer name.
func ID(configured string) string {
	if configured != "" {
		return configured
	}
	if id := os.Getenv(EnvWorkerID); id != "" {
		return id
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
}
