// Package runid formats the default run identifier used to name a
// serialize run's log file when --run-id is not given.
package runid

import (
	"time"

	"github.com/google/uuid"
)

// New generates a date-prefixed run ID: YYYY-MM-DD-<uuid>.
func New() string {
	return time.Now().Format("2006-01-02") + "-" + uuid.NewString()
}
