// Package guard forces test mode for any test binary that imports it, so
// entrypoints return before touching PostgreSQL or Redis.
package guard

import (
	"os"
	"sync"

	"github.com/odyssey-erp/backoffice/internal/app"
)

var once sync.Once

func init() {
	Ensure()
}

// Ensure sets the test-mode flag unless the caller already chose a value.
func Ensure() {
	once.Do(func() {
		if os.Getenv(app.TestModeEnv) == "" {
			_ = os.Setenv(app.TestModeEnv, "1")
		}
		app.RefreshTestMode()
	})
}
