// Package testing pins every test binary that links it to test mode.
package testing

import (
	"os"
	"sync"
	stdtesting "testing"

	"github.com/odyssey-erp/backoffice/internal/app"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv(app.TestModeEnv, "1")
		// No closing loop may touch a developer database from a test binary.
		if os.Getenv("CLOSING_ENABLED") == "" {
			_ = os.Setenv("CLOSING_ENABLED", "false")
		}
		app.RefreshTestMode()
	})
}

func init() {
	ensureTestMode()
}

func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
