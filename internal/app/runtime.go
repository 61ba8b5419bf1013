package app

import (
	"os"
	"sync"
	"sync/atomic"
)

// TestModeEnv is set to "1" by test binaries so entrypoints return before
// connecting to PostgreSQL or Redis.
const TestModeEnv = "ODYSSEY_TEST_MODE"

var (
	testModeFlag atomic.Bool
	testModeOnce sync.Once
)

func detectTestMode() {
	testModeFlag.Store(os.Getenv(TestModeEnv) == "1")
}

// InTestMode reports whether the process must skip runtime side effects.
func InTestMode() bool {
	testModeOnce.Do(detectTestMode)
	return testModeFlag.Load()
}

// RefreshTestMode re-reads the flag after the environment changed.
func RefreshTestMode() {
	detectTestMode()
}

// SchedulerEnabled reports whether this process should run the in-process
// closing loop. Test binaries never close periods.
func SchedulerEnabled(cfg *Config) bool {
	return cfg != nil && cfg.Closing.Enabled && !InTestMode()
}
