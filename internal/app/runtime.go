package app

import (
	"os"
	"sync"
)

// TestModeEnv set to "1" makes the binaries exit before opening connections.
const TestModeEnv = "ODYSSEY_TEST_MODE"

var testMode = sync.OnceValue(func() bool {
	return os.Getenv(TestModeEnv) == "1"
})

// InTestMode reports whether the application should skip runtime side effects.
// The environment is read on first use.
func InTestMode() bool {
	return testMode()
}
