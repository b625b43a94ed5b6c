package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("ODYSSEY_TEST_MODE", "1")
		if os.Getenv("DB_DRIVER") == "" {
			_ = os.Setenv("DB_DRIVER", "sqlite")
		}
		if os.Getenv("SQLITE_PATH") == "" {
			_ = os.Setenv("SQLITE_PATH", ":memory:")
		}
	})
}

func init() {
	ensureTestMode()
}

func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
