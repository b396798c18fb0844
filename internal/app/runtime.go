package app

import (
	"os"
	"sync"
)

// testModeEnv is set by the testing package and internal/testing/guard.
const testModeEnv = "ODYSSEY_TEST_MODE"

var testMode = sync.OnceValue(func() bool {
	return os.Getenv(testModeEnv) == "1"
})

// InTestMode reports whether the binaries should skip connecting to Postgres
// and Redis. The router also drops request logging in this mode.
func InTestMode() bool {
	return testMode()
}
