// Package guard switches the process into test mode when imported by tests,
// so config loading never enables rate limits or queue side effects.
package guard

import (
	"os"
	"sync"
)

// EnvTestMode is read by app.Config.TestMode.
const EnvTestMode = "LEDGERSYNC_TEST_MODE"

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv(EnvTestMode) == "" {
			_ = os.Setenv(EnvTestMode, "1")
		}
	})
}
