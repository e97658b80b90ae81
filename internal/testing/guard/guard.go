// Package guard switches the binaries into test mode when blank-imported
// from a test, so main packages can be exercised without touching Postgres,
// Redis or the network.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("DISPATCH_TEST_MODE") == "" {
			_ = os.Setenv("DISPATCH_TEST_MODE", "1")
		}
	})
}
