// Package guard is imported for its side effect: it enables test mode before
// any test in the importing package runs.
package guard

import (
	"os"

	"github.com/odyssey-erp/stockledger/internal/app"
)

func init() {
	if _, set := os.LookupEnv(app.TestModeEnv); !set {
		_ = os.Setenv(app.TestModeEnv, "1")
	}
	app.RefreshTestMode()
}
