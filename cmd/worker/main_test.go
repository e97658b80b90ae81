package main

import (
	"testing"

	"github.com/odyssey-erp/truckdispatch/internal/app"
	_ "github.com/odyssey-erp/truckdispatch/internal/testing/guard"
)

func TestMainSkipsStartupInTestMode(t *testing.T) {
	app.RefreshTestMode()
	if !app.InTestMode() {
		t.Fatalf("expected test mode to be enabled")
	}
	main()
}
