package chrome_test

import (
	"testing"

	"github.com/tomyan/consolecap/internal/driver/drivertest"
	"github.com/tomyan/consolecap/internal/testutil"
)

func TestTabConformance(t *testing.T) {
	drivertest.Conformance(t, testutil.Tab(t))
}
