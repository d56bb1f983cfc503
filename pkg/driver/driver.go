package driver

import (
	"github.com/chat-gateway/backend/internal/driver"
)

// Re-export types from internal/driver so external automation engines
// can implement the Driver seam without importing internal packages.
type (
	Driver      = driver.Driver
	Event       = driver.Event
	Credentials = driver.Credentials
	Factory     = driver.Factory
)

// NewEmulated creates an emulated driver instance.
func NewEmulated(identity string, creds Credentials) *driver.Emulated {
	return driver.NewEmulated(identity, creds)
}
