// Package history keeps a short per-user list of planned routes.
package history

import (
	"errors"
	"time"
)

// Repository errors.
var (
	ErrEntryNotFound = errors.New("history entry not found")
)

// Entry is a lightweight record of one planned route request.
type Entry struct {
	ID          string
	UserID      string
	Origin      Location
	Destination Location
	Mode        string

	// SafetyScore and Grade describe the default route returned to the user.
	SafetyScore float64
	Grade       string

	CreatedAt time.Time
}

// Location is an address as typed by the user plus where it resolved to.
type Location struct {
	Text string
	Lat  float64
	Lon  float64
}
