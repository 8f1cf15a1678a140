package store

import "time"

// Sample status values
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// MaxErrorLen bounds the stored provider error message
const MaxErrorLen = 512

// Route identifies a commute to monitor
type Route struct {
	ID        int64
	Name      string
	Enabled   bool
	StartLat  float64
	StartLng  float64
	EndLat    float64
	EndLng    float64
	Region    string
	CreatedAt time.Time
}

// Sample is one poll outcome for one (route, provider) pair at one instant.
// Exactly one of {DurationSec+DistanceM, Error} is set, per Status.
type Sample struct {
	ID          int64
	TS          time.Time
	CycleID     string
	RouteID     int64
	Provider    string
	Status      string
	DurationSec *int
	DistanceM   *int
	Error       *string
	Raw         *string
}
