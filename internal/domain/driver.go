package domain

import "time"

// Driver represents a driver known to the availability registry.
// Available is false whenever the driver holds a non-terminal ride
// assignment; the registry is the sole authoritative writer.
type Driver struct {
	ID           string
	Lat          float64
	Lng          float64
	VehicleClass VehicleClass
	Available    bool
	LastSeen     time.Time
}
