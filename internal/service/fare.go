package service

import (
	"math"
	"time"

	"dispatch/internal/domain"
)

// fareRate holds the per-class pricing parameters.
type fareRate struct {
	Base      int64   // flag-fall in currency units
	PerKm     float64 // rate per kilometer
	PerMinute float64 // rate per minute
}

// fareTable is the authoritative per-class rate table.
var fareTable = map[domain.VehicleClass]fareRate{
	domain.VehicleClassEconomy:  {Base: 20, PerKm: 8, PerMinute: 1.5},
	domain.VehicleClassStandard: {Base: 30, PerKm: 12, PerMinute: 2.0},
	domain.VehicleClassPremium:  {Base: 50, PerKm: 20, PerMinute: 3.0},
}

const (
	fareCurrency = "USD"

	// Floors applied before the fare formula so near-zero trips do not
	// produce degenerate fares.
	minBillableKm  = 1.0
	minBillableMin = 5.0
)

// FareQuote is an ephemeral per-request quote. It is cached briefly by
// coordinate pair as an optimization, never persisted.
type FareQuote struct {
	PerClass        map[domain.VehicleClass]int64 `json:"per_class"`
	DistanceMeters  float64                       `json:"distance_meters"`
	DurationSeconds float64                       `json:"duration_seconds"`
	SurgeMultiplier float64                       `json:"surge_multiplier"`
	Currency        string                        `json:"currency"`
}

// QuoteFares computes the fare for every vehicle class. Pure and
// deterministic: identical inputs always yield identical output.
func QuoteFares(distanceMeters, durationSeconds float64, at time.Time) FareQuote {
	surge := surgeFor(at)

	km := distanceMeters / 1000
	if km < minBillableKm {
		km = minBillableKm
	}
	min := durationSeconds / 60
	if min < minBillableMin {
		min = minBillableMin
	}

	perClass := make(map[domain.VehicleClass]int64, len(fareTable))
	for class, rate := range fareTable {
		raw := math.Round((float64(rate.Base) + km*rate.PerKm + min*rate.PerMinute) * surge)

		lo := float64(2 * rate.Base)
		hi := float64(10 * rate.Base)
		if raw < lo {
			raw = lo
		}
		if raw > hi {
			raw = hi
		}

		perClass[class] = int64(math.Round(raw/10) * 10)
	}

	return FareQuote{
		PerClass:        perClass,
		DistanceMeters:  distanceMeters,
		DurationSeconds: durationSeconds,
		SurgeMultiplier: surge,
		Currency:        fareCurrency,
	}
}

// surgeFor returns the time-of-day surge multiplier: 1.5x during the
// morning and evening peaks, 1.3x late night, 1.0x otherwise.
func surgeFor(at time.Time) float64 {
	switch hour := at.Hour(); {
	case hour >= 7 && hour <= 9:
		return 1.5
	case hour >= 17 && hour <= 19:
		return 1.5
	case hour >= 22 || hour <= 5:
		return 1.3
	default:
		return 1.0
	}
}
