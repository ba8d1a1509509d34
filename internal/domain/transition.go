package domain

// allowedTransitions is the single authoritative ride status table.
// Every transition request, whether it arrives over HTTP or the
// realtime channel, is checked against this map.
var allowedTransitions = map[RideStatus][]RideStatus{
	RideStatusRequested:  {RideStatusAccepted, RideStatusCancelled},
	RideStatusAccepted:   {RideStatusOnTheWay, RideStatusInProgress, RideStatusCancelled},
	RideStatusOnTheWay:   {RideStatusInProgress},
	RideStatusInProgress: {RideStatusCompleted},
}

// CanTransition reports whether a ride may move from one status to another.
func CanTransition(from, to RideStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
