package engine

import "math"

// decay applies the Ebbinghaus forgetting curve to an event's age:
// max(floor, e^(-age/τ)). Unknown (0) and future timestamps do not decay.
func decay(now, timestamp int64, p Params) float64 {
	if timestamp <= 0 || timestamp >= now || p.DecayTau <= 0 {
		return 1
	}
	age := float64(now - timestamp)
	return math.Max(p.DecayFloor, math.Exp(-age/p.DecayTau))
}
