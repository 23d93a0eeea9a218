package model

// Direction is the perturbation a tracker applied on a cycle.
// Keep these values stable; they are intended for CSV output.
type Direction string

const (
	DirectionUp   Direction = "UP"
	DirectionHold Direction = "HOLD"
	DirectionDown Direction = "DOWN"
)

// DirectionFromDelta classifies a change in reference voltage.
func DirectionFromDelta(dv float64) Direction {
	switch {
	case dv > 0:
		return DirectionUp
	case dv < 0:
		return DirectionDown
	default:
		return DirectionHold
	}
}
