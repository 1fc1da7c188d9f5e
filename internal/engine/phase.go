package engine

// Phase is the engine's position in the iteration state machine.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseFetching
	PhaseBuilding
	PhaseDetecting
	PhaseAggregating
	PhaseEmitting
	PhaseSleeping
)

var phaseNames = [...]string{
	PhaseIdle:        "idle",
	PhaseFetching:    "fetching",
	PhaseBuilding:    "building",
	PhaseDetecting:   "detecting",
	PhaseAggregating: "aggregating",
	PhaseEmitting:    "emitting",
	PhaseSleeping:    "sleeping",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "unknown"
	}
	return phaseNames[p]
}

// MarshalText implements encoding.TextMarshaler.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}
