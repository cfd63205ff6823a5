package engine

// State of the playback engine.
//
//	Stopped --Start--> Starting --ramp-in complete--> Running
//	Running/Starting --RequestStop--> Stopping --ramp-out complete--> Stopped
//	Stopping --Start--> Starting (stream kept open, ramp restarts from zero)
type State int32

const (
	Stopped State = iota
	// Stream open, fade-in in progress
	Starting
	// Stream open, no ramp
	Running
	// Stream open, fade-out in progress
	Stopping
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Playing reports whether the engine is heading towards, or at, audible output.
func (s State) Playing() bool {
	return s == Starting || s == Running
}
