// Package turn tracks the lifecycle of a single chat turn.
package turn

type State int

const (
	StateIdle State = iota
	StateDetecting
	StateClassifying
	StateGenerating
	StateRendering
)

// String returns the string representation of a State
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateDetecting:
		return "DETECTING"
	case StateClassifying:
		return "CLASSIFYING"
	case StateGenerating:
		return "GENERATING"
	case StateRendering:
		return "RENDERING"
	default:
		return "UNKNOWN"
	}
}
