package sandbox

import "time"

type State int

const (
	StateCreated State = iota
	StateRunning
	StateReleased
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateReleased:
		return "released"
	}
	return "unknown"
}

// Environment is a handle to one live sandbox. It belongs to a single
// evaluation and is never handed to another.
type Environment struct {
	ID        string
	Image     string
	Limits    Limits
	State     State
	CreatedAt time.Time
}

func (e *Environment) ShortID() string {
	if len(e.ID) > 12 {
		return e.ID[:12]
	}
	return e.ID
}
