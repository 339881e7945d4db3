package worker

import "time"

// State is a worker's position in the lifecycle state machine:
//
//	Starting -> Running -> (Exited | Crashed) -> RestartPending -> Starting
//
// Stopped is terminal and reachable only through an operator-initiated stop
// or the shutdown coordinator, never from a spontaneous exit.
type State string

const (
	StateStarting       State = "starting"
	StateRunning        State = "running"
	StateExited         State = "exited"
	StateCrashed        State = "crashed"
	StateRestartPending State = "restart-pending"
	StateStopped        State = "stopped"
)

// Status is a point-in-time snapshot of one worker handle.
type Status struct {
	Name      string    `json:"name"`
	State     State     `json:"state"`
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
	StoppedAt time.Time `json:"stopped_at"`
	ExitErr   error     `json:"exit_error,omitempty"`
	Restarts  int       `json:"restarts"`
}

// Alive reports whether the state counts as a live child for shutdown
// purposes (graceful termination is delivered to Starting and Running).
func (s State) Alive() bool {
	return s == StateStarting || s == StateRunning
}
