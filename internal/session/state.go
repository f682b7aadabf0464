package session

import (
	"fmt"

	apperrors "github.com/wethinkt/go-glkcli/internal/errors"
)

// State is the lifecycle state of a session.
type State int

const (
	Spawned State = iota
	Running
	CheckpointInFlight
	Restoring
	Exited
)

func (s State) String() string {
	switch s {
	case Spawned:
		return "spawned"
	case Running:
		return "running"
	case CheckpointInFlight:
		return "checkpoint_in_flight"
	case Restoring:
		return "restoring"
	case Exited:
		return "exited"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Any state may move to Exited when the child dies.
var transitions = map[State][]State{
	Spawned:            {Running},
	Running:            {CheckpointInFlight},
	CheckpointInFlight: {Running},
	Restoring:          {Running},
}

func checkTransition(from, to State) error {
	if to == Exited && from != Exited {
		return nil
	}
	for _, next := range transitions[from] {
		if next == to {
			return nil
		}
	}
	return apperrors.WithMetadata(apperrors.CodeSessionState, "illegal session state change",
		map[string]string{"from": from.String(), "to": to.String()})
}

// Outcome is how a session's Run ended, or what a hotkey asks for.
type Outcome int

const (
	OutcomeContinue       Outcome = iota // keep playing
	OutcomeExited                        // the interpreter exited by itself
	OutcomeSavedAndExited                // checkpoint stored, interpreter terminated
	OutcomeReload                        // player asked to resume the latest checkpoint
	OutcomeQuit                          // player asked to leave without saving
)

func (o Outcome) String() string {
	switch o {
	case OutcomeContinue:
		return "continue"
	case OutcomeExited:
		return "exited"
	case OutcomeSavedAndExited:
		return "saved_and_exited"
	case OutcomeReload:
		return "reload"
	case OutcomeQuit:
		return "quit"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}
