package domain

import (
	"errors"
	"time"
)

type RunState string

const (
	RunRunning   RunState = "running"
	RunCompleted RunState = "completed"
	// RunAborted: arrêt sur erreur d'authentification.
	RunAborted  RunState = "aborted"
	RunCanceled RunState = "canceled"
)

func (s RunState) IsTerminal() bool {
	return s == RunCompleted || s == RunAborted || s == RunCanceled
}

// Run est une exécution du BatchRunner déclenchée par l'API ou la CLI.
type Run struct {
	ID        string
	State     RunState
	Refresh   bool
	Total     int
	CreatedAt time.Time
	UpdatedAt time.Time
	// Report n'est renseigné qu'une fois le run terminé.
	Report *BatchReport
}

var ErrInvalidTransition = errors.New("invalid run state transition")

func CanTransition(from, to RunState) bool {
	if from == to {
		return true
	}
	return from == RunRunning && to.IsTerminal()
}

// FinalState déduit l'état terminal d'un rapport.
func FinalState(r BatchReport) RunState {
	switch {
	case r.Aborted:
		return RunAborted
	case r.Canceled:
		return RunCanceled
	default:
		return RunCompleted
	}
}
