package ports

import (
	"errors"
	"fmt"
	"net/http"
)

var ErrNotFound = errors.New("not found")

var ErrConflict = errors.New("conflict")

// ErrUnauthorized: le provider a refusé la session ou les identifiants (401/403).
var ErrUnauthorized = errors.New("unauthorized")

// StatusError porte un statut HTTP non-2xx renvoyé par le provider.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("provider http error: %d %s", e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("provider http error: %d %s: %s", e.Code, http.StatusText(e.Code), e.Body)
}
