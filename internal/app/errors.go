package app

import (
	"errors"
	"strconv"

	"github.com/Guilhem-Bonnet/vrc-world-sync/internal/ports"
)

var ErrNotFound = ports.ErrNotFound

var (
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrChallengeRejected    = errors.New("challenge rejected")
	ErrChallengeUnavailable = errors.New("no challenge code available")
	ErrNoChallengePending   = errors.New("no challenge pending")
	ErrSessionExpired       = errors.New("session expired")
	ErrNoSession            = errors.New("no persisted session")
	ErrNotAuthenticated     = errors.New("session not authenticated")
	ErrMissingCredentials   = errors.New("missing credentials")
	// ErrAuth: la session n'a pas pu être établie ou rétablie.
	ErrAuth = errors.New("auth error")
)

// Codes stables des échecs par item, repris dans le rapport et l'artefact d'erreurs.
const (
	CodeInvalidURL    = "invalid_url"
	CodeAuthError     = "auth_error"
	CodeProviderError = "provider_error"
	CodeParseError    = "parse_error"
	CodeStorageError  = "storage_error"
)

// CodedError permet au pipeline de renvoyer un code d'erreur stable.
//
// Status n'est renseigné que pour provider_error (0 = erreur de transport).
type CodedError struct {
	Code    string
	Status  int
	Message string
	Err     error
}

func (e *CodedError) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if e.Code == CodeProviderError && e.Status > 0 {
		msg = e.Message + " (status " + strconv.Itoa(e.Status) + ")"
	}
	if e.Err == nil {
		return msg
	}
	if msg == "" {
		return e.Err.Error()
	}
	return msg + ": " + e.Err.Error()
}

func (e *CodedError) Unwrap() error { return e.Err }

// Reason formate l'erreur pour l'artefact "<url> - <reason>".
func (e *CodedError) Reason() string {
	if e == nil {
		return ""
	}
	return e.Code + ": " + e.Error()
}

func codedErr(code, msg string, err error) *CodedError {
	return &CodedError{Code: code, Message: msg, Err: err}
}

// IsAuthFailure indique une erreur invalidant la session partagée.
func IsAuthFailure(err error) bool {
	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code == CodeAuthError
	}
	return errors.Is(err, ErrAuth)
}
