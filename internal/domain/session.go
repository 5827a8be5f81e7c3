package domain

import (
	"strconv"
	"time"
)

type SessionState string

const (
	SessionUnauthenticated   SessionState = "unauthenticated"
	SessionAwaitingChallenge SessionState = "awaiting_challenge"
	SessionAuthenticated     SessionState = "authenticated"
	SessionExpired           SessionState = "expired"
)

// DefaultSessionTTL: au-delà, une session persistée n'est plus restaurable.
const DefaultSessionTTL = 24 * time.Hour

type Cookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Session est l'état persistable d'une session provider.
type Session struct {
	State    SessionState `json:"state"`
	Cookies  []Cookie     `json:"cookies"`
	Identity Identity     `json:"identity"`
	IssuedAt time.Time    `json:"issuedAt"`
}

// Age renvoie l'âge de la session à l'instant now.
func (s Session) Age(now time.Time) time.Duration {
	return now.Sub(s.IssuedAt)
}

// MaskToken rend un token loggable: 4 premiers caractères + longueur.
func MaskToken(v string) string {
	if v == "" {
		return ""
	}
	if len(v) <= 8 {
		return "***(" + strconv.Itoa(len(v)) + ")"
	}
	return v[:4] + "***(" + strconv.Itoa(len(v)) + ")"
}

// MaskCookies prépare une liste de cookies pour les logs.
func MaskCookies(cookies []Cookie) []string {
	out := make([]string, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, c.Name+"="+MaskToken(c.Value))
	}
	return out
}
