package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ChallengeResolver fournit le code du second facteur quand le provider l'exige.
type ChallengeResolver interface {
	ChallengeCode(ctx context.Context, methods []string) (string, error)
}

// ValidChallengeCode: exactement 6 chiffres ASCII.
func ValidChallengeCode(code string) bool {
	if len(code) != 6 {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

// StaticChallenge renvoie un code fixé à l'avance (VRCHAT_2FA_CODE).
type StaticChallenge string

func (s StaticChallenge) ChallengeCode(_ context.Context, _ []string) (string, error) {
	code := strings.TrimSpace(string(s))
	if code == "" {
		return "", ErrChallengeUnavailable
	}
	return code, nil
}

// PromptChallenge demande le code sur un terminal.
type PromptChallenge struct {
	In          io.Reader
	Out         io.Writer
	MaxAttempts int
	// IsInteractive est évalué avant toute lecture; nil = détection TTY sur os.Stdin.
	IsInteractive func() bool
}

func NewPromptChallenge() *PromptChallenge {
	return &PromptChallenge{In: os.Stdin, Out: os.Stderr, MaxAttempts: 3}
}

func (p *PromptChallenge) ChallengeCode(ctx context.Context, methods []string) (string, error) {
	interactive := p.IsInteractive
	if interactive == nil {
		interactive = func() bool { return term.IsTerminal(int(os.Stdin.Fd())) }
	}
	if p.In == nil || !interactive() {
		return "", ErrChallengeUnavailable
	}
	out := p.Out
	if out == nil {
		out = io.Discard
	}
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	hint := "email"
	for _, m := range methods {
		if strings.EqualFold(m, ChallengeTOTP) {
			hint = "authenticator app"
			break
		}
	}

	sc := bufio.NewScanner(p.In)
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		fmt.Fprintf(out, "Enter the 6-digit code (%s): ", hint)
		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				return "", err
			}
			return "", ErrChallengeUnavailable
		}
		code := strings.TrimSpace(sc.Text())
		if ValidChallengeCode(code) {
			return code, nil
		}
		fmt.Fprintln(out, "invalid code: 6 digits expected")
	}
	return "", ErrChallengeUnavailable
}

// ChainResolver essaie chaque resolver dans l'ordre; ErrChallengeUnavailable passe au suivant.
// CredentialSession parcourt aussi la chaîne quand le provider refuse un code.
type ChainResolver []ChallengeResolver

func (c ChainResolver) ChallengeCode(ctx context.Context, methods []string) (string, error) {
	for _, r := range c {
		if r == nil {
			continue
		}
		code, err := r.ChallengeCode(ctx, methods)
		if err == nil {
			return code, nil
		}
		if !errors.Is(err, ErrChallengeUnavailable) {
			return "", err
		}
	}
	return "", ErrChallengeUnavailable
}
