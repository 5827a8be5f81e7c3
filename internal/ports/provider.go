package ports

import (
	"context"
	"io"

	"github.com/Guilhem-Bonnet/vrc-world-sync/internal/domain"
)

type LoginResult struct {
	Identity domain.Identity
	// ChallengeMethods est non vide quand le provider exige un second facteur
	// (ex: "emailOtp", "totp", "otp").
	ChallengeMethods []string
}

func (r LoginResult) ChallengeRequired() bool { return len(r.ChallengeMethods) > 0 }

// AuthAPI est la frontière HTTP d'authentification du provider.
// Les erreurs de refus sont signalées par ErrUnauthorized, les autres statuts par *StatusError.
type AuthAPI interface {
	Login(ctx context.Context, username, password string) (LoginResult, error)
	RequestChallenge(ctx context.Context) error
	VerifyChallenge(ctx context.Context, methods []string, code string) (bool, error)
	CurrentUser(ctx context.Context) (domain.Identity, error)
	Logout(ctx context.Context) error

	Cookies() []domain.Cookie
	SetCookies(cookies []domain.Cookie)
	ClearCookies()
}

// WorldAPI renvoie le payload brut d'une world.
type WorldAPI interface {
	GetWorld(ctx context.Context, id string) ([]byte, error)
}

// Fetcher télécharge une ressource binaire (miniature).
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (io.ReadCloser, error)
}
