package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Guilhem-Bonnet/vrc-world-sync/internal/domain"
	"github.com/Guilhem-Bonnet/vrc-world-sync/internal/ports"
)

type AuthResult string

const (
	AuthAuthenticated     AuthResult = "authenticated"
	AuthChallengeRequired AuthResult = "challenge_required"
)

type Credentials struct {
	Username string
	Password string
}

func (c Credentials) Complete() bool {
	return strings.TrimSpace(c.Username) != "" && c.Password != ""
}

type SessionConfig struct {
	Credentials Credentials
	// Resolver fournit le code 2FA pendant EnsureAuthenticated (nil = pas de 2FA non interactive).
	Resolver ChallengeResolver
	TTL      time.Duration
	Now      func() time.Time
}

// CredentialSession porte l'état d'authentification partagé par un run.
// Un seul goroutine l'utilise à la fois.
type CredentialSession struct {
	logger   zerolog.Logger
	auth     ports.AuthAPI
	store    ports.SessionStore
	creds    Credentials
	resolver ChallengeResolver
	ttl      time.Duration
	now      func() time.Time

	state    domain.SessionState
	identity domain.Identity
	issuedAt time.Time
	methods  []string
}

func NewCredentialSession(logger zerolog.Logger, auth ports.AuthAPI, store ports.SessionStore, cfg SessionConfig) *CredentialSession {
	if cfg.TTL <= 0 {
		cfg.TTL = domain.DefaultSessionTTL
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	return &CredentialSession{
		logger:   logger.With().Str("component", "session").Logger(),
		auth:     auth,
		store:    store,
		creds:    cfg.Credentials,
		resolver: cfg.Resolver,
		ttl:      cfg.TTL,
		now:      cfg.Now,
		state:    domain.SessionUnauthenticated,
	}
}

func (s *CredentialSession) State() domain.SessionState { return s.state }

func (s *CredentialSession) Identity() domain.Identity { return s.identity }

func (s *CredentialSession) IssuedAt() time.Time { return s.issuedAt }

// PendingMethods renvoie les méthodes 2FA annoncées tant qu'un challenge est en attente.
func (s *CredentialSession) PendingMethods() []string {
	if s.state != domain.SessionAwaitingChallenge {
		return nil
	}
	return append([]string(nil), s.methods...)
}

func (s *CredentialSession) Authenticate(ctx context.Context, username, password string) (AuthResult, error) {
	if !(Credentials{Username: username, Password: password}).Complete() {
		return "", ErrMissingCredentials
	}
	s.reset()

	res, err := s.auth.Login(ctx, username, password)
	if err != nil {
		if errors.Is(err, ports.ErrUnauthorized) {
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("login: %w", err)
	}

	if res.ChallengeRequired() {
		s.state = domain.SessionAwaitingChallenge
		s.methods = append([]string(nil), res.ChallengeMethods...)
		s.logger.Info().Strs("methods", s.methods).Msg("second factor required")
		if hasMethod(s.methods, ChallengeEmailOTP) {
			if err := s.auth.RequestChallenge(ctx); err != nil {
				s.logger.Warn().Err(err).Msg("challenge delivery trigger failed")
			}
		}
		return AuthChallengeRequired, nil
	}

	s.markAuthenticated(res.Identity, s.now())
	return AuthAuthenticated, nil
}

func (s *CredentialSession) SubmitChallenge(ctx context.Context, code string) error {
	if s.state != domain.SessionAwaitingChallenge {
		return ErrNoChallengePending
	}
	code = strings.TrimSpace(code)
	if !ValidChallengeCode(code) {
		return ErrChallengeRejected
	}

	ok, err := s.auth.VerifyChallenge(ctx, s.methods, code)
	if err != nil {
		return fmt.Errorf("verify challenge: %w", err)
	}
	if !ok {
		return ErrChallengeRejected
	}

	id, err := s.auth.CurrentUser(ctx)
	if err != nil {
		s.reset()
		return fmt.Errorf("%w: confirm identity: %w", ErrAuth, err)
	}
	s.markAuthenticated(id, s.now())
	return nil
}

func (s *CredentialSession) Persist(ctx context.Context) error {
	if s.state != domain.SessionAuthenticated {
		return ErrNotAuthenticated
	}
	if s.store == nil {
		return nil
	}
	return s.store.Save(ctx, domain.Session{
		State:    s.state,
		Cookies:  s.auth.Cookies(),
		Identity: s.identity,
		IssuedAt: s.issuedAt,
	})
}

func (s *CredentialSession) Restore(ctx context.Context) error {
	if s.store == nil {
		return ErrNoSession
	}
	sess, err := s.store.Load(ctx)
	if errors.Is(err, ports.ErrNotFound) {
		return ErrNoSession
	}
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if len(sess.Cookies) == 0 {
		return ErrNoSession
	}

	// Le TTL court depuis l'émission, pas depuis la dernière restauration.
	if age := sess.Age(s.now()); sess.IssuedAt.IsZero() || age > s.ttl {
		s.reset()
		s.state = domain.SessionExpired
		s.logger.Info().Dur("age", age).Msg("persisted session expired")
		return ErrSessionExpired
	}

	s.auth.ClearCookies()
	s.auth.SetCookies(sess.Cookies)
	id, err := s.auth.CurrentUser(ctx)
	if err != nil {
		s.reset()
		return fmt.Errorf("%w: revalidate session: %w", ErrAuth, err)
	}
	s.markAuthenticated(id, sess.IssuedAt)
	return nil
}

// EnsureAuthenticated garantit une session utilisable: mémoire, puis session persistée,
// puis login complet avec les identifiants configurés.
func (s *CredentialSession) EnsureAuthenticated(ctx context.Context) error {
	if s.state == domain.SessionAuthenticated {
		if s.now().Sub(s.issuedAt) <= s.ttl {
			return nil
		}
		s.logger.Info().Msg("in-memory session past ttl")
		s.state = domain.SessionExpired
	}

	err := s.Restore(ctx)
	if err == nil {
		return nil
	}
	if cerr := ctx.Err(); cerr != nil {
		return fmt.Errorf("%w: %w", ErrAuth, cerr)
	}
	s.logger.Debug().Err(err).Msg("session restore skipped")

	if err := s.login(ctx); err != nil {
		return authErr(err)
	}
	s.persistBestEffort(ctx)
	return nil
}

// Reauthenticate abandonne la session courante et refait un login complet.
func (s *CredentialSession) Reauthenticate(ctx context.Context) error {
	s.reset()
	if err := s.login(ctx); err != nil {
		return authErr(err)
	}
	s.persistBestEffort(ctx)
	return nil
}

// Logout: déconnexion distante best effort, l'état local est toujours effacé.
// Sans cookies en mémoire, ceux de la session persistée sont utilisés même expirée.
func (s *CredentialSession) Logout(ctx context.Context) error {
	if len(s.auth.Cookies()) == 0 && s.store != nil {
		if sess, err := s.store.Load(ctx); err == nil && len(sess.Cookies) > 0 {
			s.auth.SetCookies(sess.Cookies)
		}
	}
	if s.state == domain.SessionAuthenticated || len(s.auth.Cookies()) > 0 {
		if err := s.auth.Logout(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("remote logout failed")
		}
	}
	s.reset()
	if s.store == nil {
		return nil
	}
	return s.store.Clear(ctx)
}

func (s *CredentialSession) login(ctx context.Context) error {
	res, err := s.Authenticate(ctx, s.creds.Username, s.creds.Password)
	if err != nil {
		return err
	}
	if res == AuthAuthenticated {
		return nil
	}
	return s.resolveChallenge(ctx)
}

// resolveChallenge soumet le code de chaque resolver de la chaîne. Un code refusé
// par le provider (VRCHAT_2FA_CODE périmé) passe la main au resolver suivant.
func (s *CredentialSession) resolveChallenge(ctx context.Context) error {
	resolvers := []ChallengeResolver{s.resolver}
	if chain, ok := s.resolver.(ChainResolver); ok {
		resolvers = chain
	}
	last := ErrChallengeUnavailable
	for _, r := range resolvers {
		if r == nil {
			continue
		}
		code, err := r.ChallengeCode(ctx, s.PendingMethods())
		if errors.Is(err, ErrChallengeUnavailable) {
			continue
		}
		if err != nil {
			return err
		}
		err = s.SubmitChallenge(ctx, code)
		if !errors.Is(err, ErrChallengeRejected) {
			return err
		}
		s.logger.Warn().Msg("challenge code rejected, trying next source")
		last = err
	}
	return last
}

func (s *CredentialSession) persistBestEffort(ctx context.Context) {
	if err := s.Persist(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("persist session failed")
	}
}

func (s *CredentialSession) markAuthenticated(id domain.Identity, issuedAt time.Time) {
	s.state = domain.SessionAuthenticated
	s.identity = id
	s.issuedAt = issuedAt
	s.methods = nil
	s.logger.Info().
		Str("user", id.DisplayName).
		Strs("cookies", domain.MaskCookies(s.auth.Cookies())).
		Time("issuedAt", issuedAt).
		Msg("session authenticated")
}

func (s *CredentialSession) reset() {
	s.state = domain.SessionUnauthenticated
	s.identity = domain.Identity{}
	s.issuedAt = time.Time{}
	s.methods = nil
	s.auth.ClearCookies()
}

func authErr(err error) error {
	if errors.Is(err, ErrAuth) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrAuth, err)
}

func hasMethod(methods []string, want string) bool {
	for _, m := range methods {
		if strings.EqualFold(m, want) {
			return true
		}
	}
	return false
}
