package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/Guilhem-Bonnet/vrc-world-sync/internal/domain"
	"github.com/Guilhem-Bonnet/vrc-world-sync/internal/ports"
)

const (
	DefaultVRChatEndpoint = "https://api.vrchat.cloud/api/1/"
	DefaultUserAgent      = "vrc-world-sync/dev (+https://github.com/Guilhem-Bonnet/vrc-world-sync)"

	maxPayloadBytes = 8 << 20
	maxErrorBody    = 512
)

const (
	ChallengeEmailOTP = "emailOtp"
	ChallengeTOTP     = "totp"
)

type VRChatOptions struct {
	Endpoint  string
	UserAgent string
	Timeout   time.Duration
	// MinInterval espace toutes les requêtes sortantes (0 = pas de pacing).
	MinInterval time.Duration
}

func DefaultVRChatOptions() VRChatOptions {
	return VRChatOptions{
		Endpoint:    DefaultVRChatEndpoint,
		UserAgent:   DefaultUserAgent,
		Timeout:     30 * time.Second,
		MinInterval: 500 * time.Millisecond,
	}
}

// VRChatClient implémente ports.AuthAPI, ports.WorldAPI et ports.Fetcher.
// Les cookies de session vivent dans le cookie jar du client HTTP.
//
// Le client n'est pas prévu pour un usage concurrent: un run = un client.
type VRChatClient struct {
	endpoint  *url.URL
	userAgent string
	client    *http.Client
	limiter   *rate.Limiter
}

func NewVRChatClient(opts VRChatOptions) (*VRChatClient, error) {
	def := DefaultVRChatOptions()
	if strings.TrimSpace(opts.Endpoint) == "" {
		opts.Endpoint = def.Endpoint
	}
	if strings.TrimSpace(opts.UserAgent) == "" {
		opts.UserAgent = def.UserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}

	endpoint, err := url.Parse(strings.TrimSpace(opts.Endpoint))
	if err != nil || endpoint.Scheme == "" || endpoint.Host == "" {
		return nil, fmt.Errorf("invalid vrchat endpoint %q", opts.Endpoint)
	}
	if !strings.HasSuffix(endpoint.Path, "/") {
		endpoint.Path += "/"
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	limit := rate.Inf
	if opts.MinInterval > 0 {
		limit = rate.Every(opts.MinInterval)
	}

	return &VRChatClient{
		endpoint:  endpoint,
		userAgent: opts.UserAgent,
		client:    &http.Client{Timeout: opts.Timeout, Jar: jar},
		limiter:   rate.NewLimiter(limit, 1),
	}, nil
}

type currentUserPayload struct {
	ID                    string          `json:"id"`
	DisplayName           string          `json:"displayName"`
	RequiresTwoFactorAuth json.RawMessage `json:"requiresTwoFactorAuth"`
}

type verifyPayload struct {
	Verified bool `json:"verified"`
}

func (c *VRChatClient) Login(ctx context.Context, username, password string) (ports.LoginResult, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "auth/user", nil)
	if err != nil {
		return ports.LoginResult{}, err
	}
	// L'API attend user/pass URL-encodés avant l'encodage base64.
	req.SetBasicAuth(encodeCredential(username), encodeCredential(password))

	var out currentUserPayload
	if err := c.doJSON(req, &out); err != nil {
		return ports.LoginResult{}, err
	}
	if methods := parseChallengeMethods(out.RequiresTwoFactorAuth); len(methods) > 0 {
		return ports.LoginResult{ChallengeMethods: methods}, nil
	}
	if out.ID == "" {
		return ports.LoginResult{}, errors.New("login: response without user id")
	}
	return ports.LoginResult{Identity: domain.Identity{ID: out.ID, DisplayName: out.DisplayName}}, nil
}

func (c *VRChatClient) RequestChallenge(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodPost, "auth/twofactorauth/emailotp/send", nil)
	if err != nil {
		return err
	}
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))

	// 404: endpoint absent, le code est probablement déjà parti.
	if resp.StatusCode == http.StatusNotFound || isSuccess(resp.StatusCode) {
		return nil
	}
	return &ports.StatusError{Code: resp.StatusCode}
}

func (c *VRChatClient) VerifyChallenge(ctx context.Context, methods []string, code string) (bool, error) {
	body, err := json.Marshal(map[string]string{"code": code})
	if err != nil {
		return false, err
	}

	var lastErr error
	rejected := false
	for _, path := range verifyEndpoints(methods) {
		req, err := c.newRequest(ctx, http.MethodPost, path, body)
		if err != nil {
			return false, err
		}
		resp, err := c.do(req)
		if err != nil {
			return false, err
		}

		switch {
		case isSuccess(resp.StatusCode):
			var out verifyPayload
			derr := json.NewDecoder(io.LimitReader(resp.Body, maxErrorBody)).Decode(&out)
			resp.Body.Close()
			if derr == nil && out.Verified {
				return true, nil
			}
			rejected = true
		case resp.StatusCode == http.StatusNotFound:
			resp.Body.Close()
		case resp.StatusCode < 500:
			resp.Body.Close()
			rejected = true
		default:
			lastErr = statusError(resp)
			resp.Body.Close()
		}
	}
	if !rejected && lastErr != nil {
		return false, lastErr
	}
	return false, nil
}

func (c *VRChatClient) CurrentUser(ctx context.Context) (domain.Identity, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "auth/user", nil)
	if err != nil {
		return domain.Identity{}, err
	}
	var out currentUserPayload
	if err := c.doJSON(req, &out); err != nil {
		return domain.Identity{}, err
	}
	// Cookie "auth" seul, sans second facteur validé.
	if len(parseChallengeMethods(out.RequiresTwoFactorAuth)) > 0 || out.ID == "" {
		return domain.Identity{}, ports.ErrUnauthorized
	}
	return domain.Identity{ID: out.ID, DisplayName: out.DisplayName}, nil
}

func (c *VRChatClient) Logout(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodPut, "logout", nil)
	if err != nil {
		return err
	}
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if isSuccess(resp.StatusCode) {
		return nil
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return ports.ErrUnauthorized
	}
	return statusError(resp)
}

func (c *VRChatClient) GetWorld(ctx context.Context, id string) ([]byte, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "worlds/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ports.ErrUnauthorized
	}
	if !isSuccess(resp.StatusCode) {
		return nil, statusError(resp)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxPayloadBytes))
}

// Fetch télécharge une ressource absolue (miniatures) avec les cookies de session.
func (c *VRChatClient) Fetch(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("invalid asset url %q", rawURL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "image/*,*/*;q=0.5")

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if !isSuccess(resp.StatusCode) {
		defer resp.Body.Close()
		return nil, statusError(resp)
	}
	return resp.Body, nil
}

func (c *VRChatClient) Cookies() []domain.Cookie {
	var out []domain.Cookie
	for _, ck := range c.client.Jar.Cookies(c.endpoint) {
		out = append(out, domain.Cookie{Name: ck.Name, Value: ck.Value})
	}
	return out
}

func (c *VRChatClient) SetCookies(cookies []domain.Cookie) {
	hc := make([]*http.Cookie, 0, len(cookies))
	for _, ck := range cookies {
		if ck.Name == "" {
			continue
		}
		hc = append(hc, &http.Cookie{Name: ck.Name, Value: ck.Value, Path: "/"})
	}
	c.client.Jar.SetCookies(c.endpoint, hc)
}

func (c *VRChatClient) ClearCookies() {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return
	}
	c.client.Jar = jar
}

func (c *VRChatClient) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	u := c.endpoint.ResolveReference(&url.URL{Path: path})
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), r)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *VRChatClient) do(req *http.Request) (*http.Response, error) {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return c.client.Do(req)
}

func (c *VRChatClient) doJSON(req *http.Request, out any) error {
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return ports.ErrUnauthorized
	}
	if !isSuccess(resp.StatusCode) {
		return statusError(resp)
	}
	return json.NewDecoder(io.LimitReader(resp.Body, maxPayloadBytes)).Decode(out)
}

func statusError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &ports.StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
}

func isSuccess(code int) bool { return code >= 200 && code < 300 }

func encodeCredential(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// parseChallengeMethods accepte la forme liste (["emailOtp"]) et l'ancienne forme booléenne.
func parseChallengeMethods(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	var flag bool
	if err := json.Unmarshal(raw, &flag); err == nil && flag {
		return []string{ChallengeEmailOTP, ChallengeTOTP}
	}
	return nil
}

func verifyEndpoints(methods []string) []string {
	var out []string
	seen := map[string]bool{}
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	for _, m := range methods {
		switch strings.ToLower(strings.TrimSpace(m)) {
		case "emailotp":
			add("auth/twofactorauth/emailotp/verify")
		case "totp":
			add("auth/twofactorauth/totp/verify")
		case "otp":
			add("auth/twofactorauth/otp/verify")
		}
	}
	if len(out) == 0 {
		add("auth/twofactorauth/emailotp/verify")
		add("auth/twofactorauth/totp/verify")
	}
	return out
}
