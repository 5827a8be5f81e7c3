package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Guilhem-Bonnet/vrc-world-sync/internal/domain"
	"github.com/Guilhem-Bonnet/vrc-world-sync/internal/ports"
	"github.com/rs/zerolog"
)

const (
	worldA = "wrld_4cf554b4-430c-4f8f-b53e-1f294eed230b"
	worldB = "wrld_1b482eca-bede-4de8-88a9-a0d3a7c4d7a9"
	worldC = "wrld_ba913a96-fac4-4048-a062-9aa5db092812"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type memWorldRepo struct {
	mu      sync.Mutex
	byID    map[string]domain.World
	upserts int
	failGet error
	// failUpsert: erreur d'écriture par id de world.
	failUpsert map[string]error
}

func newMemWorldRepo() *memWorldRepo {
	return &memWorldRepo{byID: map[string]domain.World{}}
}

func (r *memWorldRepo) Get(ctx context.Context, id string) (domain.World, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failGet != nil {
		return domain.World{}, r.failGet
	}
	w, ok := r.byID[id]
	if !ok {
		return domain.World{}, ports.ErrNotFound
	}
	return w, nil
}

func (r *memWorldRepo) Upsert(ctx context.Context, w domain.World) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failUpsert[w.ID]; err != nil {
		return err
	}
	r.byID[w.ID] = w
	r.upserts++
	return nil
}

func (r *memWorldRepo) List(ctx context.Context, limit int) ([]domain.World, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.World, 0, len(r.byID))
	for _, w := range r.byID {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memSessionStore struct {
	mu    sync.Mutex
	sess  *domain.Session
	saves int
}

func (s *memSessionStore) Load(ctx context.Context) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess == nil {
		return domain.Session{}, ports.ErrNotFound
	}
	return *s.sess, nil
}

func (s *memSessionStore) Save(ctx context.Context, sess domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sess = &sess
	s.saves++
	return nil
}

func (s *memSessionStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sess = nil
	return nil
}

type memRunRepo struct {
	mu   sync.Mutex
	byID map[string]domain.Run
}

func newMemRunRepo() *memRunRepo {
	return &memRunRepo{byID: map[string]domain.Run{}}
}

func (r *memRunRepo) Create(ctx context.Context, run domain.Run) (domain.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[run.ID] = run
	return run, nil
}

func (r *memRunRepo) Get(ctx context.Context, id string) (domain.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.byID[id]
	if !ok {
		return domain.Run{}, ports.ErrNotFound
	}
	return run, nil
}

func (r *memRunRepo) List(ctx context.Context, limit int) ([]domain.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Run, 0, len(r.byID))
	for _, run := range r.byID {
		out = append(out, run)
	}
	return out, nil
}

func (r *memRunRepo) Finish(ctx context.Context, id string, state domain.RunState, report domain.BatchReport) (domain.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.byID[id]
	if !ok {
		return domain.Run{}, ports.ErrNotFound
	}
	if !domain.CanTransition(run.State, state) {
		return domain.Run{}, domain.ErrInvalidTransition
	}
	run.State = state
	run.Report = &report
	r.byID[id] = run
	return run, nil
}

func (r *memRunRepo) MarkInterrupted(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, run := range r.byID {
		if run.State == domain.RunRunning {
			run.State = domain.RunCanceled
			r.byID[id] = run
			n++
		}
	}
	return n, nil
}

// memAssets imite le cache disque: une entrée non vide n'est jamais re-téléchargée.
type memAssets struct {
	mu      sync.Mutex
	fetcher ports.Fetcher
	data    map[string][]byte
	fetches int
}

func newMemAssets(f ports.Fetcher) *memAssets {
	return &memAssets{fetcher: f, data: map[string][]byte{}}
}

func (a *memAssets) Has(key string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.data[key]) > 0
}

func (a *memAssets) Download(ctx context.Context, rawURL, key string) (domain.AssetOutcome, error) {
	if a.Has(key) {
		return domain.AssetSkipped, nil
	}
	a.mu.Lock()
	a.fetches++
	a.mu.Unlock()
	rc, err := a.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return domain.AssetFailed, err
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		return domain.AssetFailed, err
	}
	if len(b) == 0 {
		return domain.AssetFailed, fmt.Errorf("empty body")
	}
	a.mu.Lock()
	a.data[key] = b
	a.mu.Unlock()
	return domain.AssetDownloaded, nil
}

type memErrorLog struct {
	mu      sync.Mutex
	reports []domain.BatchReport
}

func (l *memErrorLog) Append(ctx context.Context, r domain.BatchReport) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reports = append(l.reports, r)
	return nil
}

// fakeVRChat simule le sous-ensemble de l'API utilisé par le client.
type fakeVRChat struct {
	mu  sync.Mutex
	srv *httptest.Server

	username  string
	password  string
	twoFactor bool
	code      string

	seq    int
	tokens map[string]bool // cookie auth -> second facteur validé

	worlds           map[string]string
	worldStatus      map[string]int
	unauthorizedOnce map[string]bool
	alwaysUnauth     map[string]bool
	images           map[string][]byte
	logoutStatus     int

	calls  map[string]int
	logins int
}

func newFakeVRChat(t *testing.T) *fakeVRChat {
	t.Helper()
	f := &fakeVRChat{
		username:         "alice@example.com",
		password:         "p@ss word:1",
		code:             "123456",
		tokens:           map[string]bool{},
		worlds:           map[string]string{},
		worldStatus:      map[string]int{},
		unauthorizedOnce: map[string]bool{},
		alwaysUnauth:     map[string]bool{},
		images:           map[string][]byte{},
		calls:            map[string]int{},
	}
	f.srv = httptest.NewServer(f)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeVRChat) endpoint() string { return f.srv.URL + "/api/1/" }

func (f *fakeVRChat) client(t *testing.T) *VRChatClient {
	t.Helper()
	c, err := NewVRChatClient(VRChatOptions{Endpoint: f.endpoint(), UserAgent: "vws-test/1.0"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func (f *fakeVRChat) creds() Credentials {
	return Credentials{Username: f.username, Password: f.password}
}

// addWorld enregistre un payload minimal avec miniature.
func (f *fakeVRChat) addWorld(id, name string, updatedAt time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.worlds[id] = fmt.Sprintf(`{
		"id": %q,
		"name": %q,
		"authorId": "usr_1",
		"authorName": "Author",
		"capacity": 32,
		"visits": 1200,
		"favorites": 40,
		"tags": ["system_approved", "author_tag_game"],
		"releaseStatus": "public",
		"thumbnailImageUrl": %q,
		"created_at": "2024-01-01T00:00:00.000Z",
		"updated_at": %q,
		"unityPackages": [{"platform": "standalonewindows"}]
	}`, id, name, f.srv.URL+"/img/"+id+".png", updatedAt.UTC().Format(time.RFC3339Nano))
	f.images["/img/"+id+".png"] = []byte("\x89PNG fake " + id)
}

func (f *fakeVRChat) revokeAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens = map[string]bool{}
}

func (f *fakeVRChat) count(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

func (f *fakeVRChat) loginCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logins
}

func (f *fakeVRChat) worldCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for k, v := range f.calls {
		if strings.HasPrefix(k, "GET /api/1/worlds/") {
			n += v
		}
	}
	return n
}

func (f *fakeVRChat) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[r.Method+" "+r.URL.Path]++

	path := r.URL.Path
	switch {
	case r.Method == http.MethodGet && path == "/api/1/auth/user":
		if u, p, ok := r.BasicAuth(); ok {
			f.logins++
			uu, _ := url.QueryUnescape(u)
			pp, _ := url.QueryUnescape(p)
			if uu != f.username || pp != f.password {
				writeFakeJSON(w, http.StatusUnauthorized, `{"error":{"message":"Invalid Username/Email or Password","status_code":401}}`)
				return
			}
			f.seq++
			tok := fmt.Sprintf("authcookie_%04d_0123456789abcdef", f.seq)
			f.tokens[tok] = !f.twoFactor
			http.SetCookie(w, &http.Cookie{Name: "auth", Value: tok, Path: "/"})
			if f.twoFactor {
				writeFakeJSON(w, http.StatusOK, `{"requiresTwoFactorAuth":["emailOtp"]}`)
				return
			}
			writeFakeJSON(w, http.StatusOK, `{"id":"usr_alice","displayName":"Alice"}`)
			return
		}
		verified, ok := f.session(r)
		if !ok {
			writeFakeJSON(w, http.StatusUnauthorized, `{"error":{"message":"Missing Credentials"}}`)
			return
		}
		if !verified {
			writeFakeJSON(w, http.StatusOK, `{"requiresTwoFactorAuth":["emailOtp"]}`)
			return
		}
		writeFakeJSON(w, http.StatusOK, `{"id":"usr_alice","displayName":"Alice"}`)

	case r.Method == http.MethodPost && path == "/api/1/auth/twofactorauth/emailotp/send":
		writeFakeJSON(w, http.StatusOK, `{"success":{"message":"sent"}}`)

	case r.Method == http.MethodPost && path == "/api/1/auth/twofactorauth/emailotp/verify":
		ck, err := r.Cookie("auth")
		if err != nil {
			writeFakeJSON(w, http.StatusUnauthorized, `{}`)
			return
		}
		var body struct {
			Code string `json:"code"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if _, ok := f.tokens[ck.Value]; !ok || body.Code != f.code {
			writeFakeJSON(w, http.StatusOK, `{"verified":false}`)
			return
		}
		f.tokens[ck.Value] = true
		http.SetCookie(w, &http.Cookie{Name: "twoFactorAuth", Value: "2fa_" + ck.Value, Path: "/"})
		writeFakeJSON(w, http.StatusOK, `{"verified":true}`)

	case r.Method == http.MethodGet && strings.HasPrefix(path, "/api/1/worlds/"):
		id := strings.TrimPrefix(path, "/api/1/worlds/")
		if verified, ok := f.session(r); !ok || !verified || f.alwaysUnauth[id] {
			writeFakeJSON(w, http.StatusUnauthorized, `{"error":{"message":"Missing Credentials"}}`)
			return
		}
		if f.unauthorizedOnce[id] {
			delete(f.unauthorizedOnce, id)
			f.tokens = map[string]bool{}
			writeFakeJSON(w, http.StatusUnauthorized, `{"error":{"message":"Session expired"}}`)
			return
		}
		if st := f.worldStatus[id]; st != 0 {
			writeFakeJSON(w, st, `{"error":{"message":"boom"}}`)
			return
		}
		body, ok := f.worlds[id]
		if !ok {
			writeFakeJSON(w, http.StatusNotFound, `{"error":{"message":"World not found"}}`)
			return
		}
		writeFakeJSON(w, http.StatusOK, body)

	case r.Method == http.MethodPut && path == "/api/1/logout":
		if ck, err := r.Cookie("auth"); err == nil {
			delete(f.tokens, ck.Value)
		}
		if f.logoutStatus != 0 {
			writeFakeJSON(w, f.logoutStatus, `{}`)
			return
		}
		writeFakeJSON(w, http.StatusOK, `{"success":{"message":"Ok!"}}`)

	case r.Method == http.MethodGet && strings.HasPrefix(path, "/img/"):
		b, ok := f.images[path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(b)

	default:
		http.NotFound(w, r)
	}
}

func (f *fakeVRChat) session(r *http.Request) (verified bool, ok bool) {
	ck, err := r.Cookie("auth")
	if err != nil {
		return false, false
	}
	verified, ok = f.tokens[ck.Value]
	return verified, ok
}

func writeFakeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func testLogger() zerolog.Logger { return zerolog.Nop() }

func zerologTo(w io.Writer) zerolog.Logger { return zerolog.New(w) }

// with modifie la configuration du faux serveur sous verrou.
func (f *fakeVRChat) with(fn func(f *fakeVRChat)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}
