package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Guilhem-Bonnet/vrc-world-sync/internal/domain"
)

type pipelineFixture struct {
	fake    *fakeVRChat
	client  *VRChatClient
	clock   *fakeClock
	repo    *memWorldRepo
	assets  *memAssets
	session *CredentialSession
	p       *Pipeline
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()
	f := newFakeVRChat(t)
	clock := newFakeClock()
	client := f.client(t)
	repo := newMemWorldRepo()
	assets := newMemAssets(client)
	session := NewCredentialSession(testLogger(), client, &memSessionStore{}, SessionConfig{
		Credentials: f.creds(),
		Now:         clock.Now,
	})
	p := NewPipeline(testLogger(), repo, session, client, assets, PipelineConfig{Now: clock.Now})
	return &pipelineFixture{fake: f, client: client, clock: clock, repo: repo, assets: assets, session: session, p: p}
}

func TestPipeline_FetchStoresNormalizedWorld(t *testing.T) {
	fx := newPipelineFixture(t)
	updated := fx.clock.Now().Add(-72 * time.Hour)
	fx.fake.addWorld(worldA, "Sky Garden", updated)

	src := "https://vrchat.com/home/world/" + worldA
	res := fx.p.Fetch(context.Background(), src)
	if res.Status != domain.FetchSuccess {
		t.Fatalf("expected success, got %s (%v)", res.Status, res.Err)
	}
	if !res.Network || res.Thumbnail != domain.AssetDownloaded {
		t.Fatalf("unexpected result flags: %+v", res)
	}

	w, err := fx.repo.Get(context.Background(), worldA)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if w.Name != "Sky Garden" || w.Capacity != 32 || len(w.Tags) != 2 {
		t.Fatalf("unexpected record: %+v", w)
	}
	if !w.ScrapedAt.Equal(fx.clock.Now()) || !w.SourceUpdatedAt.Equal(updated.Truncate(time.Millisecond)) {
		t.Fatalf("unexpected timestamps: scraped=%s updated=%s", w.ScrapedAt, w.SourceUpdatedAt)
	}
	if w.SourceURL != src || w.ThumbnailKey != worldA {
		t.Fatalf("unexpected source/thumbnail: %q %q", w.SourceURL, w.ThumbnailKey)
	}
	if _, ok := w.Extra["unityPackages"]; !ok {
		t.Fatalf("unknown provider fields must be kept in Extra: %v", w.Extra)
	}
}

func TestPipeline_FreshSnapshotIsCachedWithoutNetwork(t *testing.T) {
	fx := newPipelineFixture(t)
	fx.repo.byID[worldA] = domain.World{
		ID:              worldA,
		Name:            "stored",
		ScrapedAt:       fx.clock.Now().Add(-2 * time.Hour),
		SourceUpdatedAt: fx.clock.Now().Add(-100 * time.Hour),
	}

	for i := 0; i < 2; i++ {
		res := fx.p.Fetch(context.Background(), "https://vrchat.com/home/world/"+worldA)
		if res.Status != domain.FetchCached || res.World.Name != "stored" || res.Network {
			t.Fatalf("call %d: expected cached snapshot, got %+v", i, res)
		}
	}
	if fx.fake.loginCount() != 0 || fx.fake.worldCalls() != 0 {
		t.Fatalf("cached fetch must not touch the provider")
	}
}

func TestPipeline_RefetchSkipsExistingThumbnail(t *testing.T) {
	fx := newPipelineFixture(t)
	fx.fake.addWorld(worldA, "Sky Garden", fx.clock.Now().Add(-1000*time.Hour))
	ctx := context.Background()

	if res := fx.p.Fetch(ctx, worldA); res.Status != domain.FetchSuccess {
		t.Fatalf("first fetch: %s (%v)", res.Status, res.Err)
	}
	// Au-delà du plafond: refetch obligatoire, la miniature reste en cache.
	fx.clock.Advance(31 * 24 * time.Hour)
	res := fx.p.Fetch(ctx, worldA)
	if res.Status != domain.FetchSuccess || res.Thumbnail != domain.AssetSkipped {
		t.Fatalf("second fetch: %+v", res)
	}
	if fx.assets.fetches != 1 {
		t.Fatalf("expected a single thumbnail download, got %d", fx.assets.fetches)
	}
}

func TestPipeline_ReauthenticatesOnceOn401(t *testing.T) {
	fx := newPipelineFixture(t)
	fx.fake.addWorld(worldA, "Sky Garden", fx.clock.Now().Add(-72*time.Hour))
	fx.fake.with(func(f *fakeVRChat) { f.unauthorizedOnce[worldA] = true })

	res := fx.p.Fetch(context.Background(), worldA)
	if res.Status != domain.FetchSuccess {
		t.Fatalf("expected success after re-auth, got %s (%v)", res.Status, res.Err)
	}
	if got := fx.fake.loginCount(); got != 2 {
		t.Fatalf("expected exactly one re-login, got %d logins", got)
	}
}

func TestPipeline_SecondUnauthorizedIsAuthError(t *testing.T) {
	fx := newPipelineFixture(t)
	fx.fake.addWorld(worldA, "Sky Garden", fx.clock.Now().Add(-72*time.Hour))
	fx.fake.with(func(f *fakeVRChat) { f.alwaysUnauth[worldA] = true })

	res := fx.p.Fetch(context.Background(), worldA)
	if res.Status != domain.FetchFailure || res.Err == nil || res.Err.Code != CodeAuthError {
		t.Fatalf("expected auth_error, got %+v", res)
	}
	if got := fx.fake.worldCalls(); got != 2 {
		t.Fatalf("expected one retry, got %d world calls", got)
	}
}

func TestPipeline_ErrorClassification(t *testing.T) {
	fx := newPipelineFixture(t)
	ctx := context.Background()

	if res := fx.p.Fetch(ctx, "https://vrchat.com/home/world/not-a-world"); res.Err == nil || res.Err.Code != CodeInvalidURL || res.Network {
		t.Fatalf("expected invalid_url without network, got %+v", res)
	}

	fx.fake.with(func(f *fakeVRChat) { f.worldStatus[worldB] = 500 })
	res := fx.p.Fetch(ctx, worldB)
	if res.Err == nil || res.Err.Code != CodeProviderError || res.Err.Status != 500 {
		t.Fatalf("expected provider_error 500, got %+v", res.Err)
	}

	fx.fake.with(func(f *fakeVRChat) { f.worlds[worldC] = `{"id":"` + worldA + `","name":"other"}` })
	res = fx.p.Fetch(ctx, worldC)
	if res.Err == nil || res.Err.Code != CodeParseError {
		t.Fatalf("expected parse_error on id mismatch, got %+v", res.Err)
	}
	if _, err := fx.repo.Get(ctx, worldC); err == nil {
		t.Fatalf("failed fetch must not write a record")
	}
}

func TestPipeline_StorageErrorOnSnapshotLoad(t *testing.T) {
	fx := newPipelineFixture(t)
	fx.repo.failGet = errors.New("disk on fire")

	res := fx.p.Fetch(context.Background(), worldA)
	if res.Err == nil || res.Err.Code != CodeStorageError || res.Network {
		t.Fatalf("expected storage_error without network, got %+v", res)
	}
}

func TestPipeline_ThumbnailFailureDoesNotFailFetch(t *testing.T) {
	fx := newPipelineFixture(t)
	fx.fake.addWorld(worldA, "Sky Garden", fx.clock.Now().Add(-72*time.Hour))
	fx.fake.with(func(f *fakeVRChat) { delete(f.images, "/img/"+worldA+".png") })

	res := fx.p.Fetch(context.Background(), worldA)
	if res.Status != domain.FetchSuccess || res.Thumbnail != domain.AssetFailed {
		t.Fatalf("expected success with failed thumbnail, got %+v", res)
	}
	if res.World.ThumbnailKey != "" {
		t.Fatalf("thumbnail key must stay empty on failure")
	}
}

func TestPipeline_StorageErrorOnUpsert(t *testing.T) {
	fx := newPipelineFixture(t)
	updated := fx.clock.Now().Add(-72 * time.Hour)
	fx.fake.addWorld(worldA, "A", updated)
	fx.fake.addWorld(worldB, "B", updated)
	fx.repo.failUpsert = map[string]error{worldA: errors.New("database is locked")}

	res := fx.p.Fetch(context.Background(), worldA)
	if res.Status != domain.FetchFailure || res.Err == nil || res.Err.Code != CodeStorageError {
		t.Fatalf("expected storage_error, got %+v", res)
	}
	if !res.Network {
		t.Fatalf("upsert failure happens after the provider call, Network must be set")
	}
	if res.World.ID != "" {
		t.Fatalf("failed upsert must not return a record: %+v", res.World)
	}

	// Le runner pause après l'item réseau et continue.
	r, sl := newTestRunner(fx.p, &memErrorLog{})
	report := r.Run(context.Background(), []string{worldA, worldB}, 3*time.Second)
	if report.Succeeded != 1 || report.Failed != 1 || report.Aborted {
		t.Fatalf("unexpected report: %+v", report)
	}
	if len(sl.delays) != 1 || sl.delays[0] != 3*time.Second {
		t.Fatalf("expected one pause after the storage failure, got %v", sl.delays)
	}
	if _, err := fx.repo.Get(context.Background(), worldB); err != nil {
		t.Fatalf("next item must be stored: %v", err)
	}
}

func TestPipeline_RetryDisabled(t *testing.T) {
	fx := newPipelineFixture(t)
	fx.fake.addWorld(worldA, "Sky Garden", fx.clock.Now().Add(-72*time.Hour))
	fx.fake.with(func(f *fakeVRChat) { f.unauthorizedOnce[worldA] = true })
	p := NewPipeline(testLogger(), fx.repo, fx.session, fx.client, fx.assets,
		PipelineConfig{Retry: &RetryPolicy{}, Now: fx.clock.Now})

	res := p.Fetch(context.Background(), worldA)
	if res.Err == nil || res.Err.Code != CodeAuthError {
		t.Fatalf("expected auth_error without re-authentication, got %+v", res)
	}
	if fx.fake.loginCount() != 1 || fx.fake.worldCalls() != 1 {
		t.Fatalf("disabled retry must not re-login: logins=%d worldCalls=%d", fx.fake.loginCount(), fx.fake.worldCalls())
	}
}
