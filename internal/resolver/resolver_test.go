package resolver

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/lineup/internal/crypt"
	"github.com/MrSnakeDoc/lineup/internal/domain"
	"github.com/MrSnakeDoc/lineup/internal/probe"
	"github.com/MrSnakeDoc/lineup/internal/reporter"
	"github.com/MrSnakeDoc/lineup/internal/store"
)

const testCloudKey = "9C+^vMGy#9qynefGF2Bx1234"

var errUnreachable = errors.New("unreachable")

type reply struct {
	elapsed time.Duration
	settle  time.Duration // real wall time before returning
	err     error
	config  *domain.RemoteConfig
}

type cloudReply struct {
	tokens []string
	err    error
}

// fakeProber answers from tables and counts every call. Unknown targets fail.
type fakeProber struct {
	api    map[string]reply
	fronts map[string]reply
	clouds map[string]cloudReply

	block   chan struct{} // when set, ProbeAPI waits on it
	started chan struct{}

	mu         sync.Mutex
	apiCalls   map[string]int
	frontCalls map[string]int
	cloudCalls map[string]int
}

func newFakeProber() *fakeProber {
	return &fakeProber{
		api:        map[string]reply{},
		fronts:     map[string]reply{},
		clouds:     map[string]cloudReply{},
		apiCalls:   map[string]int{},
		frontCalls: map[string]int{},
		cloudCalls: map[string]int{},
	}
}

func (f *fakeProber) ProbeAPI(_ context.Context, host string) probe.Result {
	f.mu.Lock()
	f.apiCalls[host]++
	rep, ok := f.api[host]
	f.mu.Unlock()

	if f.started != nil {
		select {
		case f.started <- struct{}{}:
		default:
		}
	}
	if f.block != nil {
		<-f.block
	}
	if !ok {
		rep = reply{elapsed: time.Millisecond, err: errUnreachable}
	}
	time.Sleep(rep.settle)

	return probe.Result{Target: host, Kind: probe.KindAPI, Config: rep.config, Err: rep.err, Elapsed: rep.elapsed}
}

func (f *fakeProber) PingFrontend(_ context.Context, url string) probe.Result {
	f.mu.Lock()
	f.frontCalls[url]++
	rep, ok := f.fronts[url]
	f.mu.Unlock()

	if !ok {
		rep = reply{elapsed: time.Millisecond, err: errUnreachable}
	}
	time.Sleep(rep.settle)

	return probe.Result{Target: url, Kind: probe.KindFrontend, Err: rep.err, Elapsed: rep.elapsed}
}

func (f *fakeProber) FetchCloudList(_ context.Context, url string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.cloudCalls[url]++
	rep, ok := f.clouds[url]
	if !ok {
		return nil, errUnreachable
	}
	return rep.tokens, rep.err
}

func (f *fakeProber) calls(m map[string]int, key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return m[key]
}

func (f *fakeProber) totalAPICalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.apiCalls {
		n += c
	}
	return n
}

type fakeImages struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeImages) DecryptImage(_ context.Context, image string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "data:image/jpeg;base64," + image, nil
}

func (f *fakeImages) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fixture struct {
	store    *store.Memory
	prober   *fakeProber
	reporter *reporter.Reporter
	images   *fakeImages
	cloud    *crypt.CloudList
	resolver *Resolver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cloud, err := crypt.NewCloudList(testCloudKey)
	require.NoError(t, err)

	f := &fixture{
		store:    store.NewMemory(),
		prober:   newFakeProber(),
		reporter: reporter.New(reporter.Options{}),
		images:   &fakeImages{},
		cloud:    cloud,
	}
	f.resolver = New(Options{
		Store:    f.store,
		Prober:   f.prober,
		Reporter: f.reporter,
		Images:   f.images,
		Tokens:   cloud,
	})
	return f
}

func (f *fixture) hosts(t *testing.T, hosts ...string) {
	t.Helper()
	require.NoError(t, f.store.SetAPIHosts(context.Background(), hosts))
}

func (f *fixture) clouds(t *testing.T, clouds ...domain.CloudSource) {
	t.Helper()
	require.NoError(t, f.store.SetClouds(context.Background(), clouds))
}

func (f *fixture) tokens(t *testing.T, hosts ...string) []string {
	t.Helper()
	out := make([]string, len(hosts))
	for i, h := range hosts {
		tok, err := f.cloud.Encrypt(h)
		require.NoError(t, err)
		out[i] = tok
	}
	return out
}

func okConfig(urls []string, ad *domain.Advert) *domain.RemoteConfig {
	return &domain.RemoteConfig{Data: &domain.ConfigData{URLs: urls, Advert: ad}}
}

func TestResolveAPIHost_FastestValidWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const h1, h2, h3 = "https://h1.ext", "https://h2.ext", "https://h3.ext"
	f.hosts(t, h1, h2, h3)
	f.prober.api[h1] = reply{elapsed: 200 * time.Millisecond, config: okConfig(nil, nil)}
	f.prober.api[h2] = reply{elapsed: 50 * time.Millisecond, err: probe.ErrBadStructure}
	// h3 settles last but was measured fastest
	f.prober.api[h3] = reply{elapsed: 80 * time.Millisecond, settle: 30 * time.Millisecond, config: okConfig(nil, nil)}

	host, err := f.resolver.ResolveAPIHost(ctx)
	require.NoError(t, err)
	assert.Equal(t, h3, host)

	ep, _ := f.store.Endpoints(ctx)
	assert.Equal(t, h3, ep.API)

	snap := f.resolver.Snapshot()
	assert.Equal(t, []string{h2}, snap.FailedHosts)

	f.reporter.Wait()
	assert.Equal(t, []string{"h2.ext"}, f.reporter.Reported())

	remaining, _ := f.store.APIHosts(ctx)
	assert.Equal(t, []string{h1, h3}, remaining, "slower hosts are kept, failed ones dropped")
}

func TestResolveAPIHost_TieGoesToEarlierCandidate(t *testing.T) {
	f := newFixture(t)

	f.hosts(t, "https://a.ext", "https://b.ext")
	f.prober.api["https://a.ext"] = reply{elapsed: 10 * time.Millisecond, settle: 20 * time.Millisecond, config: okConfig(nil, nil)}
	f.prober.api["https://b.ext"] = reply{elapsed: 10 * time.Millisecond, config: okConfig(nil, nil)}

	host, err := f.resolver.ResolveAPIHost(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://a.ext", host)
}

func TestResolveAPIHost_NoValidCandidates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.hosts(t, "not-a-url", "ftp://files.ext", "")
	require.NoError(t, f.store.SetAPIEndpoint(ctx, "https://stale.ext"))

	host, err := f.resolver.ResolveAPIHost(ctx)
	require.NoError(t, err)
	assert.Empty(t, host)
	assert.Zero(t, f.prober.totalAPICalls(), "no network call without valid candidates")

	ep, _ := f.store.Endpoints(ctx)
	assert.Empty(t, ep.API)
}

func TestResolveAPIHost_AllFail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.hosts(t, "https://a.ext", "https://b.ext/")
	require.NoError(t, f.store.SetAPIEndpoint(ctx, "https://stale.ext"))

	host, err := f.resolver.ResolveAPIHost(ctx)
	require.NoError(t, err)
	assert.Empty(t, host)

	ep, _ := f.store.Endpoints(ctx)
	assert.Empty(t, ep.API)

	remaining, _ := f.store.APIHosts(ctx)
	assert.Empty(t, remaining)
	assert.ElementsMatch(t, []string{"https://a.ext", "https://b.ext/"}, f.resolver.Snapshot().FailedHosts)
}

func TestResolveAPIHost_WinnerIsCleaned(t *testing.T) {
	f := newFixture(t)

	f.hosts(t, "https://a.ext//")
	f.prober.api["https://a.ext//"] = reply{elapsed: time.Millisecond, config: okConfig(nil, nil)}

	host, err := f.resolver.ResolveAPIHost(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://a.ext", host)
}

func TestResolveAPIHost_Frontend(t *testing.T) {
	tests := []struct {
		name   string
		urls   []string
		fronts map[string]reply
		want   string
	}{
		{
			name: "fastest ping wins",
			urls: []string{"https://www.f1.ext/", "https://www.f2.ext", "bad url"},
			fronts: map[string]reply{
				"https://www.f1.ext": {elapsed: 90 * time.Millisecond},
				"https://www.f2.ext": {elapsed: 40 * time.Millisecond},
			},
			want: "https://www.f2.ext",
		},
		{
			name: "failures are skipped",
			urls: []string{"https://www.f1.ext", "https://www.f2.ext"},
			fronts: map[string]reply{
				"https://www.f1.ext": {elapsed: 90 * time.Millisecond},
				"https://www.f2.ext": {elapsed: 10 * time.Millisecond, err: probe.ErrBadStatus},
			},
			want: "https://www.f1.ext",
		},
		{
			name: "none working",
			urls: []string{"https://www.f1.ext"},
			want: "",
		},
		{
			name: "no urls",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			require.NoError(t, f.store.SetFrontendEndpoint(ctx, "https://stale.ext"))

			f.hosts(t, "https://api.ext")
			f.prober.api["https://api.ext"] = reply{elapsed: time.Millisecond, config: okConfig(tt.urls, nil)}
			for k, v := range tt.fronts {
				f.prober.fronts[k] = v
			}

			_, err := f.resolver.ResolveAPIHost(ctx)
			require.NoError(t, err)

			ep, _ := f.store.Endpoints(ctx)
			assert.Equal(t, tt.want, ep.Frontend)
			assert.Equal(t, "https://api.ext", ep.API)
		})
	}
}

func TestResolveAPIHost_FrontendFailuresAreNotReported(t *testing.T) {
	f := newFixture(t)

	f.hosts(t, "https://api.ext")
	f.prober.api["https://api.ext"] = reply{elapsed: time.Millisecond, config: okConfig([]string{"https://www.down.ext"}, nil)}

	_, err := f.resolver.ResolveAPIHost(context.Background())
	require.NoError(t, err)

	f.reporter.Wait()
	assert.Empty(t, f.reporter.Reported())
	assert.Empty(t, f.resolver.Snapshot().FailedHosts)
}

func TestResolveAPIHost_AdvertDecryptedOncePerImage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pos := 1
	ad := &domain.Advert{Image: "/ad/one.bin", URL: "https://promo.ext", Name: "promo", Position: &pos}
	f.hosts(t, "https://api.ext")
	f.prober.api["https://api.ext"] = reply{elapsed: time.Millisecond, config: okConfig(nil, ad)}

	for i := 0; i < 2; i++ {
		_, err := f.resolver.ResolveAPIHost(ctx)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, f.images.count())

	stored, _ := f.store.Advert(ctx)
	require.NotNil(t, stored)
	assert.Equal(t, "/ad/one.bin", stored.Image)
	assert.Equal(t, "data:image/jpeg;base64,/ad/one.bin", stored.DataURI)
	assert.Equal(t, "promo", stored.Name)
	require.NotNil(t, stored.Position)
	assert.Equal(t, 1, *stored.Position)

	f.prober.api["https://api.ext"] = reply{elapsed: time.Millisecond, config: okConfig(nil, &domain.Advert{Image: "/ad/two.bin"})}
	_, err := f.resolver.ResolveAPIHost(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, f.images.count())
}

func TestResolveAPIHost_AdvertFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.images.err = errors.New("boom")

	f.hosts(t, "https://api.ext")
	f.prober.api["https://api.ext"] = reply{elapsed: time.Millisecond, config: okConfig(nil, &domain.Advert{Image: "/ad.bin"})}

	host, err := f.resolver.ResolveAPIHost(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://api.ext", host)

	stored, _ := f.store.Advert(ctx)
	assert.Nil(t, stored)
}

func TestResolveAPIHost_NoAdvert(t *testing.T) {
	f := newFixture(t)

	f.hosts(t, "https://api.ext")
	f.prober.api["https://api.ext"] = reply{elapsed: time.Millisecond, config: okConfig(nil, &domain.Advert{})}

	_, err := f.resolver.ResolveAPIHost(context.Background())
	require.NoError(t, err)
	assert.Zero(t, f.images.count())
}

func TestResolveCloudHost_StopsAtFirstWorkingSource(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := domain.CloudSource{Name: "a", URL: "https://cloud-a.ext/list"}
	b := domain.CloudSource{Name: "b", URL: "https://cloud-b.ext/list"}
	c := domain.CloudSource{Name: "c", URL: "https://cloud-c.ext/list"}
	f.clouds(t, a, b, c)

	f.prober.clouds[a.URL] = cloudReply{tokens: f.tokens(t, "https://a1.ext", "https://a2.ext")}
	f.prober.clouds[b.URL] = cloudReply{tokens: f.tokens(t, "https://b1.ext/", "https://b2.ext")}
	f.prober.clouds[c.URL] = cloudReply{tokens: f.tokens(t, "https://c1.ext")}
	f.prober.api["https://b1.ext"] = reply{elapsed: time.Millisecond, config: okConfig(nil, nil)}
	f.prober.api["https://c1.ext"] = reply{elapsed: time.Millisecond, config: okConfig(nil, nil)}

	host, err := f.resolver.ResolveCloudHost(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://b1.ext", host)

	assert.Equal(t, 1, f.prober.calls(f.prober.cloudCalls, a.URL))
	assert.Equal(t, 1, f.prober.calls(f.prober.cloudCalls, b.URL))
	assert.Zero(t, f.prober.calls(f.prober.cloudCalls, c.URL))

	assert.Equal(t, 1, f.prober.calls(f.prober.apiCalls, "https://a1.ext"))
	assert.Equal(t, 1, f.prober.calls(f.prober.apiCalls, "https://a2.ext"))
	assert.GreaterOrEqual(t, f.prober.calls(f.prober.apiCalls, "https://b1.ext"), 1)
	assert.Zero(t, f.prober.calls(f.prober.apiCalls, "https://c1.ext"))

	assert.Equal(t, []string{a.URL}, f.resolver.Snapshot().FailedClouds)

	hosts, _ := f.store.APIHosts(ctx)
	assert.Equal(t, []string{"https://b1.ext"}, hosts, "injected list replaces the candidates")
}

func TestResolveCloudHost_FailedSources(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	down := domain.CloudSource{Name: "down", URL: "https://down.ext/list"}
	garbage := domain.CloudSource{Name: "garbage", URL: "https://garbage.ext/list"}
	f.clouds(t, down, garbage)
	f.prober.clouds[garbage.URL] = cloudReply{tokens: []string{"not-a-token", "AAAA:BBBB"}}

	host, err := f.resolver.ResolveCloudHost(ctx)
	require.NoError(t, err)
	assert.Empty(t, host)

	assert.Equal(t, []string{down.URL, garbage.URL}, f.resolver.Snapshot().FailedClouds)
	assert.Zero(t, f.prober.totalAPICalls())

	f.reporter.Wait()
	assert.Equal(t, []string{"down.ext"}, f.reporter.Reported(), "only fetch failures are reported")
}

func TestResolve_DirectHostWins(t *testing.T) {
	f := newFixture(t)

	f.hosts(t, "https://api.ext")
	f.clouds(t, domain.CloudSource{Name: "a", URL: "https://cloud-a.ext"})
	f.prober.api["https://api.ext"] = reply{elapsed: time.Millisecond, config: okConfig(nil, nil)}

	host, err := f.resolver.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://api.ext", host)
	assert.Zero(t, f.prober.calls(f.prober.cloudCalls, "https://cloud-a.ext"))
	assert.False(t, f.resolver.Snapshot().Loading)
}

func TestResolve_FailedHostNotRetriedFromCloud(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const dead, good = "https://dead.ext", "https://good.ext"
	cloud := domain.CloudSource{Name: "gitlab", URL: "https://gitlab.ext/list"}
	f.hosts(t, dead)
	f.clouds(t, cloud)
	f.prober.clouds[cloud.URL] = cloudReply{tokens: f.tokens(t, dead, good)}
	f.prober.api[good] = reply{elapsed: time.Millisecond, config: okConfig(nil, nil)}

	host, err := f.resolver.Resolve(ctx)
	require.NoError(t, err)
	assert.Equal(t, good, host)
	assert.Equal(t, 1, f.prober.calls(f.prober.apiCalls, dead), "failed host probed once per session")

	snap := f.resolver.Snapshot()
	assert.Equal(t, []string{dead}, snap.FailedHosts)
	assert.Empty(t, snap.FailedClouds)
}

func TestResolve_NothingAvailable(t *testing.T) {
	f := newFixture(t)

	host, err := f.resolver.Resolve(context.Background())
	assert.ErrorIs(t, err, ErrNoAvailableHost)
	assert.Empty(t, host)

	snap := f.resolver.Snapshot()
	assert.False(t, snap.Loading)
	assert.NotNil(t, snap.FailedHosts)
	assert.Empty(t, snap.FailedHosts)
	assert.NotNil(t, snap.FailedClouds)
	assert.Empty(t, snap.FailedClouds)
}

func TestResolve_ResetsFailedListsEachSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.hosts(t, "https://dead.ext")
	_, err := f.resolver.Resolve(ctx)
	require.ErrorIs(t, err, ErrNoAvailableHost)
	assert.Equal(t, []string{"https://dead.ext"}, f.resolver.Snapshot().FailedHosts)

	f.hosts(t, "https://alive.ext")
	f.prober.api["https://alive.ext"] = reply{elapsed: time.Millisecond, config: okConfig(nil, nil)}
	_, err = f.resolver.Resolve(ctx)
	require.NoError(t, err)
	assert.Empty(t, f.resolver.Snapshot().FailedHosts)
}

func TestResolve_RejectsConcurrentSession(t *testing.T) {
	f := newFixture(t)

	f.hosts(t, "https://slow.ext")
	f.prober.api["https://slow.ext"] = reply{elapsed: time.Millisecond, config: okConfig(nil, nil)}
	f.prober.block = make(chan struct{})
	f.prober.started = make(chan struct{}, 1)

	type outcome struct {
		host string
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		host, err := f.resolver.Resolve(context.Background())
		done <- outcome{host, err}
	}()

	select {
	case <-f.prober.started:
	case <-time.After(2 * time.Second):
		t.Fatal("first resolution never probed")
	}
	assert.True(t, f.resolver.Snapshot().Loading)

	host, err := f.resolver.Resolve(context.Background())
	assert.ErrorIs(t, err, ErrInProgress)
	assert.Empty(t, host)

	close(f.prober.block)
	first := <-done
	require.NoError(t, first.err)
	assert.Equal(t, "https://slow.ext", first.host)
	assert.Equal(t, 1, f.prober.calls(f.prober.apiCalls, "https://slow.ext"))
}

func TestSnapshot_ReturnsCopies(t *testing.T) {
	f := newFixture(t)

	f.hosts(t, "https://dead.ext")
	_, _ = f.resolver.Resolve(context.Background())

	snap := f.resolver.Snapshot()
	require.Len(t, snap.FailedHosts, 1)
	snap.FailedHosts[0] = "mutated"

	assert.Equal(t, "https://dead.ext", f.resolver.Snapshot().FailedHosts[0])
}

type failingStore struct {
	*store.Memory
}

func (failingStore) RemoveAPIHost(context.Context, string) error {
	return errors.New("store down")
}

func TestResolveAPIHost_StoreErrorSurfaces(t *testing.T) {
	f := newFixture(t)
	fs := failingStore{Memory: f.store}
	r := New(Options{Store: fs, Prober: f.prober, Reporter: f.reporter, Tokens: f.cloud})

	f.hosts(t, "https://dead.ext")
	_, err := r.ResolveAPIHost(context.Background())
	assert.Error(t, err)
}
