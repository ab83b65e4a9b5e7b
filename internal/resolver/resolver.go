// Package resolver picks the API and frontend hosts the client should talk
// to. Direct candidates are probed first; cloud host lists are the fallback.
package resolver

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/MrSnakeDoc/lineup/internal/domain"
	"github.com/MrSnakeDoc/lineup/internal/logger"
	"github.com/MrSnakeDoc/lineup/internal/metrics"
	"github.com/MrSnakeDoc/lineup/internal/probe"
	"github.com/MrSnakeDoc/lineup/internal/store"
)

var (
	ErrInProgress      = errors.New("resolution already in progress")
	ErrNoAvailableHost = errors.New("no available backend found")
)

// Prober performs single timed network checks.
type Prober interface {
	ProbeAPI(ctx context.Context, host string) probe.Result
	PingFrontend(ctx context.Context, url string) probe.Result
	FetchCloudList(ctx context.Context, url string) ([]string, error)
}

// Reporter receives hosts and cloud sources that failed.
type Reporter interface {
	ReportOnce(hostOrURL string) bool
}

// ImageDecrypter turns an advert image path into a data URI.
type ImageDecrypter interface {
	DecryptImage(ctx context.Context, image string) (string, error)
}

// TokenDecrypter decrypts one cloud list entry, returning "" when it can't.
type TokenDecrypter interface {
	Decrypt(token string) string
}

type Options struct {
	Store    store.HostStore
	Prober   Prober
	Reporter Reporter
	Images   ImageDecrypter // optional, adverts are ignored when nil
	Tokens   TokenDecrypter
	Logger   logger.Logger
	Metrics  *metrics.Metrics
}

type Resolver struct {
	store    store.HostStore
	prober   Prober
	reporter Reporter
	images   ImageDecrypter
	tokens   TokenDecrypter
	logger   logger.Logger
	metrics  *metrics.Metrics

	session session
}

func New(opts Options) *Resolver {
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewUnregistered()
	}

	return &Resolver{
		store:    opts.Store,
		prober:   opts.Prober,
		reporter: opts.Reporter,
		images:   opts.Images,
		tokens:   opts.Tokens,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
	}
}

// Resolve runs one top-level resolution: direct hosts, then cloud sources.
// A call made while another one runs returns ErrInProgress without waiting.
func (r *Resolver) Resolve(ctx context.Context) (string, error) {
	if !r.session.begin() {
		r.logger.Info("resolution ignored: already loading")
		return "", ErrInProgress
	}
	defer r.session.end()

	r.logger.Info("host resolution started")
	defer r.logger.Info("host resolution finished")

	host, err := r.ResolveAPIHost(ctx)
	if err != nil {
		r.metrics.Resolutions.WithLabelValues("direct", "error").Inc()
		return "", err
	}
	if host != "" {
		r.metrics.Resolutions.WithLabelValues("direct", "ok").Inc()
		return host, nil
	}

	r.logger.Info("switching to cloud fallback")
	host, err = r.ResolveCloudHost(ctx)
	if err != nil {
		r.metrics.Resolutions.WithLabelValues("cloud", "error").Inc()
		return "", err
	}
	if host != "" {
		r.metrics.Resolutions.WithLabelValues("cloud", "ok").Inc()
		return host, nil
	}

	snap := r.session.snapshot()
	r.metrics.Resolutions.WithLabelValues("none", "failed").Inc()
	r.logger.Error("no available backend",
		logger.Strings("failed_hosts", snap.FailedHosts),
		logger.Strings("failed_clouds", snap.FailedClouds))
	return "", ErrNoAvailableHost
}

// Snapshot returns a copy of the current session state.
func (r *Resolver) Snapshot() Session {
	return r.session.snapshot()
}

// ResolveAPIHost probes every stored candidate, waits for all of them and
// persists the fastest valid one. It returns "" when nothing answered
// correctly; the error is reserved for store failures.
func (r *Resolver) ResolveAPIHost(ctx context.Context) (string, error) {
	hosts, err := r.store.APIHosts(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read api hosts: %w", err)
	}

	candidates := make([]string, 0, len(hosts))
	for _, h := range hosts {
		if domain.IsURL(h) && !r.session.hostFailed(h) {
			candidates = append(candidates, h)
		}
	}

	if len(candidates) == 0 {
		r.logger.Warn("no api hosts to probe")
		return "", r.setAPIEndpoint(ctx, "")
	}

	r.logger.Info("checking api hosts", logger.Int("candidates", len(candidates)))

	results, err := fanOut(ctx, candidates, r.probeAPI)
	if err != nil {
		return "", err
	}

	idx := domain.SelectFastest(results)
	if idx < 0 {
		r.logger.Warn("all api hosts failed", logger.Int("candidates", len(candidates)))
		return "", r.setAPIEndpoint(ctx, "")
	}

	best := results[idx]
	host := domain.Clean(best.Target)
	r.logger.Info("fastest api host",
		logger.String("host", host),
		logger.Duration("elapsed", best.Elapsed))

	if err := r.setAPIEndpoint(ctx, host); err != nil {
		return "", err
	}

	var data domain.ConfigData
	if best.Config.Valid() {
		data = *best.Config.Data
	}
	if err := r.refreshAdvert(ctx, data.Advert); err != nil {
		return "", err
	}
	if err := r.resolveFrontend(ctx, data.URLs); err != nil {
		return "", err
	}

	return host, nil
}

// probeAPI checks one candidate. A failed host is recorded for the session,
// reported and dropped from the store.
func (r *Resolver) probeAPI(ctx context.Context, host string) (probe.Result, error) {
	res := r.prober.ProbeAPI(ctx, host)
	if res.OK() || ctx.Err() != nil {
		return res, nil
	}

	r.session.failHost(host)
	if r.reporter != nil {
		r.reporter.ReportOnce(host)
	}
	if err := r.store.RemoveAPIHost(ctx, host); err != nil {
		return res, fmt.Errorf("failed to remove api host %s: %w", host, err)
	}
	return res, nil
}

func (r *Resolver) pingFrontend(ctx context.Context, url string) (probe.Result, error) {
	return r.prober.PingFrontend(ctx, url), nil
}

func (r *Resolver) resolveFrontend(ctx context.Context, urls []string) error {
	fronts := domain.FilterURLs(urls)
	r.logger.Debug("frontend candidates", logger.Int("count", len(fronts)))

	if len(fronts) == 0 {
		return r.setFrontendEndpoint(ctx, "")
	}

	results, err := fanOut(ctx, fronts, r.pingFrontend)
	if err != nil {
		return err
	}

	idx := domain.SelectFastest(results)
	if idx < 0 {
		r.logger.Warn("no working frontend url", logger.Int("candidates", len(fronts)))
		return r.setFrontendEndpoint(ctx, "")
	}

	r.logger.Info("fastest frontend",
		logger.String("url", results[idx].Target),
		logger.Duration("elapsed", results[idx].Elapsed))
	return r.setFrontendEndpoint(ctx, results[idx].Target)
}

// refreshAdvert decrypts the advert image only when it differs from the
// stored one. Decrypt problems never fail the resolution.
func (r *Resolver) refreshAdvert(ctx context.Context, ad *domain.Advert) error {
	if ad == nil || ad.Image == "" {
		r.logger.Debug("no advert in response")
		return nil
	}
	if r.images == nil {
		return nil
	}

	current, err := r.store.Advert(ctx)
	if err != nil {
		return fmt.Errorf("failed to read advert: %w", err)
	}
	if current != nil && current.Image == ad.Image {
		r.logger.Debug("advert unchanged, skip decrypt", logger.String("image", ad.Image))
		return nil
	}

	r.logger.Info("new advert detected, decrypting", logger.String("image", ad.Image))
	uri, err := r.images.DecryptImage(ctx, ad.Image)
	if err != nil {
		r.logger.Warn("advert decrypt failed",
			logger.String("image", ad.Image),
			logger.Error(err))
		return nil
	}
	if uri == "" {
		r.logger.Warn("advert decrypt returned an empty image", logger.String("image", ad.Image))
		return nil
	}

	if err := r.store.SetAdvert(ctx, ad.Asset(uri)); err != nil {
		return fmt.Errorf("failed to save advert: %w", err)
	}
	return nil
}

func (r *Resolver) setAPIEndpoint(ctx context.Context, host string) error {
	if err := r.store.SetAPIEndpoint(ctx, host); err != nil {
		return fmt.Errorf("failed to save api endpoint: %w", err)
	}
	if host == "" {
		r.metrics.EndpointsReady.Set(0)
	} else {
		r.metrics.EndpointsReady.Set(1)
	}
	return nil
}

func (r *Resolver) setFrontendEndpoint(ctx context.Context, url string) error {
	if err := r.store.SetFrontendEndpoint(ctx, url); err != nil {
		return fmt.Errorf("failed to save frontend endpoint: %w", err)
	}
	return nil
}

// fanOut runs check once per target concurrently and waits for every one of
// them. Results keep the order of targets.
func fanOut(ctx context.Context, targets []string, check func(context.Context, string) (probe.Result, error)) ([]probe.Result, error) {
	results := make([]probe.Result, len(targets))

	var g errgroup.Group
	for i, target := range targets {
		g.Go(func() error {
			res, err := check(ctx, target)
			results[i] = res
			return err
		})
	}

	return results, g.Wait()
}
