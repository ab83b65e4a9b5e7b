package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/lineup/internal/crypt"
	"github.com/MrSnakeDoc/lineup/internal/domain"
	"github.com/MrSnakeDoc/lineup/internal/logger"
	"github.com/MrSnakeDoc/lineup/internal/metrics"
	"github.com/MrSnakeDoc/lineup/internal/utils"
)

const (
	// ConfigPath is the health/config endpoint of an API host.
	ConfigPath = "/apiv1/latest-redbook-conf"
	// PingPath is the liveness file served by frontend hosts.
	PingPath = "/ping.txt"

	// DefaultTimeout bounds a single probe.
	DefaultTimeout = 5 * time.Second

	maxBodyBytes = 1 << 20
)

var (
	ErrBadStatus     = errors.New("unexpected http status")
	ErrInvalidJSON   = errors.New("invalid json response")
	ErrUndecryptable = errors.New("response payload could not be decrypted")
	ErrBadStructure  = errors.New("bad response structure")
)

type Kind string

const (
	KindAPI      Kind = "api"
	KindFrontend Kind = "frontend"
)

// Result is the outcome of one timed probe.
type Result struct {
	Target  string
	Kind    Kind
	Config  *domain.RemoteConfig // set for successful API probes
	Err     error
	Elapsed time.Duration
}

func (r Result) OK() bool            { return r.Err == nil }
func (r Result) Took() time.Duration { return r.Elapsed }

// Options configures a Runner.
type Options struct {
	Envelope *crypt.Envelope
	Timeout  time.Duration
	Client   *http.Client // optional, built from Timeout when nil
	Logger   logger.Logger
	Metrics  *metrics.Metrics
}

// Runner issues single network checks. It has no side effects on the host
// list; callers decide what a failure means.
type Runner struct {
	envelope *crypt.Envelope
	client   *http.Client
	timeout  time.Duration
	logger   logger.Logger
	metrics  *metrics.Metrics
}

func New(opts Options) *Runner {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Client == nil {
		opts.Client = NewHTTPClient(opts.Timeout)
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewUnregistered()
	}
	return &Runner{
		envelope: opts.Envelope,
		client:   opts.Client,
		timeout:  opts.Timeout,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
	}
}

// ProbeAPI posts an encrypted envelope to the config endpoint of host and
// validates the decrypted answer.
func (r *Runner) ProbeAPI(ctx context.Context, host string) Result {
	start := time.Now()
	cfg, err := r.fetchConfig(ctx, domain.Clean(host)+ConfigPath)
	res := Result{Target: host, Kind: KindAPI, Config: cfg, Err: err, Elapsed: time.Since(start)}
	r.observe(res)
	return res
}

// PingFrontend checks that a frontend host serves its ping file.
func (r *Runner) PingFrontend(ctx context.Context, front string) Result {
	start := time.Now()
	err := r.ping(ctx, domain.Clean(front)+PingPath)
	res := Result{Target: front, Kind: KindFrontend, Err: err, Elapsed: time.Since(start)}
	r.observe(res)
	return res
}

// FetchCloudList downloads a cloud document and returns its string entries.
func (r *Runner) FetchCloudList(ctx context.Context, url string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	r.logger.Debug("fetching cloud list", logger.String("url", url))

	body, err := r.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("%w: expected array: %v", ErrInvalidJSON, err)
	}

	tokens := make([]string, 0, len(items))
	for _, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err != nil {
			continue
		}
		tokens = append(tokens, s)
	}
	return tokens, nil
}

func (r *Runner) fetchConfig(ctx context.Context, url string) (*domain.RemoteConfig, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := r.envelope.Wrap(struct{}{})
	if err != nil {
		return nil, fmt.Errorf("failed to wrap request: %w", err)
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	r.logger.Debug("probing api host", logger.String("url", url))

	body, err := r.do(ctx, http.MethodPost, url, payload)
	if err != nil {
		return nil, err
	}

	var outer map[string]json.RawMessage
	if err := json.Unmarshal(body, &outer); err != nil || outer == nil {
		return nil, ErrInvalidJSON
	}

	plain := r.envelope.Open(body)
	if plain == nil {
		return nil, ErrUndecryptable
	}

	var cfg domain.RemoteConfig
	if err := json.Unmarshal(plain, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadStructure, err)
	}
	if !cfg.Valid() {
		return nil, fmt.Errorf("%w: errcode=%d data=%t", ErrBadStructure, cfg.ErrCode, cfg.Data != nil)
	}
	return &cfg, nil
}

func (r *Runner) ping(ctx context.Context, url string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	r.logger.Debug("pinging frontend", logger.String("url", url))

	_, err := r.do(ctx, http.MethodGet, url, nil)
	return err
}

// do performs the request and returns the body of a 2xx answer.
func (r *Runner) do(ctx context.Context, method, url string, payload []byte) ([]byte, error) {
	var reqBody io.Reader = http.NoBody
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Cache-Control", "no-store")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer utils.Close(resp.Body)

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %d", ErrBadStatus, resp.StatusCode)
	}
	return body, nil
}

func (r *Runner) observe(res Result) {
	outcome := "ok"
	if !res.OK() {
		outcome = "failed"
	}
	r.metrics.ProbesTotal.WithLabelValues(string(res.Kind), outcome).Inc()
	r.metrics.ProbeDuration.WithLabelValues(string(res.Kind)).Observe(res.Elapsed.Seconds())

	if res.OK() {
		r.logger.Debug("probe ok",
			logger.String("kind", string(res.Kind)),
			logger.String("target", res.Target),
			logger.Duration("elapsed", res.Elapsed))
		return
	}
	r.logger.Info("probe failed",
		logger.String("kind", string(res.Kind)),
		logger.String("target", res.Target),
		logger.Duration("elapsed", res.Elapsed),
		logger.Error(res.Err))
}
