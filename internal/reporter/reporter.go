package reporter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/MrSnakeDoc/lineup/internal/domain"
	"github.com/MrSnakeDoc/lineup/internal/logger"
	"github.com/MrSnakeDoc/lineup/internal/metrics"
	"github.com/MrSnakeDoc/lineup/internal/utils"
)

const (
	// LogPath is the failure telemetry endpoint, relative to the report base.
	LogPath = "/apiv1/domain/log"

	defaultTimeout = 5 * time.Second
)

type report struct {
	Domain     string `json:"domain"`
	AccessTime int64  `json:"access_time"`
}

// Options configures a Reporter. An empty BaseURL keeps deduplication but
// disables dispatch.
type Options struct {
	BaseURL string
	Client  *http.Client
	Timeout time.Duration
	Logger  logger.Logger
	Metrics *metrics.Metrics
}

// Reporter sends best-effort telemetry about unreachable domains. Every
// domain is reported at most once for the lifetime of the Reporter.
type Reporter struct {
	endpoint string
	client   *http.Client
	timeout  time.Duration
	logger   logger.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	mu       sync.Mutex
	reported map[string]struct{}

	inflight sync.WaitGroup
}

func New(opts Options) *Reporter {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewUnregistered()
	}

	endpoint := ""
	if base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"); base != "" {
		endpoint = base + LogPath
	}

	return &Reporter{
		endpoint: endpoint,
		client:   opts.Client,
		timeout:  opts.Timeout,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		now:      time.Now,
		reported: make(map[string]struct{}),
	}
}

// ReportOnce reports the domain of hostOrURL unless it was already reported.
// It never blocks on the network and never fails: the POST runs on its own
// goroutine with its own deadline. It returns true when the domain was new.
func (r *Reporter) ReportOnce(hostOrURL string) bool {
	d := domain.DomainOf(hostOrURL)

	r.mu.Lock()
	if _, seen := r.reported[d]; seen {
		r.mu.Unlock()
		return false
	}
	r.reported[d] = struct{}{}
	r.mu.Unlock()

	if r.endpoint == "" {
		r.metrics.ReportsTotal.WithLabelValues("disabled").Inc()
		return true
	}

	r.logger.Info("reporting failed domain", logger.String("domain", d))

	body := report{Domain: d, AccessTime: r.now().Unix()}
	r.inflight.Add(1)
	go func() {
		defer r.inflight.Done()
		if err := r.send(body); err != nil {
			r.metrics.ReportsTotal.WithLabelValues("failed").Inc()
			r.logger.Debug("failed domain report dropped",
				logger.String("domain", d),
				logger.Error(err))
			return
		}
		r.metrics.ReportsTotal.WithLabelValues("sent").Inc()
	}()
	return true
}

// Reported returns the sorted domains reported so far.
func (r *Reporter) Reported() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.reported))
	for d := range r.reported {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// Wait blocks until in-flight reports are done. Resolution never calls it;
// it exists for shutdown and tests.
func (r *Reporter) Wait() {
	r.inflight.Wait()
}

func (r *Reporter) send(body report) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send report: %w", err)
	}
	utils.Close(resp.Body)
	return nil
}
