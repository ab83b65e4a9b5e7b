// Package asset fetches encrypted advert images and turns them into data
// URIs, caching the result by fetch URL.
package asset

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/muesli/cache2go"

	"github.com/MrSnakeDoc/lineup/internal/crypt"
	"github.com/MrSnakeDoc/lineup/internal/logger"
	"github.com/MrSnakeDoc/lineup/internal/metrics"
	"github.com/MrSnakeDoc/lineup/internal/utils"
)

const (
	dataURIPrefix = "data:image/jpeg;base64,"

	defaultTimeout = 10 * time.Second
	maxImageBytes  = 8 << 20
)

var (
	ErrEmptyImage = errors.New("image decrypted to nothing")
	ErrBadStatus  = errors.New("unexpected http status")
)

type Options struct {
	ImageHost string
	Cipher    *crypt.AssetCipher
	Client    *http.Client
	Timeout   time.Duration
	Logger    logger.Logger
	Metrics   *metrics.Metrics
}

// Decrypter resolves image paths against the image host. Entries never
// expire; ClearCache drops them all.
type Decrypter struct {
	imageHost string
	cipher    *crypt.AssetCipher
	client    *http.Client
	logger    logger.Logger
	metrics   *metrics.Metrics
	cache     *cache2go.CacheTable
}

func New(opts Options) *Decrypter {
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

	return &Decrypter{
		imageHost: strings.TrimRight(opts.ImageHost, "/"),
		cipher:    opts.Cipher,
		client:    opts.Client,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		// cache2go tables are process-global by name
		cache: cache2go.Cache("lineup-assets-" + uuid.NewString()),
	}
}

// URL returns the fetch URL for an image path, which is also its cache key.
func (d *Decrypter) URL(image string) string {
	if strings.HasPrefix(image, "/") || d.imageHost == "" {
		return d.imageHost + image
	}
	return d.imageHost + "/" + image
}

// DecryptImage returns the image as a data URI.
func (d *Decrypter) DecryptImage(ctx context.Context, image string) (string, error) {
	full := d.URL(image)

	if item, err := d.cache.Value(full); err == nil {
		d.metrics.AssetDecrypts.WithLabelValues("cached").Inc()
		return item.Data().(string), nil
	}

	raw, err := d.fetch(ctx, full)
	if err != nil {
		d.metrics.AssetDecrypts.WithLabelValues("fetch_error").Inc()
		return "", err
	}

	plain := d.cipher.Decrypt(raw)
	if len(plain) == 0 {
		d.metrics.AssetDecrypts.WithLabelValues("empty").Inc()
		return "", fmt.Errorf("%s: %w", full, ErrEmptyImage)
	}

	uri := dataURIPrefix + base64.StdEncoding.EncodeToString(plain)
	d.cache.Add(full, 0, uri)
	d.metrics.AssetDecrypts.WithLabelValues("decrypted").Inc()
	d.logger.Debug("advert image decrypted",
		logger.String("url", full),
		logger.Int("bytes", len(plain)))
	return uri, nil
}

// Cached reports whether image already has a decrypted entry.
func (d *Decrypter) Cached(image string) bool {
	return d.cache.Exists(d.URL(image))
}

func (d *Decrypter) ClearCache() {
	d.cache.Flush()
}

func (d *Decrypter) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch image: %w", err)
	}
	defer utils.Close(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %d", ErrBadStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	return body, nil
}
