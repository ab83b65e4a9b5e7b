package resolver

import (
	"context"
	"fmt"

	"github.com/MrSnakeDoc/lineup/internal/domain"
	"github.com/MrSnakeDoc/lineup/internal/logger"
)

// ResolveCloudHost walks the cloud sources in order. Each usable host list
// replaces the stored candidates and is resolved; the first source that
// yields a host wins and later sources are not contacted.
func (r *Resolver) ResolveCloudHost(ctx context.Context) (string, error) {
	clouds, err := r.store.Clouds(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read clouds: %w", err)
	}

	r.logger.Info("cloud fallback started", logger.Int("sources", len(clouds)))

	for _, cloud := range clouds {
		log := r.logger.With(logger.String("cloud", cloud.Name), logger.String("url", cloud.URL))

		tokens, err := r.prober.FetchCloudList(ctx, cloud.URL)
		if err != nil {
			log.Warn("cloud fetch failed", logger.Error(err))
			r.metrics.CloudFetches.WithLabelValues(cloud.Name, "failed").Inc()
			r.session.failCloud(cloud.URL)
			if r.reporter != nil {
				r.reporter.ReportOnce(cloud.URL)
			}
			continue
		}

		hosts := r.decryptHosts(tokens)
		log.Info("cloud list decrypted",
			logger.Int("items", len(tokens)),
			logger.Int("hosts", len(hosts)))

		if len(hosts) == 0 {
			r.metrics.CloudFetches.WithLabelValues(cloud.Name, "empty").Inc()
			r.session.failCloud(cloud.URL)
			continue
		}
		r.metrics.CloudFetches.WithLabelValues(cloud.Name, "ok").Inc()

		if err := r.store.SetAPIHosts(ctx, hosts); err != nil {
			return "", fmt.Errorf("failed to inject cloud hosts: %w", err)
		}

		host, err := r.ResolveAPIHost(ctx)
		if err != nil {
			return "", err
		}
		if host != "" {
			return host, nil
		}

		r.session.failCloud(cloud.URL)
	}

	r.logger.Warn("all cloud sources exhausted")
	return "", nil
}

// decryptHosts decrypts every token on its own, dropping the ones that
// don't decrypt.
func (r *Resolver) decryptHosts(tokens []string) []string {
	hosts := make([]string, 0, len(tokens))
	seen := make(map[string]bool, len(tokens))
	for _, tok := range tokens {
		h := domain.Clean(r.tokens.Decrypt(tok))
		if h == "" || seen[h] {
			continue
		}
		seen[h] = true
		hosts = append(hosts, h)
	}
	return hosts
}
