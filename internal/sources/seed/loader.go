// Package seed reads the initial host configuration from a YAML file.
//
//	api_hosts:
//	  - https://api1.domain.ext
//	clouds:
//	  - name: gitlab
//	    url: https://gitlab.domain.ext/hosts.json
package seed

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MrSnakeDoc/lineup/internal/domain"
)

// Loader handles loading and parsing of the seed file
type Loader struct {
	filePath string
}

// NewLoader creates a new seed loader
func NewLoader(filePath string) *Loader {
	return &Loader{
		filePath: filePath,
	}
}

// Load reads and parses the seed file. Cloud sources without a URL are dropped.
func (l *Loader) Load() (domain.Seed, error) {
	data, err := os.ReadFile(l.filePath)
	if err != nil {
		return domain.Seed{}, fmt.Errorf("failed to read seed file: %w", err)
	}

	var s domain.Seed
	if err := yaml.Unmarshal(data, &s); err != nil {
		return domain.Seed{}, fmt.Errorf("failed to parse seed yaml: %w", err)
	}

	clouds := make([]domain.CloudSource, 0, len(s.Clouds))
	for _, c := range s.Clouds {
		c.URL = strings.TrimSpace(c.URL)
		if c.URL == "" {
			continue
		}
		if c.Name == "" {
			c.Name = domain.DomainOf(c.URL)
		}
		clouds = append(clouds, c)
	}
	s.Clouds = clouds

	return s, nil
}

// Build returns the seed from path (optional) with hosts, when given,
// replacing the file's api hosts.
func Build(path string, hosts []string) (domain.Seed, error) {
	var s domain.Seed
	if path != "" {
		loaded, err := NewLoader(path).Load()
		if err != nil {
			return domain.Seed{}, err
		}
		s = loaded
	}
	if len(hosts) > 0 {
		s.APIHosts = hosts
	}
	return s, nil
}
