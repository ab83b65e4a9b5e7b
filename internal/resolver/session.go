package resolver

import (
	"slices"
	"sync"
	"sync/atomic"
)

// Session is a point-in-time copy of the resolution state, safe to hand out.
type Session struct {
	Loading      bool     `json:"loading"`
	FailedHosts  []string `json:"failed_hosts"`
	FailedClouds []string `json:"failed_clouds"`
}

// session is owned by one Resolver. The failed lists are reset when a
// top-level resolution starts and only grow until the next one.
type session struct {
	loading atomic.Bool

	mu           sync.Mutex
	failedHosts  []string
	failedClouds []string
}

// begin claims the session. It returns false when a resolution is already
// running.
func (s *session) begin() bool {
	if !s.loading.CompareAndSwap(false, true) {
		return false
	}

	s.mu.Lock()
	s.failedHosts = nil
	s.failedClouds = nil
	s.mu.Unlock()
	return true
}

func (s *session) end() {
	s.loading.Store(false)
}

func (s *session) failHost(host string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return pushUnique(&s.failedHosts, host)
}

func (s *session) failCloud(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return pushUnique(&s.failedClouds, url)
}

func (s *session) hostFailed(host string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Contains(s.failedHosts, host)
}

func (s *session) snapshot() Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Session{
		Loading:      s.loading.Load(),
		FailedHosts:  append([]string{}, s.failedHosts...),
		FailedClouds: append([]string{}, s.failedClouds...),
	}
}

func pushUnique(list *[]string, v string) bool {
	if slices.Contains(*list, v) {
		return false
	}
	*list = append(*list, v)
	return true
}
