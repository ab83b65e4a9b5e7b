package reporter

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type captured struct {
	mu      sync.Mutex
	reports []report
}

func (c *captured) handler(t *testing.T, status int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != LogPath {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var rep report
		if err := json.NewDecoder(r.Body).Decode(&rep); err != nil {
			t.Errorf("failed to decode report: %v", err)
		}
		c.mu.Lock()
		c.reports = append(c.reports, rep)
		c.mu.Unlock()
		w.WriteHeader(status)
	}
}

func (c *captured) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.reports)
}

func TestReportOnce_Dedup(t *testing.T) {
	c := &captured{}
	srv := httptest.NewServer(c.handler(t, http.StatusOK))
	defer srv.Close()

	r := New(Options{BaseURL: srv.URL + "/"})
	r.now = func() time.Time { return time.Unix(1700000000, 0) }

	if !r.ReportOnce("https://www.bad.ext/apiv1") {
		t.Error("first report should be dispatched")
	}
	if r.ReportOnce("https://www.bad.ext") {
		t.Error("same domain must not be reported twice")
	}
	if !r.ReportOnce("gitlab") {
		t.Error("raw identifiers are reported as-is")
	}
	r.Wait()

	if got := c.count(); got != 2 {
		t.Fatalf("dispatched %d reports, want 2", got)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	domains := map[string]bool{}
	for _, rep := range c.reports {
		domains[rep.Domain] = true
		if rep.AccessTime != 1700000000 {
			t.Errorf("access_time = %d, want 1700000000", rep.AccessTime)
		}
	}
	if !domains["www.bad.ext"] || !domains["gitlab"] {
		t.Errorf("unexpected reported domains: %v", domains)
	}
}

func TestReportOnce_SwallowsErrors(t *testing.T) {
	c := &captured{}
	srv := httptest.NewServer(c.handler(t, http.StatusInternalServerError))
	defer srv.Close()

	r := New(Options{BaseURL: srv.URL})
	r.ReportOnce("https://a.ext")
	r.Wait()

	down := httptest.NewServer(http.NotFoundHandler())
	downURL := down.URL
	down.Close()

	r2 := New(Options{BaseURL: downURL, Timeout: 200 * time.Millisecond})
	start := time.Now()
	r2.ReportOnce("https://b.ext")
	if time.Since(start) > 100*time.Millisecond {
		t.Error("ReportOnce must not block on the network")
	}
	r2.Wait()
}

func TestReportOnce_NoEndpoint(t *testing.T) {
	r := New(Options{})
	if !r.ReportOnce("https://a.ext") {
		t.Error("domain should still be marked as reported")
	}
	if r.ReportOnce("https://a.ext") {
		t.Error("dedup applies without an endpoint too")
	}
	r.Wait()

	got := r.Reported()
	if len(got) != 1 || got[0] != "a.ext" {
		t.Errorf("Reported() = %v, want [a.ext]", got)
	}
}

func TestReportOnce_Concurrent(t *testing.T) {
	c := &captured{}
	srv := httptest.NewServer(c.handler(t, http.StatusOK))
	defer srv.Close()

	r := New(Options{BaseURL: srv.URL})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.ReportOnce("https://same.ext")
		}()
	}
	wg.Wait()
	r.Wait()

	if got := c.count(); got != 1 {
		t.Errorf("dispatched %d reports, want 1", got)
	}
}
