package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNew_RegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ProbesTotal.WithLabelValues("api", "ok").Inc()
	m.ProbesTotal.WithLabelValues("api", "ok").Inc()
	m.EndpointsReady.Set(1)

	if got := testutil.ToFloat64(m.ProbesTotal.WithLabelValues("api", "ok")); got != 2 {
		t.Errorf("probes_total = %v, want 2", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	if len(families) == 0 {
		t.Error("expected registered metric families")
	}
}

func TestNew_DoubleRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)

	defer func() {
		if r := recover(); r == nil {
			t.Error("registering twice on the same registry should panic")
		}
	}()
	New(reg)
}
