package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCounterAndGauge(t *testing.T) {
	r := New()
	c := r.Counter("faces_indexed_total", "Faces indexed")
	c.Inc()
	c.Add(2)
	if c.Value() != 3 {
		t.Fatalf("counter = %d", c.Value())
	}

	g := r.Gauge("inflight", "In-flight records")
	g.Inc()
	g.Inc()
	g.Dec()
	if g.Value() != 1 {
		t.Fatalf("gauge = %d", g.Value())
	}

	// Same name returns the same instance.
	if r.Counter("faces_indexed_total", "") != c {
		t.Fatal("counter not deduplicated")
	}
}

func TestWithLabels(t *testing.T) {
	got := WithLabels("errors_total", "stage", "fetch")
	if got != `errors_total{stage="fetch"}` {
		t.Fatalf("got %q", got)
	}
	// Odd label count is ignored.
	if WithLabels("x", "only-key") != "x" {
		t.Fatal("expected bare name for odd kvs")
	}
}

func TestRender_LabelledCounters(t *testing.T) {
	r := New()
	r.Counter(WithLabels("errors_total", "stage", "fetch"), "Errors by stage").Inc()
	r.Counter(WithLabels("errors_total", "stage", "embed"), "").Add(2)

	out := r.Render()
	if !strings.Contains(out, "# TYPE errors_total counter") {
		t.Fatalf("missing TYPE line:\n%s", out)
	}
	if !strings.Contains(out, `errors_total{stage="embed"} 2`) {
		t.Fatalf("missing embed series:\n%s", out)
	}
	if !strings.Contains(out, `errors_total{stage="fetch"} 1`) {
		t.Fatalf("missing fetch series:\n%s", out)
	}
}

func TestHistogramRender(t *testing.T) {
	r := New()
	h := r.Histogram("fetch_seconds", "Fetch latency", []float64{0.1, 1})
	h.Observe(0.05)
	h.Observe(0.5)
	h.Observe(5)

	out := r.Render()
	for _, want := range []string{
		`fetch_seconds_bucket{le="0.1"} 1`,
		`fetch_seconds_bucket{le="1"} 2`,
		`fetch_seconds_bucket{le="+Inf"} 3`,
		"fetch_seconds_count 3",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}

func TestHandler(t *testing.T) {
	r := New()
	r.Counter("hits_total", "").Inc()

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 200 {
		t.Fatalf("status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "hits_total 1") {
		t.Fatalf("body:\n%s", rec.Body.String())
	}
}
