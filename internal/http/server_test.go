package http

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"bloomd/pkg/bloom"
	"bloomd/pkg/config"
	"bloomd/pkg/filter"
	"bloomd/pkg/registry"
)

func newTestServer(t *testing.T) (*httptest.Server, *registry.Registry) {
	t.Helper()
	reg := registry.New(registry.Options{
		DataDir:  t.TempDir(),
		Defaults: filter.Config{Params: bloom.DefaultParams()},
	})
	srv := NewServer(reg, config.HTTPConfig{Port: 0})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, reg
}

func getJSON(t *testing.T, url string, wantStatus int) Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s failed: %v", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("GET %s: expected status %d, got %d: %s", url, wantStatus, resp.StatusCode, body)
	}
	var result Response
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return result
}

func TestHealth(t *testing.T) {
	ts, _ := newTestServer(t)

	result := getJSON(t, ts.URL+"/health", http.StatusOK)
	if result.Status != StatusOK {
		t.Fatalf("Expected status %s, got: %s", StatusOK, result.Status)
	}
}

func TestListFilters(t *testing.T) {
	ts, reg := newTestServer(t)

	result := getJSON(t, ts.URL+"/filters", http.StatusOK)
	if len(result.Filters) != 0 {
		t.Fatalf("Expected no filters, got %v", result.Filters)
	}

	for _, name := range []string{"web:2", "web:1", "api:1"} {
		if err := reg.Create(name, reg.Defaults()); err != nil {
			t.Fatalf("Create %s failed: %v", name, err)
		}
	}

	result = getJSON(t, ts.URL+"/filters?prefix=web", http.StatusOK)
	if strings.Join(result.Filters, ",") != "web:1,web:2" {
		t.Fatalf("Unexpected filters: %v", result.Filters)
	}
}

func TestFilterInfo(t *testing.T) {
	ts, reg := newTestServer(t)

	if err := reg.Create("foo", reg.Defaults()); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := reg.Set("foo", "a", "b", "a"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	result := getJSON(t, ts.URL+"/filters/foo", http.StatusOK)
	info := result.Filter
	if info == nil {
		t.Fatal("Expected filter info")
	}
	if info.Name != "foo" || info.Size != 2 || info.SetHits != 2 || info.SetMisses != 1 {
		t.Fatalf("Unexpected info: %+v", info)
	}
	if info.Capacity != 100000 || info.State != filter.Active.String() {
		t.Fatalf("Unexpected info: %+v", info)
	}
	if info.FillRatio <= 0 || info.FalsePositiveRate < 0 || info.FalsePositiveRate > info.Probability {
		t.Fatalf("Unexpected load estimates: %+v", info)
	}

	result = getJSON(t, ts.URL+"/filters/missing", http.StatusNotFound)
	if result.Status != StatusError {
		t.Fatalf("Expected error status, got: %s", result.Status)
	}
}

func TestMetrics(t *testing.T) {
	ts, reg := newTestServer(t)

	if err := reg.Create("foo", reg.Defaults()); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := reg.Check("foo", "x"); err != nil {
		t.Fatalf("Check failed: %v", err)
	}

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	for _, want := range []string{
		"bloomd_filters 1\n",
		`bloomd_check_misses_total{filter="foo"} 1` + "\n",
		`bloomd_capacity{filter="foo"} 100000` + "\n",
		`bloomd_size{filter="foo"} 0` + "\n",
		"# TYPE bloomd_check_misses_total counter\n",
		"# TYPE bloomd_false_positive_rate gauge\n",
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("Expected %q in metrics:\n%s", want, body)
		}
	}
}
