package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestHTTPMetrics_RecordsRoutePattern(t *testing.T) {
	m := NewHTTPMetrics()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Delete("/credentials/{id}", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNotFound) })
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("ok")) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodDelete, "/credentials/abc", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodDelete, "/credentials/def", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	var found bool
	for _, mf := range families {
		if mf.GetName() != "jobtrackr_auth_http_requests_total" {
			continue
		}
		found = true
		for _, metric := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range metric.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["route"] == "/credentials/{id}" {
				if labels["status_code"] != "404" || metric.GetCounter().GetValue() != 2 {
					t.Errorf("credentials series = %v value %v", labels, metric.GetCounter().GetValue())
				}
			}
		}
	}
	if !found {
		t.Fatal("requests_total not gathered")
	}
}

func TestHTTPMetrics_Handler(t *testing.T) {
	m := NewHTTPMetrics()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "go_goroutines") {
		t.Error("exposition should include Go runtime metrics")
	}
}
