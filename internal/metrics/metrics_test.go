package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveMutation(t *testing.T) {
	m := New()
	m.ObserveMutation("record_income", "committed", 3*time.Millisecond)
	m.ObserveMutation("record_income", "committed", time.Millisecond)
	m.ObserveMutation("record_expense", "rejected", time.Millisecond)

	if got := testutil.ToFloat64(m.mutations.WithLabelValues("record_income", "committed")); got != 2 {
		t.Fatalf("committed incomes = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.mutations.WithLabelValues("record_expense", "rejected")); got != 1 {
		t.Fatalf("rejected expenses = %v, want 1", got)
	}
}

func TestObserveReload(t *testing.T) {
	m := New()
	m.ObserveReload(time.Millisecond, nil)
	m.ObserveReload(time.Millisecond, errors.New("boom"))
	m.ObserveReload(time.Millisecond, nil)

	if got := testutil.ToFloat64(m.reloads.WithLabelValues("ok")); got != 2 {
		t.Fatalf("ok reloads = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.reloads.WithLabelValues("error")); got != 1 {
		t.Fatalf("failed reloads = %v, want 1", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.SetOverdue(3)
	h := m.Middleware("/api/snapshot", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/snapshot", nil))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{
		"gastos_overdue_payments 3",
		`gastos_http_requests_total{method="GET",route="/api/snapshot",status="418"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}
