package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type statusCountingMetrics struct {
	statuses []int
}

func (m *statusCountingMetrics) RecordLogin(string)                   {}
func (m *statusCountingMetrics) RecordGuildFetch(bool, time.Duration) {}
func (m *statusCountingMetrics) RecordHTTPStatus(code int)            { m.statuses = append(m.statuses, code) }
func (m *statusCountingMetrics) RecordSessionsCleaned(int64)          {}

func TestMetricsMiddleware_RecordsStatus(t *testing.T) {
	mc := &statusCountingMetrics{}
	mw := NewMetricsMiddleware(mc)

	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if len(mc.statuses) != 2 || mc.statuses[0] != 401 || mc.statuses[1] != 200 {
		t.Errorf("statuses = %v, want [401 200]", mc.statuses)
	}
}
