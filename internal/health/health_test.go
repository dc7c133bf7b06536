package health

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func get(t *testing.T, h http.Handler, path string) int {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec.Code
}

func TestServer_ReadinessFollowsChecks(t *testing.T) {
	s := New("", nil)
	ready := make(chan struct{})
	s.AddReadinessCheck("bound", Closed(ready, "channels"))

	assert.Equal(t, http.StatusOK, get(t, s.Handler(), "/live"))
	assert.Equal(t, http.StatusServiceUnavailable, get(t, s.Handler(), "/ready"))

	close(ready)
	assert.Equal(t, http.StatusOK, get(t, s.Handler(), "/ready"))
	assert.Equal(t, http.StatusOK, get(t, s.Handler(), "/metrics"))
}

func TestServer_LivenessCheck(t *testing.T) {
	s := New("", nil)
	alive := true
	s.AddLivenessCheck("worker", True(func() bool { return alive }, "worker"))
	assert.Equal(t, http.StatusOK, get(t, s.Handler(), "/live"))

	alive = false
	assert.Equal(t, http.StatusServiceUnavailable, get(t, s.Handler(), "/live"))
	assert.Equal(t, http.StatusServiceUnavailable, get(t, s.Handler(), "/ready"))
}
