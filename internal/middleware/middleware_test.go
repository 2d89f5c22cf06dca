package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mcoot/clanadmin/internal/testutil"
)

func TestLoggingAssignsRequestID(t *testing.T) {
	h := Logging(testutil.NopLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, http.StatusTeapot, rr.Code)
	assert.Len(t, rr.Header().Get(RequestIDHeader), 36)
}

func TestLoggingKeepsIncomingRequestID(t *testing.T) {
	h := Logging(testutil.NopLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(RequestIDHeader, "abc")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, "abc", rr.Header().Get(RequestIDHeader))
}

func TestLoggingWritesRequestLine(t *testing.T) {
	logger, logs := testutil.CaptureLogger()
	h := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("hello"))
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	h.ServeHTTP(httptest.NewRecorder(), req)

	out := logs.String()
	assert.Contains(t, out, `"request_id":"req-1"`)
	assert.Contains(t, out, `"path":"/api/v1/sync"`)
	assert.Contains(t, out, `"status":200`)
	assert.Contains(t, out, `"size":5`)
}

func TestRecoveryCallsPanicHandler(t *testing.T) {
	logger, logs := testutil.CaptureLogger()
	called := false
	h := Recovery(logger, func(w http.ResponseWriter, r *http.Request, err any) {
		called = true
		assert.Equal(t, "boom", err)
		w.WriteHeader(http.StatusInternalServerError)
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	rr.Header().Set(RequestIDHeader, "req-2")
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.True(t, called)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, logs.String(), `"msg":"panic recovered"`)
	assert.Contains(t, logs.String(), `"request_id":"req-2"`)
}
