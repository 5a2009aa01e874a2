package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	apperrors "github.com/record-sync/internal/errors"
)

func testResponder(w http.ResponseWriter, r *http.Request, err error) {
	if seconds, ok := apperrors.RetryAfter(err); ok {
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
	}
	w.WriteHeader(apperrors.GetHTTPStatusCode(err))
	_, _ = w.Write([]byte(apperrors.Categorize(err).Message))
}

func TestMiddleware_RejectsThirdRequest(t *testing.T) {
	limiter, _ := setupTestLimiter(t, 2, 5*time.Second)
	mw := NewMiddleware(limiter, "", testResponder)

	calls := 0
	handler := mw.Limit("customer")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))

	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/customer/1", nil)
		req.Header.Set("Service-Name", "billing")
		last = httptest.NewRecorder()
		handler.ServeHTTP(last, req)
	}

	assert.Equal(t, 2, calls, "handler must not run for the rejected request")
	assert.Equal(t, http.StatusTooManyRequests, last.Code)
	assert.Equal(t, "5", last.Header().Get("Retry-After"))
	assert.Equal(t, "Too Many Requests. Retry after 5 seconds.", last.Body.String())
}

func TestMiddleware_CustomIdentityHeader(t *testing.T) {
	limiter, _ := setupTestLimiter(t, 1, 5*time.Second)
	mw := NewMiddleware(limiter, "X-Caller", testResponder)

	handler := mw.Limit("customers")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for _, caller := range []string{"a", "b"} {
		req := httptest.NewRequest(http.MethodGet, "/customers/", nil)
		req.Header.Set("X-Caller", caller)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, "caller %s", caller)
	}
}

func TestMiddleware_StoreDownFailsClosed(t *testing.T) {
	limiter, mr := setupTestLimiter(t, 2, 5*time.Second)
	mw := NewMiddleware(limiter, "", testResponder)
	mr.Close()

	called := false
	handler := mw.Limit("campaign")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/campaigns1", nil))

	assert.False(t, called)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Empty(t, rec.Header().Get("Retry-After"))
}
