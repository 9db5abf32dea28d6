package maintenance

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"auth-serverless/internal/observability"
)

type stubJanitor struct {
	cleared int64
	err     error
	calls   int
}

func (s *stubJanitor) ClearStaleLockouts(context.Context, time.Duration, int) (int64, error) {
	s.calls++
	return s.cleared, s.err
}

func newCleanupRecorder(h *CleanupHandler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/internal/maintenance/cleanup", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.Handle(rec, req)
	return rec
}

func TestCleanupHiddenWithoutSecret(t *testing.T) {
	janitor := &stubJanitor{}
	handler := NewCleanupHandler(janitor, observability.NewLoggerTo(io.Discard), "", 0, 0)

	rec := newCleanupRecorder(handler, "anything")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Zero(t, janitor.calls)
}

func TestCleanupRejectsWrongSecret(t *testing.T) {
	janitor := &stubJanitor{}
	handler := NewCleanupHandler(janitor, observability.NewLoggerTo(io.Discard), "cron-secret", 0, 0)

	assert.Equal(t, http.StatusUnauthorized, newCleanupRecorder(handler, "wrong").Code)
	assert.Equal(t, http.StatusUnauthorized, newCleanupRecorder(handler, "").Code)
	assert.Zero(t, janitor.calls)
}

func TestCleanupClearsLockouts(t *testing.T) {
	janitor := &stubJanitor{cleared: 7}
	handler := NewCleanupHandler(janitor, observability.NewLoggerTo(io.Discard), "cron-secret", 0, 0)

	rec := newCleanupRecorder(handler, "cron-secret")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, janitor.calls)
	assert.Contains(t, rec.Body.String(), `"cleared_lockouts":7`)
}

func TestCleanupReportsFailure(t *testing.T) {
	janitor := &stubJanitor{err: errors.New("boom")}
	handler := NewCleanupHandler(janitor, observability.NewLoggerTo(io.Discard), "cron-secret", 0, 0)

	rec := newCleanupRecorder(handler, "cron-secret")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
