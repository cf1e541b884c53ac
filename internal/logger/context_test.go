package logger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextLogger(t *testing.T) {
	base, hook := test.NewNullLogger()
	l := NewLogrusAdapter(logrus.NewEntry(base)).WithField("test", "value")

	ctx := WithLogger(context.Background(), l)
	FromContext(ctx).Info("hi")
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "value", hook.LastEntry().Data["test"])

	assert.NotNil(t, FromContext(context.Background()))
}

func TestContextRequestID(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-123")
	assert.Equal(t, "req-123", GetRequestID(ctx))
	assert.Empty(t, GetRequestID(context.Background()))
}

func TestRequestLoggerMiddleware(t *testing.T) {
	base, hook := test.NewNullLogger()
	base.SetLevel(logrus.DebugLevel)
	mw := RequestLoggerMiddleware(NewLogrusAdapter(logrus.NewEntry(base)))

	var seenID string
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID = GetRequestID(r.Context())
		FromContext(r.Context()).Info("inside")
		w.WriteHeader(http.StatusTeapot)
	}))

	t.Run("generates request ID", func(t *testing.T) {
		hook.Reset()
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest("GET", "/api/v1/stats", nil))

		assert.Equal(t, http.StatusTeapot, rr.Code)
		assert.NotEmpty(t, seenID)

		entries := hook.AllEntries()
		require.Len(t, entries, 2)
		assert.Equal(t, seenID, entries[0].Data["request_id"])
		assert.Equal(t, "/api/v1/stats", entries[0].Data["path"])
		assert.Equal(t, "Request completed", entries[1].Message)
		assert.Equal(t, http.StatusTeapot, entries[1].Data["status"])
	})

	t.Run("keeps existing request ID", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/health", nil)
		req.Header.Set("X-Request-ID", "existing-id")
		handler.ServeHTTP(httptest.NewRecorder(), req)
		assert.Equal(t, "existing-id", seenID)
	})
}

func TestResponseWriter(t *testing.T) {
	rr := httptest.NewRecorder()
	rw := NewResponseWriter(rr)

	_, err := rw.Write([]byte("ok"))
	require.NoError(t, err)
	rw.WriteHeader(http.StatusInternalServerError)

	assert.Equal(t, http.StatusOK, rw.StatusCode())
	assert.Equal(t, http.StatusOK, rr.Code)
}
