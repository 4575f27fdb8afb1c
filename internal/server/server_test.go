package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teamdigest/internal/core"
)

type stubBuilder struct {
	gotUser string
	gotDay  int
	err     error
}

func (b *stubBuilder) BuildDigest(_ context.Context, userID string, day int) (core.Digest, error) {
	b.gotUser, b.gotDay = userID, day
	if b.err != nil {
		return core.Digest{}, b.err
	}
	return core.Digest{ID: "d1", UserID: userID, Day: day, Text: "hello", Source: "fallback"}, nil
}

func serve(t *testing.T, b DigestBuilder, target string) *httptest.ResponseRecorder {
	t.Helper()
	s := New(Config{Addr: ":0"}, b, zerolog.Nop())
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHealth(t *testing.T) {
	rec := serve(t, &stubBuilder{}, "/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMetrics(t *testing.T) {
	rec := serve(t, &stubBuilder{}, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "teamdigest_")
}

func TestGetDigest(t *testing.T) {
	b := &stubBuilder{}
	rec := serve(t, b, "/api/digests/U3?day=18")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var d core.Digest
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &d))
	assert.Equal(t, "U3", d.UserID)
	assert.Equal(t, 18, d.Day)
	assert.Equal(t, "hello", d.Text)
	assert.Equal(t, "U3", b.gotUser)
}

func TestGetDigest_DefaultsToToday(t *testing.T) {
	b := &stubBuilder{}
	rec := serve(t, b, "/api/digests/U0")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, Today, b.gotDay)
}

func TestGetDigest_Errors(t *testing.T) {
	tests := []struct {
		name   string
		target string
		err    error
		status int
	}{
		{"bad day", "/api/digests/U0?day=x", nil, http.StatusBadRequest},
		{"negative day", "/api/digests/U0?day=-3", nil, http.StatusBadRequest},
		{"unknown user", "/api/digests/nobody", ErrUnknownUser, http.StatusNotFound},
		{"cancelled", "/api/digests/U0", context.Canceled, http.StatusServiceUnavailable},
		{"internal", "/api/digests/U0", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, &stubBuilder{err: tt.err}, tt.target)
			assert.Equal(t, tt.status, rec.Code)

			var body map[string]map[string]interface{}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.EqualValues(t, tt.status, body["error"]["status"])
		})
	}
}
