package serverutil

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fherrs "github.com/jdholdren/feedhub/internal/errors"
	"github.com/jdholdren/feedhub/internal/logger"
)

func TestHandlerFuncE(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		expectedCode int
		expectedBody string
	}{
		{
			name:         "structured error",
			err:          fherrs.E(http.StatusNotFound, "feed not found"),
			expectedCode: http.StatusNotFound,
			expectedBody: `{"message":"feed not found","status":404}`,
		},
		{
			name:         "unstructured error is hidden",
			err:          errors.New("database exploded"),
			expectedCode: http.StatusInternalServerError,
			expectedBody: `{"message":"internal server error","status":500}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			HandlerFuncE(func(http.ResponseWriter, *http.Request) error {
				return tt.err
			}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

			assert.Equal(t, tt.expectedCode, rec.Code)
			assert.JSONEq(t, tt.expectedBody, rec.Body.String())
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	type body struct {
		URL string `json:"url"`
	}

	got, err := DecodeJSON[body](strings.NewReader(`{"url":"https://example.com"}`))
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", got.URL)

	for _, bad := range []string{`{`, `{"unknown":1}`, ``} {
		_, err := DecodeJSON[body](strings.NewReader(bad))

		var sErr *fherrs.Error
		require.ErrorAs(t, err, &sErr)
		assert.Equal(t, http.StatusBadRequest, sErr.Status)
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(&buf, "json", slog.LevelInfo)

	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.InfoContext(r.Context(), "handling")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	id := rec.Header().Get(RequestIDHeader)
	require.NotEmpty(t, id)
	assert.Contains(t, buf.String(), `"request_id":"`+id+`"`)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "from-caller")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, "from-caller", rec.Header().Get(RequestIDHeader))
}
