package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	apperrors "github.com/anonto42/pingup/backend/internal/errors"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestErrorHandler(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		body   string
	}{
		{
			name:   "api error",
			err:    apperrors.NotFound("Message"),
			status: http.StatusNotFound,
			body:   `{"success":false,"code":"NOT_FOUND","message":"Message not found"}`,
		},
		{
			name:   "rate limited",
			err:    apperrors.RateLimited(""),
			status: http.StatusTooManyRequests,
			body:   `{"success":false,"code":"RATE_LIMITED","message":"rate limit exceeded"}`,
		},
		{
			name:   "echo error",
			err:    echo.NewHTTPError(http.StatusMethodNotAllowed, "Method Not Allowed"),
			status: http.StatusMethodNotAllowed,
			body:   `{"success":false,"code":"NOT_FOUND","message":"Method Not Allowed"}`,
		},
		{
			name:   "storage failure keeps its cause private",
			err:    apperrors.Unavailable("storage", errors.New("pq: connection refused")),
			status: http.StatusServiceUnavailable,
			body:   `{"success":false,"code":"UNAVAILABLE","message":"storage is temporarily unavailable"}`,
		},
		{
			name:   "plain error",
			err:    errors.New("nil pointer somewhere"),
			status: http.StatusInternalServerError,
			body:   `{"success":false,"code":"INTERNAL","message":"Something went wrong"}`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			core, logs := observer.New(zap.ErrorLevel)
			e := echo.New()
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

			ErrorHandler(zap.New(core))(tc.err, c)

			assert.Equal(t, tc.status, rec.Code)
			assert.JSONEq(t, tc.body, rec.Body.String())
			if tc.status >= http.StatusInternalServerError {
				assert.Equal(t, 1, logs.Len(), "server errors are logged with their cause")
			} else {
				assert.Zero(t, logs.Len())
			}
		})
	}
}

func TestReadUploadIgnoresNonMultipart(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(req, httptest.NewRecorder())

	up, err := readUpload(c, "image")
	assert.NoError(t, err)
	assert.Nil(t, up)
}
