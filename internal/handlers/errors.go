package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	apperrors "github.com/anonto42/pingup/backend/internal/errors"
	"github.com/anonto42/pingup/backend/internal/services"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// MaxUploadSize caps a single uploaded image
const MaxUploadSize = 10 << 20

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Success bool                `json:"success"`
	Code    apperrors.ErrorCode `json:"code"`
	Message string              `json:"message"`
}

var statusCodes = map[int]apperrors.ErrorCode{
	http.StatusBadRequest:            apperrors.ErrInvalidArgument,
	http.StatusUnauthorized:          apperrors.ErrUnauthenticated,
	http.StatusForbidden:             apperrors.ErrForbidden,
	http.StatusNotFound:              apperrors.ErrNotFound,
	http.StatusMethodNotAllowed:      apperrors.ErrNotFound,
	http.StatusConflict:              apperrors.ErrConflict,
	http.StatusRequestEntityTooLarge: apperrors.ErrInvalidArgument,
	http.StatusTooManyRequests:       apperrors.ErrRateLimited,
	http.StatusServiceUnavailable:    apperrors.ErrUnavailable,
}

// toAPIError normalizes anything a handler or middleware returned
func toAPIError(err error) *apperrors.APIError {
	if apiErr, ok := apperrors.As(err); ok {
		return apiErr
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		code, ok := statusCodes[he.Code]
		if !ok {
			return apperrors.Internal(err)
		}
		apiErr := apperrors.Wrap(code, fmt.Sprint(he.Message), err)
		apiErr.Status = he.Code
		return apiErr
	}
	return apperrors.Internal(err)
}

// ErrorHandler renders errors as {success:false, code, message}. Causes of
// server-side failures are logged and never sent to the client.
func ErrorHandler(log *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		apiErr := toAPIError(err)
		if apiErr.Status >= http.StatusInternalServerError {
			log.Error("Request failed",
				zap.String("method", c.Request().Method),
				zap.String("path", c.Path()),
				zap.String("code", string(apiErr.Code)),
				zap.Error(err),
			)
		}

		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(apiErr.Status)
		} else {
			writeErr = c.JSON(apiErr.Status, ErrorResponse{Code: apiErr.Code, Message: apiErr.Message})
		}
		if writeErr != nil {
			log.Warn("Failed to write error response", zap.Error(writeErr))
		}
	}
}

// bindAndValidate decodes the request into req and runs struct validation
func bindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return apperrors.InvalidArgument("Invalid request payload")
	}
	if err := c.Validate(req); err != nil {
		return apperrors.InvalidArgument(validationMessage(err))
	}
	return nil
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}

// readUpload returns the named multipart file, or nil when the request has none
func readUpload(c echo.Context, field string) (*services.Upload, error) {
	if !strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		return nil, nil
	}

	fh, err := c.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.InvalidArgument("Invalid " + field + " upload")
	}
	return readFileHeader(fh)
}

func readFileHeader(fh *multipart.FileHeader) (*services.Upload, error) {
	if fh.Size > MaxUploadSize {
		return nil, apperrors.InvalidArgument("Image is too large")
	}
	f, err := fh.Open()
	if err != nil {
		return nil, apperrors.InvalidArgument("Invalid upload")
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxUploadSize+1))
	if err != nil {
		return nil, apperrors.InvalidArgument("Invalid upload")
	}
	if len(data) > MaxUploadSize {
		return nil, apperrors.InvalidArgument("Image is too large")
	}
	return &services.Upload{Data: data, Filename: fh.Filename}, nil
}
