package apirouter

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/hookdeck/cbserver/internal/callback"
	"github.com/hookdeck/cbserver/internal/dispatcher"
	pkgerrors "github.com/pkg/errors"
)

func ErrorHandlerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		err := c.Errors.Last()
		if err == nil {
			return
		}

		var errorResponse ErrorResponse
		errorResponse.Parse(err.Err)
		handleErrorResponse(c, errorResponse)
	}
}

type ErrorResponse struct {
	Err     error       `json:"-"`
	Code    int         `json:"-"`
	Status  int         `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e ErrorResponse) Error() string {
	return e.Message
}

func (e ErrorResponse) Unwrap() error {
	return e.Err
}

func (e *ErrorResponse) Parse(err error) {
	var errorResponse ErrorResponse
	if errors.As(err, &errorResponse) {
		*e = errorResponse
		return
	}

	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, err := range validationErrors {
			messages = append(messages, formatValidationError(err.Field(), err.Tag(), err.Param()))
		}
		e.Code = http.StatusUnprocessableEntity
		e.Message = "validation error"
		e.Data = messages
		e.Err = err
		return
	}
	if isInvalidJSON(err) {
		e.Code = http.StatusBadRequest
		e.Message = "invalid JSON"
		e.Err = err
		return
	}

	var callbackValidationErr *callback.ErrCallbackValidation
	if errors.As(err, &callbackValidationErr) {
		var messages []string
		for _, detail := range callbackValidationErr.Errors {
			messages = append(messages, formatValidationError("callback."+detail.Field, detail.Type, ""))
		}
		e.Code = http.StatusUnprocessableEntity
		e.Message = "validation error"
		e.Data = messages
		e.Err = err
		return
	}

	e.Err = err
	e.Message = err.Error()
	switch {
	case errors.Is(err, callback.ErrInvalidCallback):
		e.Code = http.StatusBadRequest
	case errors.Is(err, dispatcher.ErrInvalidPeriod):
		e.Code = http.StatusUnprocessableEntity
	case errors.Is(err, dispatcher.ErrWorkerLimit):
		e.Code = http.StatusTooManyRequests
	case errors.Is(err, dispatcher.ErrDispatcherClosed):
		e.Code = http.StatusServiceUnavailable
	default:
		*e = NewErrInternalServer(err)
	}
}

// formatValidationError converts a validation error into a human-readable message.
func formatValidationError(field, tag, param string) string {
	field = strings.ToLower(field)

	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, param)
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, param)
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, param)
	case "unsupported":
		return fmt.Sprintf("%s is not supported", field)
	case "pattern", "format":
		return fmt.Sprintf("%s has an invalid format", field)
	default:
		if param != "" {
			return fmt.Sprintf("%s failed %s=%s validation", field, tag, param)
		}
		return fmt.Sprintf("%s failed %s validation", field, tag)
	}
}

func isInvalidJSON(err error) bool {
	var syntaxError *json.SyntaxError
	var unmarshalTypeError *json.UnmarshalTypeError
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.As(err, &syntaxError) ||
		errors.As(err, &unmarshalTypeError)
}

func handleErrorResponse(c *gin.Context, response ErrorResponse) {
	response.Status = response.Code
	c.JSON(response.Code, response)
}

func NewErrInternalServer(err error) ErrorResponse {
	return ErrorResponse{
		Err:     pkgerrors.WithStack(err),
		Code:    http.StatusInternalServerError,
		Message: "internal server error",
	}
}

func NewErrBadRequest(err error) ErrorResponse {
	return ErrorResponse{
		Err:     err,
		Code:    http.StatusBadRequest,
		Message: err.Error(),
	}
}

func NewErrServiceUnavailable(err error, message string) ErrorResponse {
	return ErrorResponse{
		Err:     err,
		Code:    http.StatusServiceUnavailable,
		Message: message,
	}
}

func AbortWithError(c *gin.Context, code int, err error) {
	c.Status(code)
	c.Error(err)
	c.Abort()
}
