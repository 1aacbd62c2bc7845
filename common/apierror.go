package common

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

type ErrorKind int

const (
	KindValidation ErrorKind = iota
	KindConflict
	KindNotFound
	KindForbidden
	KindInvalidCredential
)

// APIError is the error shape every module returns from its business
// operations. Handlers map it to a JSON body at the request boundary;
// nothing here is fatal to the process.
type APIError struct {
	Kind    ErrorKind
	Message string
	Fields  map[string]string
}

func (e *APIError) Error() string {
	return e.Message
}

func (e *APIError) Status() int {
	switch e.Kind {
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	default:
		// validation and credential mismatch both surface as 400
		return http.StatusBadRequest
	}
}

func Validation(msg string) *APIError {
	return &APIError{Kind: KindValidation, Message: msg}
}

func Conflict(msg string) *APIError {
	return &APIError{Kind: KindConflict, Message: msg}
}

func NotFound(msg string) *APIError {
	return &APIError{Kind: KindNotFound, Message: msg}
}

func Forbidden(msg string) *APIError {
	return &APIError{Kind: KindForbidden, Message: msg}
}

func InvalidCredential(msg string) *APIError {
	return &APIError{Kind: KindInvalidCredential, Message: msg}
}

// BindError converts a gin binding failure into a Validation error with
// per-field detail when the underlying cause is a validator error.
func BindError(err error) *APIError {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			switch fe.Tag() {
			case "required":
				fields[fe.Field()] = "this field is required"
			case "email":
				fields[fe.Field()] = "invalid email format"
			case "min":
				fields[fe.Field()] = "must be at least " + fe.Param()
			case "max":
				fields[fe.Field()] = "must be at most " + fe.Param()
			case "oneof":
				fields[fe.Field()] = "must be one of " + fe.Param()
			default:
				fields[fe.Field()] = "invalid value"
			}
		}
		return &APIError{Kind: KindValidation, Message: "invalid request body", Fields: fields}
	}
	return Validation("invalid request body")
}

// AbortWithError renders err as a JSON error response. Errors that are
// not APIError become a 500 without leaking internals.
func AbortWithError(c *gin.Context, err error) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		body := gin.H{"error": apiErr.Message}
		if len(apiErr.Fields) > 0 {
			body["fields"] = apiErr.Fields
		}
		c.AbortWithStatusJSON(apiErr.Status(), body)
		return
	}
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
