// Package apperr defines the error taxonomy shared by the service layer and
// the single place where those errors become HTTP responses.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// ValidationError is returned for malformed or out-of-range input.
type ValidationError struct {
	Message string
	Fields  map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return e.Message + " (" + strings.Join(parts, "; ") + ")"
}

// NotFoundError is returned when a resource does not exist or is outside the
// caller's tenant.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return e.Resource + " not found"
}

// AuthorizationError is returned when the caller may see a resource but not
// perform the requested action on it.
type AuthorizationError struct {
	Message string
}

func (e *AuthorizationError) Error() string {
	return e.Message
}

// ConflictError is returned for uniqueness violations and lost concurrent
// updates.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

// CollaboratorError wraps a failure of an external dependency such as the
// file store.
type CollaboratorError struct {
	Collaborator string
	Err          error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s: %v", e.Collaborator, e.Err)
}

func (e *CollaboratorError) Unwrap() error {
	return e.Err
}

func Validation(message string, fields map[string]string) error {
	return &ValidationError{Message: message, Fields: fields}
}

func Invalid(field, reason string) error {
	return &ValidationError{Message: "Validation failed", Fields: map[string]string{field: reason}}
}

func NotFound(resource string) error {
	return &NotFoundError{Resource: resource}
}

func Forbidden(message string) error {
	return &AuthorizationError{Message: message}
}

func Conflict(message string) error {
	return &ConflictError{Message: message}
}

// FromDB maps gorm errors onto the taxonomy. Other errors pass through.
func FromDB(err error, resource string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return NotFound(resource)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return Conflict(resource + " already exists")
	}
	return err
}

// FromBinding converts gin binding failures into a ValidationError with one
// entry per offending field.
func FromBinding(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[jsonFieldName(fe)] = describe(fe)
		}
		return &ValidationError{Message: "Validation failed", Fields: fields}
	}
	return &ValidationError{Message: "Invalid request body"}
}

// NewValidator returns a validator that reads the same `binding` tags gin
// uses, so service calls outside HTTP are checked identically.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.SetTagName("binding")
	v.RegisterTagNameFunc(JSONTagName)
	return v
}

// Check validates input and converts failures into a ValidationError.
func Check(v *validator.Validate, input interface{}) error {
	if err := v.Struct(input); err != nil {
		return FromBinding(err)
	}
	return nil
}

// JSONTagName makes validator report fields by their json name. Register it
// with validator.RegisterTagNameFunc.
func JSONTagName(f reflect.StructField) string {
	name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	return name
}

func jsonFieldName(fe validator.FieldError) string {
	name := fe.Field()
	if name == "" {
		return fe.StructField()
	}
	return toSnake(name)
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "email":
		return "must be a valid email address"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "gte":
		return "must be greater than or equal to " + fe.Param()
	case "lte":
		return "must be less than or equal to " + fe.Param()
	case "alphanum":
		return "must contain only letters and digits"
	case "timezone":
		return "must be a valid time zone"
	}
	return "failed " + fe.Tag() + " validation"
}

func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Status returns the HTTP status for err.
func Status(err error) int {
	var (
		ve *ValidationError
		nf *NotFoundError
		ae *AuthorizationError
		ce *ConflictError
		co *CollaboratorError
	)
	switch {
	case errors.As(err, &ve):
		return http.StatusUnprocessableEntity
	case errors.As(err, &nf):
		return http.StatusNotFound
	case errors.As(err, &ae):
		return http.StatusForbidden
	case errors.As(err, &ce):
		return http.StatusConflict
	case errors.As(err, &co):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// Write renders err as a JSON error response. Internal details of unknown
// and collaborator errors are logged, never returned.
func Write(c *gin.Context, logger zerolog.Logger, err error) {
	status := Status(err)

	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		body := gin.H{"error": ve.Message}
		if len(ve.Fields) > 0 {
			body["fields"] = ve.Fields
		}
		c.JSON(status, body)
	case status == http.StatusBadGateway:
		logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg("collaborator failure")
		c.JSON(status, gin.H{"error": "Upstream service unavailable"})
	case status == http.StatusInternalServerError:
		logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg("unhandled error")
		c.JSON(status, gin.H{"error": "Internal server error"})
	default:
		c.JSON(status, gin.H{"error": err.Error()})
	}
}
