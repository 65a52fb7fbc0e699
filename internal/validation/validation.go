// Package validation runs `validate` struct tags through one shared
// go-playground validator and reports failures by JSON field path.
package validation

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var engine = newEngine()

func newEngine() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}

var messages = map[string]string{
	"required":         "is required",
	"required_without": "is required",
	"email":            "must be a valid email address",
	"uuid":             "must be a valid UUID",
	"datetime":         "must be an RFC3339 timestamp",
	"max":              "is too long",
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error lists every field that failed, in struct order.
type Error struct {
	Fields []FieldError
}

func (e *Error) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+" "+f.Message)
	}
	return strings.Join(parts, "; ")
}

// Struct validates v. Tag failures come back as *Error; anything else is a
// programming error (v is not a struct) and is returned as is.
func Struct(v any) error {
	err := engine.Struct(v)
	if err == nil {
		return nil
	}

	var failed validator.ValidationErrors
	if !errors.As(err, &failed) {
		return err
	}

	out := &Error{Fields: make([]FieldError, 0, len(failed))}
	for _, fe := range failed {
		msg := messages[fe.Tag()]
		if msg == "" {
			msg = "failed " + fe.Tag()
		}
		out.Fields = append(out.Fields, FieldError{Field: fieldPath(fe.Namespace()), Message: msg})
	}
	return out
}

// fieldPath drops the root struct name: "CreateAppointmentRequest.patient.email" -> "patient.email".
func fieldPath(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}
