package validation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type inner struct {
	Email string `json:"email" validate:"required,email"`
}

type outer struct {
	ID    string `json:"id" validate:"required_without=Inner,omitempty,uuid"`
	Inner *inner `json:"inner,omitempty"`
	Note  string `json:"note" validate:"max=5"`
}

func TestStructPasses(t *testing.T) {
	require.NoError(t, Struct(outer{ID: "6f1c2a3e-8d4b-4c1a-9e2f-0a1b2c3d4e5f"}))
	require.NoError(t, Struct(outer{Inner: &inner{Email: "ana@example.com"}}))
}

func TestStructReportsJSONPaths(t *testing.T) {
	err := Struct(outer{ID: "nope", Inner: &inner{Email: "bad"}, Note: "too long"})

	var verr *Error
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []FieldError{
		{Field: "id", Message: "must be a valid UUID"},
		{Field: "inner.email", Message: "must be a valid email address"},
		{Field: "note", Message: "is too long"},
	}, verr.Fields)
	assert.Contains(t, err.Error(), "inner.email must be a valid email address")
}

func TestStructRequiresOneOf(t *testing.T) {
	err := Struct(outer{})

	var verr *Error
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Fields, 1)
	assert.Equal(t, "id", verr.Fields[0].Field)
}

func TestStructRejectsNonStruct(t *testing.T) {
	err := Struct("not a struct")
	require.Error(t, err)

	var verr *Error
	assert.False(t, errors.As(err, &verr))
}
