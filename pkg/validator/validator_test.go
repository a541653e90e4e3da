package validator

import (
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
)

type statusRequest struct {
	Status  string `validate:"required,oneof=open resolved"`
	Content string `validate:"max=5"`
}

func TestFormatValidationError(t *testing.T) {
	v := validator.New()

	err := v.Struct(statusRequest{Content: "too long"})
	msg := FormatValidationError(err)

	assert.Contains(t, msg, "Status is required")
	assert.Contains(t, msg, "Content must be at most 5 characters")

	err = v.Struct(statusRequest{Status: "closed"})
	assert.Equal(t, "Status must be one of [open resolved]", FormatValidationError(err))
}

func TestFormatValidationError_PlainError(t *testing.T) {
	assert.Equal(t, "EOF", FormatValidationError(errors.New("EOF")))
}
