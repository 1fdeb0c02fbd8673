package auth

import (
	"fmt"
	"strings"

	apperrors "chat-relay/errors"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3,max=32"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// ValidateRegister checks registration input and folds the failures into a
// ValidationError keyed by field name, so transports can render per-field
// messages the way profile forms expect them.
func ValidateRegister(req RegisterRequest) error {
	return toFieldErrors(validate.Struct(req))
}

func ValidateLogin(req LoginRequest) error {
	return toFieldErrors(validate.Struct(req))
}

func toFieldErrors(err error) error {
	if err == nil {
		return nil
	}
	fieldErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}

	out := &apperrors.ValidationError{}
	for _, fe := range fieldErrors {
		out.Add(strings.ToLower(fe.Field()), fieldMessage(fe))
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "email":
		return "must be a valid email address"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters long", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters long", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
