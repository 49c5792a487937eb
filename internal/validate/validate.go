// Package validate carries the client-side form schemas: sign-in, sign-up,
// forgot-password and the OTP code entry. Field names in error messages come
// from the json tags so they match what the backend and the forms use.
package validate

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

func init() {
	// Report on json tag instead of Go struct field name
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

type SignInForm struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type SignUpForm struct {
	Username        string `json:"username" validate:"required,min=2,max=50"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,min=8"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=Password"`
}

type ForgotPasswordForm struct {
	Email string `json:"email" validate:"required,email"`
}

type VerificationCodeForm struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

// FieldErrors maps a field name to a user-facing message.
type FieldErrors map[string]string

func (fe FieldErrors) Error() string {
	parts := make([]string, 0, len(fe))
	for field, msg := range fe {
		parts = append(parts, field+": "+msg)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Struct validates any of the form types above. Returns nil or FieldErrors.
func Struct(form any) error {
	err := validate.Struct(form)
	if err == nil {
		return nil
	}

	// pretty sure cast will be ok cause forms are always valid structs
	errs := err.(validator.ValidationErrors)

	fields := make(FieldErrors, len(errs))
	for _, fieldError := range errs {
		var message string
		switch fieldError.Tag() {
		case "required":
			message = "This field is required"
		case "email":
			message = "Must be a valid email address"
		case "min":
			message = fmt.Sprintf("Value is too short (minimum %s)", fieldError.Param())
		case "max":
			message = fmt.Sprintf("Value is too long (maximum %s)", fieldError.Param())
		case "eqfield":
			message = "Passwords do not match"
		case "len", "numeric":
			message = "Must be a 6 digit code"
		default:
			message = "Invalid value"
		}
		fields[fieldError.Field()] = message
	}

	return fields
}
