package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/punchamoorthee/libraryops/internal/domain"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" || tag == "-" {
			return f.Name
		}
		return tag
	})
	return v
}

// Validate checks s against its validate tags and reports failures as a
// *domain.ValidationError keyed by JSON field name.
func Validate(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	fields := make(map[string]string, len(errs))
	for _, fe := range errs {
		fields[fe.Field()] = validationMessage(fe)
	}
	return &domain.ValidationError{Fields: fields}
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be %s or more", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "url":
		return "must be a valid URL"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	}
	return "is invalid"
}
