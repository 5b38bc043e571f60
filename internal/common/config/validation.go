package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var validate = validator.New()

// Validate checks the `validate` struct tags of v and returns a readable error describing every failure.
func Validate(v interface{}) error {
	if err := validate.Struct(v); err != nil {
		return ValidationError(err)
	}
	return nil
}

func LogValidationErrors(err error) {
	for _, msg := range validationMessages(err) {
		log.Errorf("ConfigError: %s", msg)
	}
}

// ValidationError folds validator errors into a single error. Other errors are returned unchanged.
func ValidationError(err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}
	return errors.New(strings.Join(validationMessages(err), "; "))
}

func validationMessages(err error) []string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return nil
	}
	msgs := make([]string, 0, len(validationErrors))
	for _, err := range validationErrors {
		fieldName := stripPrefix(err.Namespace())
		switch err.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("field %s is required but was not found", fieldName))
		default:
			msgs = append(msgs, fmt.Sprintf("field %s has invalid value %v: %s", fieldName, err.Value(), err.Tag()))
		}
	}
	return msgs
}

func stripPrefix(s string) string {
	if idx := strings.Index(s, "."); idx != -1 {
		return s[idx+1:]
	}
	return s
}
