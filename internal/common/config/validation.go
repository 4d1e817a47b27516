package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"
)

// ValidationErrorMessages renders each failed field of a validator error as a readable line.
// Errors that did not come from the validator are returned as a single message.
func ValidationErrorMessages(err error) []string {
	if err == nil {
		return nil
	}
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return []string{err.Error()}
	}
	messages := make([]string, 0, len(validationErrors))
	for _, err := range validationErrors {
		fieldName := stripPrefix(err.Namespace())
		switch err.Tag() {
		case "required":
			messages = append(messages, fmt.Sprintf("Field %s is required but was not found", fieldName))
		default:
			messages = append(messages, fmt.Sprintf("Field %s has invalid value %v: %s", fieldName, err.Value(), err.Tag()))
		}
	}
	return messages
}

func LogValidationErrors(err error) {
	for _, message := range ValidationErrorMessages(err) {
		log.Errorf("ConfigError: %s", message)
	}
}

func stripPrefix(s string) string {
	if idx := strings.Index(s, "."); idx != -1 {
		return s[idx+1:]
	}
	return s
}
