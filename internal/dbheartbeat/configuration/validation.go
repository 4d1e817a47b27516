package configuration

import (
	"reflect"
	"regexp"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	commonconfig "github.com/G-Research/dbheartbeat/internal/common/config"
	"github.com/G-Research/dbheartbeat/internal/common/dberrors"
)

var sqlIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

func newValidator() *validator.Validate {
	validate := validator.New()
	_ = validate.RegisterValidation("sql_identifier", func(fl validator.FieldLevel) bool {
		return fl.Field().Kind() == reflect.String && sqlIdentifier.MatchString(fl.Field().String())
	})
	_ = validate.RegisterValidation("regexp", func(fl validator.FieldLevel) bool {
		_, err := regexp.Compile(fl.Field().String())
		return err == nil
	})
	return validate
}

// Validate checks the structural constraints of config. Each violation is logged and returned as
// a ConfigError inside a *multierror.Error.
func Validate(config *DbHeartbeatConfig) error {
	err := newValidator().Struct(config)
	if err == nil {
		return nil
	}
	commonconfig.LogValidationErrors(err)
	var result *multierror.Error
	for _, message := range commonconfig.ValidationErrorMessages(err) {
		result = multierror.Append(result, errors.WithStack(&dberrors.ErrConfig{Message: message}))
	}
	return result.ErrorOrNil()
}
