package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"grimm.is/ptables/internal/validation"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validator returns the shared validator with the ptables tags registered:
// iface, chain, target, port, proto, rate, logprefix, loglevel and label.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			if name, _, _ := strings.Cut(f.Tag.Get("key"), ","); name != "" {
				return name
			}
			return f.Name
		})
		register := func(tag string, check func(string) error) {
			_ = v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
				return check(fl.Field().String()) == nil
			})
		}
		registerInt := func(tag string, check func(int) error) {
			_ = v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
				return check(int(fl.Field().Int())) == nil
			})
		}
		register("iface", validation.ValidateInterfaceName)
		register("target", validation.ValidateTarget)
		registerInt("loglevel", validation.ValidateLogLevel)
		register("chain", validation.ValidateChainName)
		register("port", validation.ValidatePort)
		register("proto", validation.ValidateProtocol)
		register("rate", validation.ValidateRate)
		register("logprefix", validation.ValidateLogPrefix)
		register("label", validation.ValidateLabel)
		validate = v
	})
	return validate
}

// validateStruct runs the validator and turns its errors into readable text
// prefixed with the section name.
func validateStruct(section string, s any) error {
	err := Validator().Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("[%s]: %w", section, err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("%s: invalid value %q (%s)", fe.Field(), fmt.Sprint(fe.Value()), fe.Tag()))
	}
	return fmt.Errorf("[%s] %s", section, strings.Join(msgs, "; "))
}
