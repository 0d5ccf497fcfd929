package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrInvalid — конфигурация не прошла проверку.
var ErrInvalid = errors.New("invalid config")

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return fld.Tag.Get("koanf")
	})
	return v
}

// Validate проверяет всю конфигурацию (воркер).
func (c *Config) Validate() error {
	return wrapValidation(validate.Struct(c))
}

// ValidateCLI проверяет только то, что нужно CLI: брокер и хранилище.
func (c *Config) ValidateCLI() error {
	err := validate.Struct(c)

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return wrapValidation(err)
	}

	var relevant validator.ValidationErrors
	for _, fe := range verrs {
		key := fieldKey(fe)
		if strings.HasPrefix(key, "broker.") || strings.HasPrefix(key, "store.") {
			relevant = append(relevant, fe)
		}
	}
	if len(relevant) == 0 {
		return nil
	}
	return wrapValidation(relevant)
}

// wrapValidation превращает ошибки validator в читаемый список:
// "invalid config: telegram.bot_token is required (TELEGRAM_BOT_TOKEN)".
func wrapValidation(err error) error {
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	problems := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		problems = append(problems, describe(fe))
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
}

// fieldKey возвращает ключ вида "telegram.bot_token" (без имени типа Config).
func fieldKey(fe validator.FieldError) string {
	key := fe.Namespace()
	if _, rest, ok := strings.Cut(key, "."); ok {
		return rest
	}
	return key
}

func describe(fe validator.FieldError) string {
	key := fieldKey(fe)

	var msg string
	switch fe.Tag() {
	case "required":
		msg = key + " is required"
	case "url":
		msg = key + " must be a valid url"
	case "oneof":
		msg = fmt.Sprintf("%s must be one of [%s]", key, fe.Param())
	default:
		msg = fmt.Sprintf("%s failed %s=%s", key, fe.Tag(), fe.Param())
	}

	if name := envName(key); name != "" {
		msg += " (" + name + ")"
	}
	return msg
}

// envName ищет основную переменную окружения для ключа.
func envName(key string) string {
	best := ""
	for name, k := range envKeys {
		if k != key {
			continue
		}
		// DATABASE_URL предпочтительнее DB_URL
		if best == "" || len(name) > len(best) {
			best = name
		}
	}
	return best
}
