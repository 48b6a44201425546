// Package validator wraps go-playground/validator with project-specific rules.
package validator

import (
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// kenyanMsisdn matches M-Pesa numbers in E.164 form (+2547xx/+2541xx) or the
// local 07xx/01xx form.
var kenyanMsisdn = regexp.MustCompile(`^(\+254(7|1)\d{8}|0(7|1)\d{8})$`)

type Validator struct {
	validate *validator.Validate
}

func New() *Validator {
	v := &Validator{
		validate: validator.New(),
	}
	v.registerCustomValidations()
	return v
}

func (v *Validator) registerCustomValidations() {
	_ = v.validate.RegisterValidation("send_currency", func(fl validator.FieldLevel) bool {
		switch strings.ToUpper(fl.Field().String()) {
		case "USD", "GBP", "EUR":
			return true
		}
		return false
	})

	_ = v.validate.RegisterValidation("mpesa_msisdn", func(fl validator.FieldLevel) bool {
		return kenyanMsisdn.MatchString(fl.Field().String())
	})

	_ = v.validate.RegisterValidation("positive_decimal", func(fl validator.FieldLevel) bool {
		d, ok := fl.Field().Interface().(decimal.Decimal)
		return ok && d.GreaterThan(decimal.Zero)
	})
}

func (v *Validator) Validate(i interface{}) error {
	if err := v.validate.Struct(i); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			var errMessages []string
			for _, e := range validationErrors {
				errMessages = append(errMessages, fmt.Sprintf(
					"Field '%s' failed validation '%s'",
					e.Field(),
					e.Tag(),
				))
			}
			return fmt.Errorf("validation failed: %v", errMessages)
		}
		return err
	}
	return nil
}

// ValidateStructured returns a map of field -> error message for API responses.
func (v *Validator) ValidateStructured(i interface{}) map[string]string {
	errs := make(map[string]string)
	if err := v.validate.Struct(i); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			for _, e := range validationErrors {
				msg := fmt.Sprintf("failed validation on '%s'", e.Tag())
				switch e.Tag() {
				case "required":
					msg = "This field is required"
				case "send_currency":
					msg = "Currency must be one of USD, GBP, EUR"
				case "mpesa_msisdn":
					msg = "Invalid M-Pesa phone number"
				case "positive_decimal":
					msg = "Amount must be greater than zero"
				case "oneof":
					msg = fmt.Sprintf("Must be one of: %s", e.Param())
				}
				errs[e.Field()] = msg
			}
		} else {
			errs["_global"] = err.Error()
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// Sanitize escapes HTML entities and trims surrounding whitespace.
func Sanitize(s string) string {
	return html.EscapeString(strings.TrimSpace(s))
}
