package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"reflect"
	"regexp"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

var (
	postalCodePattern = regexp.MustCompile(`^\d{2}-\d{3}$`)
	phonePattern      = regexp.MustCompile(`^(\+48)?\d{9}$`)

	fieldValidator = newFieldValidator()
)

// Address is a postal address with a contact phone, used for courier delivery
type Address struct {
	Street     string `json:"street" validate:"min=3,max=100"`
	City       string `json:"city" validate:"min=2,max=50,letters"`
	PostalCode string `json:"postalCode" validate:"postalcode"`
	Country    string `json:"country" validate:"min=2,max=50"`
	Phone      string `json:"phone" validate:"phone"`
}

func newFieldValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("postalcode", func(fl validator.FieldLevel) bool {
		return postalCodePattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	})
	// letters allows city names such as "Zielona Góra" or "Bielsko-Biała"
	_ = v.RegisterValidation("letters", func(fl validator.FieldLevel) bool {
		for _, r := range fl.Field().String() {
			if !unicode.IsLetter(r) && r != ' ' && r != '-' {
				return false
			}
		}
		return true
	})
	_ = v.RegisterValidation("name", func(fl validator.FieldLevel) bool {
		return onlyLetters(fl.Field().String(), false)
	})
	_ = v.RegisterValidation("surname", func(fl validator.FieldLevel) bool {
		return onlyLetters(fl.Field().String(), true)
	})
	return v
}

func onlyLetters(s string, hyphen bool) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) && !(hyphen && r == '-') {
			return false
		}
	}
	return true
}

// firstFieldError maps a validator failure to the first offending field
func firstFieldError(err error, fallback string) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		return &ValidationError{Field: fieldErrs[0].Field(), Rule: fieldErrs[0].Tag()}
	}
	return &ValidationError{Field: fallback, Rule: "invalid"}
}

// Validate checks the address against the delivery field rules.
// The first failing field is reported as a *ValidationError.
func (a Address) Validate() error {
	err := fieldValidator.Struct(a)
	if err == nil {
		return nil
	}
	return firstFieldError(err, "address")
}

func (a Address) Value() (driver.Value, error) {
	return json.Marshal(a)
}

func (a *Address) Scan(src interface{}) error {
	return scanJSON(src, a)
}
