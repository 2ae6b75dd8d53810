package models

import "strings"

// PersonName is the name an account owner registers with
type PersonName struct {
	FirstName string `json:"firstName" validate:"min=2,max=30,name"`
	LastName  string `json:"lastName" validate:"min=2,max=50,surname"`
}

// Validate checks the name rules. Last names may carry a hyphen, first names may not.
func (n PersonName) Validate() error {
	if err := fieldValidator.Struct(n); err != nil {
		return firstFieldError(err, "name")
	}
	return nil
}

// NormalizeEmail trims the address and checks it is a well-formed email
func NormalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	if err := fieldValidator.Var(email, "required,email"); err != nil {
		return "", &ValidationError{Field: "email", Rule: "email"}
	}
	return email, nil
}
