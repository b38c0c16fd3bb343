// Package validate holds the request validator with the domain's custom
// rules registered: card number (Luhn), card expiry, CVV, postal code,
// password strength, and birth-date age bounds.
package validate

import (
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/arula-ai/commerce-api/internal/domain/payment"
)

// New returns a validator with the commerce rules registered. Rules are
// referenced from struct tags, e.g. `validate:"required,luhn"`.
func New() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	must(v.RegisterValidation("luhn", luhnRule))
	must(v.RegisterValidation("card_expiry", cardExpiryRule))
	must(v.RegisterValidation("cvv", cvvRule))
	must(v.RegisterValidation("postal_code", postalCodeRule))
	must(v.RegisterValidation("strong_password", strongPasswordRule))
	must(v.RegisterValidation("age_bounds", ageBoundsRule))

	return v
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

// luhnRule delegates to the payment domain's Luhn checksum.
func luhnRule(fl validator.FieldLevel) bool {
	return payment.Luhn(fl.Field().String())
}

// cardExpiryRule accepts MM/YY expiries that are not in the past.
func cardExpiryRule(fl validator.FieldLevel) bool {
	parts := strings.Split(fl.Field().String(), "/")
	if len(parts) != 2 || len(parts[0]) != 2 || len(parts[1]) != 2 {
		return false
	}
	month, err := strconv.Atoi(parts[0])
	if err != nil || month < 1 || month > 12 {
		return false
	}
	yy, err := strconv.Atoi(parts[1])
	if err != nil {
		return false
	}

	now := time.Now()
	year := 2000 + yy
	if year != now.Year() {
		return year > now.Year()
	}
	return time.Month(month) >= now.Month()
}

// cvvRule accepts 3 or 4 digit security codes.
func cvvRule(fl validator.FieldLevel) bool {
	cvv := fl.Field().String()
	if len(cvv) < 3 || len(cvv) > 4 {
		return false
	}
	return digitsOnly(cvv)
}

// postalCodeRule accepts 5-digit and ZIP+4 codes.
func postalCodeRule(fl validator.FieldLevel) bool {
	code := fl.Field().String()
	switch len(code) {
	case 5:
		return digitsOnly(code)
	case 10:
		return code[5] == '-' && digitsOnly(code[:5]) && digitsOnly(code[6:])
	default:
		return false
	}
}

// strongPasswordRule requires at least 8 characters mixing upper case, lower
// case, and digits.
func strongPasswordRule(fl validator.FieldLevel) bool {
	pw := fl.Field().String()
	if len(pw) < 8 {
		return false
	}
	var upper, lower, digit bool
	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	return upper && lower && digit
}

// Registration age limits.
const (
	minAge = 18
	maxAge = 120
)

// ageBoundsRule accepts 2006-01-02 birth dates for ages between 18 and 120.
func ageBoundsRule(fl validator.FieldLevel) bool {
	birth, err := time.Parse("2006-01-02", fl.Field().String())
	if err != nil {
		return false
	}

	now := time.Now()
	age := now.Year() - birth.Year()
	if now.YearDay() < birth.YearDay() {
		age--
	}
	return age >= minAge && age <= maxAge
}

func digitsOnly(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
