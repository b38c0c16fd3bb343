package payment

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Card holds the details submitted for a charge. Expiry uses the MM/YY form
// cards are printed with.
type Card struct {
	Number string
	Expiry string
	CVV    string
	Holder string
}

// Card validation errors.
var (
	ErrInvalidCardNumber = fmt.Errorf("invalid card number")
	ErrInvalidExpiry     = fmt.Errorf("invalid card expiry")
	ErrCardExpired       = fmt.Errorf("card expired")
	ErrInvalidCVV        = fmt.Errorf("invalid cvv")
)

// Validate checks the card number (Luhn), expiry, and CVV against the given
// reference time. It returns the first failure.
func (c Card) Validate(now time.Time) error {
	if !Luhn(c.Number) {
		return ErrInvalidCardNumber
	}
	month, year, err := parseExpiry(c.Expiry)
	if err != nil {
		return err
	}
	// A card is valid through the last day of its expiry month.
	if expired(month, year, now) {
		return ErrCardExpired
	}
	if !validCVV(c.CVV) {
		return ErrInvalidCVV
	}
	return nil
}

// Last4 returns the final four digits of the card number.
func (c Card) Last4() string {
	digits := strings.Map(keepDigit, c.Number)
	if len(digits) < 4 {
		return digits
	}
	return digits[len(digits)-4:]
}

// Luhn reports whether the number passes the Luhn checksum. Spaces and
// hyphens are ignored; any other non-digit fails, as does a number shorter
// than 12 or longer than 19 digits.
func Luhn(number string) bool {
	var digits []int
	for _, r := range number {
		switch {
		case r >= '0' && r <= '9':
			digits = append(digits, int(r-'0'))
		case r == ' ' || r == '-':
		default:
			return false
		}
	}
	if len(digits) < 12 || len(digits) > 19 {
		return false
	}

	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := digits[i]
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

// parseExpiry parses an MM/YY expiry into a month and a four-digit year.
func parseExpiry(expiry string) (month, year int, err error) {
	parts := strings.Split(strings.TrimSpace(expiry), "/")
	if len(parts) != 2 || len(parts[0]) != 2 || len(parts[1]) != 2 {
		return 0, 0, ErrInvalidExpiry
	}
	month, err = strconv.Atoi(parts[0])
	if err != nil || month < 1 || month > 12 {
		return 0, 0, ErrInvalidExpiry
	}
	yy, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, ErrInvalidExpiry
	}
	return month, 2000 + yy, nil
}

func expired(month, year int, now time.Time) bool {
	if year != now.Year() {
		return year < now.Year()
	}
	return time.Month(month) < now.Month()
}

func validCVV(cvv string) bool {
	if len(cvv) < 3 || len(cvv) > 4 {
		return false
	}
	for _, r := range cvv {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func keepDigit(r rune) rune {
	if r >= '0' && r <= '9' {
		return r
	}
	return -1
}
