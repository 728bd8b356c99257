package model

import (
	"fmt"
	"regexp"
	"time"

	"github.com/veselinppetkov/orders-app-sub000/internal/cdperr"
)

var (
	monthKeyPattern = regexp.MustCompile(`^\d{4}-\d{2}$`)
	emailPattern    = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	digitPattern    = regexp.MustCompile(`\d`)
)

// ValidMonthKey reports whether s looks like YYYY-MM.
func ValidMonthKey(s string) bool {
	return monthKeyPattern.MatchString(s)
}

// ValidDate reports whether s is a real ISO YYYY-MM-DD date.
func ValidDate(s string) bool {
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}

// ValidEmail reports whether s has a plausible mailbox shape.
func ValidEmail(s string) bool {
	return emailPattern.MatchString(s)
}

// ValidPhone reports whether s carries at least 6 digits.
func ValidPhone(s string) bool {
	return len(digitPattern.FindAllString(s, -1)) >= 6
}

func errValidation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", cdperr.ErrValidation, fmt.Sprintf(format, args...))
}
