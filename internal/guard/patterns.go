package guard

import (
	"regexp"
)

// Personally identifying information patterns. All are unanchored and case
// insensitive.
var (
	// Nine digits grouped 3-2-4 with optional dash or dot separators
	ssnRegex = regexp.MustCompile(`(?i)\b\d{3}[-.]?\d{2}[-.]?\d{4}\b`)

	// Sixteen contiguous digits
	cardNumberRegex = regexp.MustCompile(`(?i)\b\d{16}\b`)

	// E-mail address shaped token
	emailRegex = regexp.MustCompile(`(?i)\b[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}\b`)
)

// Pattern is a named PII pattern.
type Pattern struct {
	Name        string
	Regex       *regexp.Regexp
	Description string
}

// DefaultPatterns returns the PII patterns checked by a default Guard.
func DefaultPatterns() []Pattern {
	return []Pattern{
		{
			Name:        "SSN",
			Regex:       ssnRegex,
			Description: "Nine digit number grouped like a social security number",
		},
		{
			Name:        "Card Number",
			Regex:       cardNumberRegex,
			Description: "Sixteen digit payment card number",
		},
		{
			Name:        "Email Address",
			Regex:       emailRegex,
			Description: "E-mail address",
		},
	}
}

// DefaultBlocklist returns the keywords rejected by a default Guard.
func DefaultBlocklist() []string {
	return []string{
		"password",
		"credit card",
		"ssn",
		"social security",
		"bank account",
	}
}
