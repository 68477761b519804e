package validation

import (
	"errors"
	"regexp"
	"strings"
)

// ErrAddressEmpty is returned when the box address is empty or whitespace-only after trim.
var ErrAddressEmpty = errors.New("box address is required")

// ErrAddressInvalid is returned when the box address is not a dotted-quad IPv4 address.
var ErrAddressInvalid = errors.New("box address is not a valid IPv4 address")

// ErrLocationOutOfRange is returned when a location selector index is not one of the known sites.
var ErrLocationOutOfRange = errors.New("location index out of range")

// octet matches 0-255, allowing the leading zeros that settings screens tend to produce ("01", "001").
const octet = `([01]?\d\d?|2[0-4]\d|25[0-5])`

var ipv4Pattern = regexp.MustCompile(`^` + octet + `\.` + octet + `\.` + octet + `\.` + octet + `$`)

// ValidateIPv4 trims the input and checks it is a dotted-quad IPv4 address.
// Returns the trimmed address or an error; callers keep their previous address on error.
func ValidateIPv4(input string) (string, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return "", ErrAddressEmpty
	}
	if !ipv4Pattern.MatchString(s) {
		return "", ErrAddressInvalid
	}
	return s, nil
}

// ValidateLocationIndex checks a settings location selector against the number of known sites.
func ValidateLocationIndex(index, count int) error {
	if index < 0 || index >= count {
		return ErrLocationOutOfRange
	}
	return nil
}
