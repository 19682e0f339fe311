package utils

import "strings"

const countryCode = "254"

// NormalizePhone converts a raw subscriber number into E.164 form without the
// plus sign. It never fails: an unrecognized format is returned as bare digits
// and the caller must not assume validity. Both payment initiation and callback
// matching normalize through this function so the two sides stay symmetric.
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	switch {
	case strings.HasPrefix(digits, countryCode+"0"):
		// Country code followed by a spurious trunk zero, e.g. 2540712...
		return countryCode + digits[len(countryCode)+1:]
	case strings.HasPrefix(digits, countryCode):
		return digits
	case strings.HasPrefix(digits, "0"):
		return countryCode + digits[1:]
	case strings.HasPrefix(digits, "7") || strings.HasPrefix(digits, "1"):
		// Bare subscriber prefix without trunk zero or country code.
		return countryCode + digits
	default:
		return digits
	}
}
