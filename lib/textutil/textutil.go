// Package textutil holds the string munging needed to pull structured
// fields out of server-rendered award listings.
package textutil

import (
	"fmt"
	"strconv"
	"strings"
)

// StripMarker removes a leading marker string (such as "grantee: ")
// and trims the remainder.
func StripMarker(s, marker string) string {
	return strings.TrimSpace(strings.Replace(s, marker, "", 1))
}

// AfterMarker returns the trimmed text following the first occurrence
// of marker, or "" when the marker is absent.
func AfterMarker(s, marker string) string {
	idx := strings.Index(s, marker)
	if idx < 0 {
		return ""
	}
	return strings.TrimSpace(s[idx+len(marker):])
}

// ParseCurrency parses a rendered currency amount, tolerating a dollar
// sign and thousands separators.
func ParseCurrency(s string) (float64, error) {
	cleaned := strings.NewReplacer("$", "", ",", "", " ", "").Replace(strings.TrimSpace(s))
	if cleaned == "" {
		return 0, fmt.Errorf("empty currency amount")
	}
	amount, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("cannot parse currency amount %q: %w", s, err)
	}
	return amount, nil
}
