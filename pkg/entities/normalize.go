package entities

import (
	"regexp"
	"strconv"
	"strings"
)

// Site names diverge cosmetically between the two systems: VCOM prefixes
// an internal numeric code, Yuman operators add parenthetical notes and a
// trailing country name. All three are stripped before comparison.
var (
	leadingDigitsRe = regexp.MustCompile(`^\d+\s+`)
	parentheticalRe = regexp.MustCompile(`\s*\(.*?\)`)
	countryTokenRe  = regexp.MustCompile(`\s*\bFrance\b`)
)

// NormalizeName cleans a site display name: removes a leading run of
// digits and whitespace, any parenthesized suffix, and a literal country
// token, then trims. Used both for matching unmapped sites and for
// ignoring cosmetic differences during diff.
func NormalizeName(name string) string {
	s := leadingDigitsRe.ReplaceAllString(name, "")
	s = parentheticalRe.ReplaceAllString(s, "")
	s = countryTokenRe.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// NormalizeSerial canonicalizes a serial number: uppercase, trimmed.
func NormalizeSerial(serial string) string {
	return strings.ToUpper(strings.TrimSpace(serial))
}

// NormalizeDate canonicalizes a date to ISO YYYY-MM-DD. Yuman custom
// fields store commission dates as DD/MM/YYYY; VCOM already reports ISO.
func NormalizeDate(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	if strings.Contains(s, "/") {
		parts := strings.Split(s, "/")
		if len(parts) >= 3 {
			day, month, year := parts[0], parts[1], parts[2]
			return year + "-" + pad2(month) + "-" + pad2(day)
		}
	}
	// Already ISO, keep the date part only.
	if len(s) > 10 {
		return s[:10]
	}
	return s
}

// NormalizeString trims surrounding whitespace.
func NormalizeString(s string) string {
	return strings.TrimSpace(s)
}

// NormalizeFloat renders an optional numeric value in a comparable form.
// Trailing zeros are insignificant: "750.0" and "750" compare equal.
func NormalizeFloat(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}

// NormalizeInt renders an optional integer value in a comparable form.
func NormalizeInt(n *int) string {
	if n == nil {
		return ""
	}
	return strconv.Itoa(*n)
}

func pad2(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}
