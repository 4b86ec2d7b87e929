// Package msisdn converts subscriber addresses between vendor and canonical
// (+E.164 style) forms.
package msisdn

import (
	"strings"
)

// shortCodeLen is the longest address treated as a short code and left alone.
const shortCodeLen = 5

// Normalize returns the canonical "+" form of raw. Separators are dropped, a
// "00" international prefix becomes "+", and a national "0" prefix is replaced
// by "+" and countryCode. Short codes are returned unchanged.
func Normalize(raw, countryCode string) string {
	if len(raw) <= shortCodeLen {
		return raw
	}

	var b strings.Builder
	for _, r := range raw {
		if (r >= '0' && r <= '9') || r == '+' {
			b.WriteRune(r)
		}
	}
	number := b.String()

	switch {
	case strings.HasPrefix(number, "00"):
		return "+" + number[2:]
	case strings.HasPrefix(number, "0"):
		return "+" + countryCode + number[1:]
	case strings.HasPrefix(number, "+"):
		return number
	case countryCode != "" && strings.HasPrefix(number, countryCode):
		return "+" + number
	}
	return number
}

// ToVendor converts a canonical "+" address to the "00" form vendors dial.
func ToVendor(addr string) string {
	if strings.HasPrefix(addr, "+") {
		return "00" + addr[1:]
	}
	return addr
}
