package ussd

import "strings"

// DefaultDelimiter separates the input history some aggregators resend.
const DefaultDelimiter = "*"

// LastInput returns the most recent segment of a delimited input history.
// Input made only of delimiters is a literal answer and is returned verbatim.
func LastInput(input, delim string) string {
	if input == "" {
		return ""
	}
	if delim == "" {
		return input
	}
	if strings.Trim(input, delim) == "" {
		return input
	}
	parts := strings.Split(input, delim)
	return parts[len(parts)-1]
}

// DialedCode wraps the dialed digits as a USSD service code, e.g. "121"
// becomes "*121#". A leading "*" or trailing "#" already present is kept once.
func DialedCode(input string) string {
	code := strings.TrimSuffix(strings.TrimPrefix(input, "*"), "#")
	return "*" + code + "#"
}
