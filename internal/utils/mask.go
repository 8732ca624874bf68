package utils

import "strings"

// MaskPhone reduces a phone number to a fixed-length masked tail: all
// non-digits are dropped and only the last four digits survive behind a
// "****" prefix. Inputs without any digits mask to the empty string.
func MaskPhone(phone string) string {
	var digits strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	if digits.Len() == 0 {
		return ""
	}

	d := digits.String()
	if len(d) > 4 {
		d = d[len(d)-4:]
	}
	return "****" + d
}

// MaskEmail reduces an email address to a masked local-part and domain-root:
// the first character of each is preserved, the remainder is replaced by a
// run of '*' capped at four, and any subdomain suffix is kept verbatim.
// Strings without an '@' pass through unchanged.
func MaskEmail(email string) string {
	if email == "" {
		return ""
	}

	at := strings.Index(email, "@")
	if at < 0 {
		return email
	}

	local := email[:at]
	domain := email[at+1:]
	if domain == "" {
		return email
	}

	domainParts := strings.Split(domain, ".")
	root := domainParts[0]

	rest := ""
	if len(domainParts) > 1 {
		rest = "." + strings.Join(domainParts[1:], ".")
	}

	return maskPart(local) + "@" + maskPart(root) + rest
}

func maskPart(part string) string {
	runes := []rune(part)
	if len(runes) == 0 {
		return "*"
	}
	if len(runes) <= 2 {
		return string(runes[0]) + "*"
	}

	n := len(runes) - 1
	if n > 4 {
		n = 4
	}
	return string(runes[0]) + strings.Repeat("*", n)
}
