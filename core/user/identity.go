package user

import (
	"regexp"
	"strings"
)

var nonAlphaRegex = regexp.MustCompile(`[^a-z]`)

// identityLastNameLen bounds the last-name part of a derived identity.
const identityLastNameLen = 7

// DeriveIdentity builds the login handle prefix for a person: the first letter
// of the first name followed by up to 7 alphabetic characters of the last name,
// all lower-cased. Collisions are resolved by the registrar with a numeric suffix.
func DeriveIdentity(firstName, lastName string) string {
	first := nonAlphaRegex.ReplaceAllString(strings.ToLower(firstName), "")
	last := nonAlphaRegex.ReplaceAllString(strings.ToLower(lastName), "")
	if len(last) > identityLastNameLen {
		last = last[:identityLastNameLen]
	}
	if first == "" {
		return last
	}
	return first[:1] + last
}
