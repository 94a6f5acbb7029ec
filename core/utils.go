package core

import (
	"crypto/rand"
	"math/big"
	"regexp"
	"strings"
)

var wsRunRegex = regexp.MustCompile(`\s{2,}`)

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// CollapseSpaces trims `s` and collapses internal whitespace runs to a single space.
func CollapseSpaces(s string) string {
	return wsRunRegex.ReplaceAllString(strings.TrimSpace(s), " ")
}

// Capitalize upper-cases the first letter of `s`.
func Capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

const (
	lowercaseChars = "abcdefghijklmnopqrstuvwxyz"
	uppercaseChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digitChars     = "0123456789"
	symbolChars    = "!@#$%^&*()_+[]{}|;:,.<>?"
)

func randomInt(max int) int {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		panic(err) // crypto/rand is unavailable; nothing sane to do
	}
	return int(n.Int64())
}

// RandomPassword generates a random password of the given length containing at
// least one lowercase letter, one uppercase letter, one digit and one symbol.
func RandomPassword(length int) string {
	charset := lowercaseChars + uppercaseChars + digitChars + symbolChars

	chars := make([]byte, 0, length)
	chars = append(chars, lowercaseChars[randomInt(len(lowercaseChars))])
	chars = append(chars, uppercaseChars[randomInt(len(uppercaseChars))])
	chars = append(chars, digitChars[randomInt(len(digitChars))])
	chars = append(chars, symbolChars[randomInt(len(symbolChars))])
	for i := len(chars); i < length; i++ {
		chars = append(chars, charset[randomInt(len(charset))])
	}

	// shuffle so the guaranteed characters do not always lead
	for i := len(chars) - 1; i > 0; i-- {
		j := randomInt(i + 1)
		chars[i], chars[j] = chars[j], chars[i]
	}
	return string(chars)
}

// RandomDigits generates a random numeric code of the given length.
func RandomDigits(length int) string {
	chars := make([]byte, length)
	for i := range chars {
		chars[i] = digitChars[randomInt(len(digitChars))]
	}
	return string(chars)
}
