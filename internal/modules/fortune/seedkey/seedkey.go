// Package seedkey derives the stable fingerprint of a reading request and the
// decorations that hang off it.
package seedkey

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Length is the number of hex characters kept from the digest.
const Length = 16

const partSeparator = "|"

// NormalizedInput is the subset of a request that identifies a core reading.
// Optional fields are nil when absent.
type NormalizedInput struct {
	Mode       string
	Locale     string
	BirthDate  *string
	BirthTime  *string
	BirthPlace *string
	Question   *string
}

var questionPunctuation = strings.NewReplacer(
	".", "", ",", "", "!", "", "?", "", ";", "", ":", "",
	"'", "", "\"", "", "(", "", ")", "",
)

// Parts returns the canonical, ordered parts hashed by Generate.
func (in NormalizedInput) Parts() []string {
	parts := []string{
		strings.ToLower(strings.TrimSpace(in.Mode)),
		strings.ToLower(strings.TrimSpace(in.Locale)),
	}
	if v, ok := present(in.BirthDate); ok {
		parts = append(parts, "bd:"+v)
	}
	if v, ok := present(in.BirthTime); ok {
		parts = append(parts, "bt:"+v)
	}
	if v, ok := present(in.BirthPlace); ok {
		parts = append(parts, "bp:"+strings.ToLower(v))
	}
	if v, ok := present(in.Question); ok {
		parts = append(parts, "q:"+NormalizeQuestion(v))
	}
	return parts
}

// Generate returns the fingerprint of the input.
func Generate(in NormalizedInput) string {
	sum := sha256.Sum256([]byte(strings.Join(in.Parts(), partSeparator)))
	return hex.EncodeToString(sum[:])[:Length]
}

// NormalizeQuestion lower-cases the question, collapses whitespace and strips punctuation.
func NormalizeQuestion(q string) string {
	collapsed := strings.Join(strings.Fields(strings.ToLower(q)), " ")
	return questionPunctuation.Replace(collapsed)
}

func present(v *string) (string, bool) {
	if v == nil {
		return "", false
	}
	trimmed := strings.TrimSpace(*v)
	return trimmed, trimmed != ""
}
