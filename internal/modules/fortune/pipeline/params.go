package pipeline

import (
	"strings"

	"github.com/tarotlab/fortune-core/internal/modules/fortune/seedkey"
)

// Reading systems.
const (
	SystemSaju      = "saju"
	SystemAstrology = "astrology"
	SystemTarot     = "tarot"
	SystemSynthesis = "synthesis"
)

// DefaultLocale is used when the request names no supported locale.
const DefaultLocale = "ko"

var (
	systems = map[string]struct{}{
		SystemSaju: {}, SystemAstrology: {}, SystemTarot: {}, SystemSynthesis: {},
	}
	locales = map[string]struct{}{"ko": {}, "ja": {}, "en": {}, "zh": {}}
)

// ValidSystem reports whether name is a known reading system.
func ValidSystem(name string) bool {
	_, ok := systems[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// NormalizeLocale lower-cases the locale and falls back to DefaultLocale.
func NormalizeLocale(locale string) string {
	loc := strings.ToLower(strings.TrimSpace(locale))
	if _, ok := locales[loc]; ok {
		return loc
	}
	return DefaultLocale
}

// Card is a drawn tarot card.
type Card struct {
	Name     string `json:"name"`
	Reversed bool   `json:"reversed"`
}

// Params is the caller input of a reading.
type Params struct {
	System     string         `json:"system"`
	Locale     string         `json:"locale"`
	Question   string         `json:"question,omitempty"`
	BirthDate  string         `json:"birthDate,omitempty"`
	BirthTime  string         `json:"birthTime,omitempty"`
	BirthPlace string         `json:"birthPlace,omitempty"`
	IsLunar    bool           `json:"isLunar,omitempty"`
	Latitude   *float64       `json:"latitude,omitempty"`
	Longitude  *float64       `json:"longitude,omitempty"`
	DrawnCards []Card         `json:"drawnCards,omitempty"`
	ChartData  map[string]any `json:"chartData,omitempty"`
	Gender     string         `json:"gender,omitempty"`
}

// Normalized returns the subset of p that identifies its core reading.
// Cards, coordinates, gender and chart data are not part of it.
func (p Params) Normalized() seedkey.NormalizedInput {
	return seedkey.NormalizedInput{
		Mode:       p.System,
		Locale:     p.Locale,
		BirthDate:  optional(p.BirthDate),
		BirthTime:  optional(p.BirthTime),
		BirthPlace: optional(p.BirthPlace),
		Question:   optional(p.Question),
	}
}

// SeedKey is the fingerprint of p.
func (p Params) SeedKey() string {
	return seedkey.Generate(p.Normalized())
}

func (p Params) hasQuestion() bool {
	return strings.TrimSpace(p.Question) != ""
}

func optional(v string) *string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return &v
}
