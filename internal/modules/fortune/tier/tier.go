package tier

import (
	"fmt"
	"strings"
)

// Tier is an entitlement level. Higher tiers expand the reading of the tier below.
type Tier int

const (
	Free Tier = iota
	Plus
	Pro
	Archmage
)

// Unlimited is the daily limit sentinel that never blocks a request.
const Unlimited = -1

var names = [...]string{"free", "plus", "pro", "archmage"}

// All returns every tier in ascending order.
func All() []Tier {
	return []Tier{Free, Plus, Pro, Archmage}
}

func (t Tier) String() string {
	if !t.Valid() {
		return fmt.Sprintf("tier(%d)", int(t))
	}
	return names[t]
}

// Valid reports whether t is one of the known tiers.
func (t Tier) Valid() bool {
	return t >= Free && t <= Archmage
}

// Parse resolves a tier by name.
func Parse(raw string) (Tier, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	for i, n := range names {
		if n == name {
			return Tier(i), nil
		}
	}
	return Free, fmt.Errorf("unknown tier %q", raw)
}

func (t Tier) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("unknown tier %d", int(t))
	}
	return []byte(names[t]), nil
}

func (t *Tier) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Policy holds the generation budget of a tier.
type Policy struct {
	ExpandTokens int
	MinChars     int
	// MaxChars is only passed to the provider as a target.
	MaxChars int
}

var policies = [...]Policy{
	Free:     {ExpandTokens: 800, MinChars: 0, MaxChars: 900},
	Plus:     {ExpandTokens: 2000, MinChars: 1400, MaxChars: 2200},
	Pro:      {ExpandTokens: 3500, MinChars: 2200, MaxChars: 3500},
	Archmage: {ExpandTokens: 6000, MinChars: 3200, MaxChars: 99999},
}

func (t Tier) Policy() Policy {
	if !t.Valid() {
		return policies[Free]
	}
	return policies[t]
}

// Defaults is the entitlement granted to a tier.
type Defaults struct {
	DailyQuestionLimit int
	CanSynthesis       bool
	MaxTokens          int
}

var defaults = [...]Defaults{
	Free:     {DailyQuestionLimit: 5, CanSynthesis: false, MaxTokens: 500},
	Plus:     {DailyQuestionLimit: 30, CanSynthesis: false, MaxTokens: 2000},
	Pro:      {DailyQuestionLimit: 100, CanSynthesis: true, MaxTokens: 4000},
	Archmage: {DailyQuestionLimit: Unlimited, CanSynthesis: true, MaxTokens: 8000},
}

func (t Tier) Defaults() Defaults {
	if !t.Valid() {
		return defaults[Free]
	}
	return defaults[t]
}
