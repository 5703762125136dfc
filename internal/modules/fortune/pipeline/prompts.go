package pipeline

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/tarotlab/fortune-core/internal/modules/fortune/reading"
	"github.com/tarotlab/fortune-core/internal/modules/fortune/tier"
)

const (
	coreMaxTokens        = 1200
	coreTemperature      = 0
	expandTemperature    = 0.3
	enforceMaxAttempts   = 2
	defaultTargetLangKey = "en"
)

var targetLanguages = map[string]string{
	"ko": "Korean",
	"ja": "Japanese",
	"en": "English",
	"zh": "Simplified Chinese",
}

var systemRoles = map[string]string{
	SystemSaju: `Role: Expert in Korean Four Pillars of Destiny (Saju).
You are fluent in Heavenly Stems and Earthly Branches, Ten Gods, Five Elements,
Grand Fortune cycles and Annual Fortune. Read the user's birth date and time.
Be professional yet easy to understand.`,
	SystemAstrology: `Role: Expert Western astrologer.
You are fluent in natal charts, planetary placements, house systems and aspects.
Read the user's birth date, time and place and explain what the configuration means.`,
	SystemTarot: `Role: Tarot master.
You are fluent in the Major and Minor Arcana and in spread interpretation.
Read the drawn cards by their symbolism, orientation (upright/reversed) and how they relate.`,
	SystemSynthesis: `Role: Master of Eastern and Western destiny arts.
Integrate Four Pillars (Saju), Western astrology and tarot into one reading.
Name the patterns the systems share, where they complement each other, and one combined guidance.`,
}

var depthInstructions = [...]string{
	tier.Free:     "Summarize the key points concisely in 3-4 sentences.",
	tier.Plus:     "Give a medium-length analysis with the core interpretation and practical advice, split into sections.",
	tier.Pro:      "Give a professional, in-depth analysis: symbolic meaning, patterns, period-specific outlook and actionable guidance. Use markdown inside section content.",
	tier.Archmage: "Give the deepest analysis you can: spiritual, psychological and practical readings, a timeline from past patterns to a 3/6/12 month outlook, interconnections, hidden opportunities and risks. Use markdown inside section content.",
}

const coreResponseFormat = `IMPORTANT: Output MUST be valid JSON only.
ABSOLUTE: DO NOT include luckyElements.

## Output JSON Format
{
  "coreSummary": "Exactly 2 sentences",
  "coreSections": [{"title":"","content":"2-3 sentences only","icon":"emoji"}],
  "coreKeyPoints": ["point1","point2","point3","point4"],
  "coreGuidance": "Exactly 2 sentences"
}

## Requirements (negative-first)
- coreSummary: exactly 2 sentences
- coreSections: exactly 3 items, 2-3 sentences each
- coreKeyPoints: exactly 4 short items
- coreGuidance: exactly 2 sentences
- Even with a detailed question, keep the core SHORT; details belong to later expansion`

const expandResponseFormat = `IMPORTANT: Output MUST be valid JSON only.
ABSOLUTE: DO NOT include luckyElements.

## Output JSON Format
{
  "summary": "Expanded summary",
  "sections": [{"title":"Title","content":"Markdown content","icon":"emoji"}],
  "keyPoints": ["Point 1", "..."],
  "guidance": "Guidance"
}`

type expandShape struct {
	sections  string
	keyPoints string
	closing   string
	question  string
}

var expandShapes = [...]expandShape{
	tier.Free: {sections: "3", keyPoints: "4"},
	tier.Plus: {
		sections:  "4-5",
		keyPoints: "6",
		question:  `a "Why this answer" section (2 paragraphs) and 3 cautions inside guidance`,
	},
	tier.Pro: {
		sections:  "6-7",
		keyPoints: "8-9",
		closing:   `"🎯 Comprehensive Summary" with a 3-5 line TL;DR, a 7-item checklist and 3 cautions`,
		question:  `a "Three possible scenarios" section and a "7-step checklist" section`,
	},
	tier.Archmage: {
		sections:  "9-10",
		keyPoints: "11-14",
		closing:   `"📋 Final Report" with a 5-line TL;DR, 10 actions, 5 self-check questions, 5 risks and the phrase "a reading of possibilities, not certainties"`,
		question:  `a "Five self-check questions" section and an "Uncertainty range" section`,
	},
}

const expandMoreTemplate = `Reading is under target ({currentChars} chars, need {minChars}). Add examples, tips, new sections. Do NOT remove existing content or change conclusions.
Current reading:`

func targetLanguage(locale string) string {
	if name, ok := targetLanguages[locale]; ok {
		return name
	}
	return targetLanguages[defaultTargetLangKey]
}

func buildSystemPrompt(system, locale string, t tier.Tier) string {
	role, ok := systemRoles[strings.ToLower(strings.TrimSpace(system))]
	if !ok {
		role = systemRoles[SystemTarot]
	}
	if !t.Valid() {
		t = tier.Free
	}
	return fmt.Sprintf("%s\n\n## Analysis depth\n%s\n\nOutput MUST be in TARGET_LANGUAGE: %s",
		role, depthInstructions[t], targetLanguage(locale))
}

func buildUserPrompt(p Params) string {
	parts := make([]string, 0, 8)
	if p.Question != "" {
		parts = append(parts, "Question: "+p.Question)
	}
	switch p.Gender {
	case "male", "female":
		parts = append(parts, "Gender: "+p.Gender)
	}
	if p.BirthDate != "" {
		line := "Birth date: " + p.BirthDate
		if p.IsLunar {
			line += " (lunar)"
		}
		parts = append(parts, line)
	}
	if p.BirthTime != "" {
		parts = append(parts, "Birth time: "+p.BirthTime)
	}
	if p.BirthPlace != "" {
		parts = append(parts, "Birth place: "+p.BirthPlace)
	}
	if p.Latitude != nil && p.Longitude != nil {
		parts = append(parts, fmt.Sprintf("Coordinates: %s, %s",
			strconv.FormatFloat(*p.Latitude, 'f', -1, 64), strconv.FormatFloat(*p.Longitude, 'f', -1, 64)))
	}
	if len(p.DrawnCards) > 0 {
		var cards strings.Builder
		cards.WriteString("Drawn cards:")
		for i, c := range p.DrawnCards {
			orientation := "upright"
			if c.Reversed {
				orientation = "reversed"
			}
			fmt.Fprintf(&cards, "\n%d. %s (%s)", i+1, c.Name, orientation)
		}
		parts = append(parts, cards.String())
	}
	if len(p.ChartData) > 0 {
		if raw, err := json.MarshalIndent(p.ChartData, "", "  "); err == nil {
			parts = append(parts, "Chart data:\n"+string(raw))
		}
	}
	return strings.Join(parts, "\n\n")
}

func buildExpandInstruction(t tier.Tier) string {
	shape := expandShapes[t]
	policy := t.Policy()

	var b strings.Builder
	if t == tier.Free {
		fmt.Fprintf(&b, "Based on coreReading. Keep %s sections, %s keyPoints. Target under %d chars total.",
			shape.sections, shape.keyPoints, policy.MaxChars)
		return b.String()
	}
	b.WriteString("Include ALL previousReading content: keep every section and keyPoint, then expand.\n")
	fmt.Fprintf(&b, "- sections: total %s\n- keyPoints: total %s\n", shape.sections, shape.keyPoints)
	if shape.closing != "" {
		fmt.Fprintf(&b, "- final section (mandatory): %s\n", shape.closing)
	}
	if policy.MaxChars >= tier.Archmage.Policy().MaxChars {
		fmt.Fprintf(&b, "Target length: %d+ chars.\n", policy.MinChars)
	} else {
		fmt.Fprintf(&b, "Target length: %d-%d chars.\n", policy.MinChars, policy.MaxChars)
	}
	b.WriteString("NEVER delete or change existing keyPoints, shrink existing sections, or contradict the core conclusion.")
	return b.String()
}

func buildCoreRequest(p Params) (system, user string) {
	return buildSystemPrompt(p.System, p.Locale, tier.Pro) + "\n\n" + coreResponseFormat, buildUserPrompt(p)
}

func buildExpandRequest(core reading.CoreReading, prev reading.Content, t tier.Tier, p Params) (system, user string) {
	system = buildSystemPrompt(p.System, p.Locale, t) + "\n\n" + expandResponseFormat

	var b strings.Builder
	b.WriteString("[coreReading: the core conclusion, NEVER change it]\n")
	b.WriteString(indentJSON(core))
	b.WriteString("\n\n[previousReading: the lower tier result, include all of it and expand]\n")
	b.WriteString(indentJSON(prev))
	b.WriteString("\n\n[Expansion instructions]\n")
	b.WriteString(buildExpandInstruction(t))
	if p.hasQuestion() {
		if q := expandShapes[t].question; q != "" {
			fmt.Fprintf(&b, "\n\n[There is a question: %q] Include %s.", p.Question, q)
		}
	}
	b.WriteString("\n\n[Original input]\n")
	b.WriteString(buildUserPrompt(p))
	return system, b.String()
}

func buildExpandMoreRequest(current reading.Content, t tier.Tier, p Params, minChars, currentChars int) (system, user string) {
	system = buildSystemPrompt(p.System, p.Locale, t) + "\n\n" + expandResponseFormat
	prompt := strings.NewReplacer(
		"{currentChars}", strconv.Itoa(currentChars),
		"{minChars}", strconv.Itoa(minChars),
	).Replace(expandMoreTemplate)
	return system, prompt + "\n" + indentJSON(current)
}

func indentJSON(v any) string {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(raw)
}

// SystemPrompt is the role and depth prompt used for a tier. Other passes
// over a reading reuse it.
func SystemPrompt(system, locale string, t tier.Tier) string {
	return buildSystemPrompt(system, locale, t)
}

// UserPrompt renders the caller input the way every generation step sees it.
func UserPrompt(p Params) string {
	return buildUserPrompt(p)
}
