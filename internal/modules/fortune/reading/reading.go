// Package reading holds the reading shapes shared by the cache and the pipeline.
package reading

import (
	"strings"
	"unicode/utf8"
)

const (
	CoreSectionCount  = 3
	CoreKeyPointCount = 4
)

// Section is one titled block of a reading.
type Section struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Icon    string `json:"icon"`
}

// CoreReading is the canonical short-form reading cached per seed key.
type CoreReading struct {
	CoreSummary   string    `json:"coreSummary"`
	CoreSections  []Section `json:"coreSections"`
	CoreKeyPoints []string  `json:"coreKeyPoints"`
	CoreGuidance  string    `json:"coreGuidance"`
}

// Content is the reading produced for a single tier.
type Content struct {
	Summary   string    `json:"summary"`
	Sections  []Section `json:"sections"`
	KeyPoints []string  `json:"keyPoints"`
	Guidance  string    `json:"guidance"`
}

// LengthMetrics summarises the size of a Content.
type LengthMetrics struct {
	TotalChars    int `json:"totalChars"`
	SectionCount  int `json:"sectionCount"`
	KeyPointCount int `json:"keyPointCount"`
}

// Measure counts characters over summary, "title content" of every section,
// every key point and guidance, joined without separators.
func Measure(c Content) LengthMetrics {
	total := utf8.RuneCountInString(c.Summary) + utf8.RuneCountInString(c.Guidance)
	for _, s := range c.Sections {
		total += utf8.RuneCountInString(s.Title) + 1 + utf8.RuneCountInString(s.Content)
	}
	for _, kp := range c.KeyPoints {
		total += utf8.RuneCountInString(kp)
	}
	return LengthMetrics{
		TotalChars:    total,
		SectionCount:  len(c.Sections),
		KeyPointCount: len(c.KeyPoints),
	}
}

// FromCore maps the core 1:1 into a tier reading. Slices are copied so the
// cached core never aliases a tier result.
func FromCore(core CoreReading) Content {
	return Content{
		Summary:   core.CoreSummary,
		Sections:  append([]Section(nil), core.CoreSections...),
		KeyPoints: append([]string(nil), core.CoreKeyPoints...),
		Guidance:  core.CoreGuidance,
	}
}

// Clone returns a deep copy of c.
func (c Content) Clone() Content {
	c.Sections = append([]Section(nil), c.Sections...)
	c.KeyPoints = append([]string(nil), c.KeyPoints...)
	return c
}

// NormalizeCore truncates or pads the core to exactly three sections and four
// key points using the locale filler.
func NormalizeCore(core CoreReading, locale string) CoreReading {
	fill := fillerFor(locale)

	sections := make([]Section, 0, CoreSectionCount)
	for _, s := range core.CoreSections {
		if len(sections) == CoreSectionCount {
			break
		}
		sections = append(sections, s)
	}
	for len(sections) < CoreSectionCount {
		sections = append(sections, fill.section)
	}

	points := make([]string, 0, CoreKeyPointCount)
	for _, kp := range core.CoreKeyPoints {
		if len(points) == CoreKeyPointCount {
			break
		}
		points = append(points, kp)
	}
	for len(points) < CoreKeyPointCount {
		points = append(points, fill.keyPoint)
	}

	core.CoreSections = sections
	core.CoreKeyPoints = points
	return core
}

// CarryForward re-inserts every key point and section title of prev that next
// dropped, keeping next's order and appending the missing entries.
func CarryForward(prev, next Content) Content {
	out := next.Clone()

	titles := make(map[string]struct{}, len(out.Sections))
	for _, s := range out.Sections {
		titles[strings.TrimSpace(s.Title)] = struct{}{}
	}
	for _, s := range prev.Sections {
		if _, ok := titles[strings.TrimSpace(s.Title)]; ok {
			continue
		}
		titles[strings.TrimSpace(s.Title)] = struct{}{}
		out.Sections = append(out.Sections, s)
	}

	points := make(map[string]struct{}, len(out.KeyPoints))
	for _, kp := range out.KeyPoints {
		points[kp] = struct{}{}
	}
	for _, kp := range prev.KeyPoints {
		if _, ok := points[kp]; ok {
			continue
		}
		points[kp] = struct{}{}
		out.KeyPoints = append(out.KeyPoints, kp)
	}

	if strings.TrimSpace(out.Summary) == "" {
		out.Summary = prev.Summary
	}
	if strings.TrimSpace(out.Guidance) == "" {
		out.Guidance = prev.Guidance
	}
	return out
}

// Includes reports whether every key point and section title of lower is
// present in higher.
func Includes(higher, lower Content) bool {
	titles := make(map[string]struct{}, len(higher.Sections))
	for _, s := range higher.Sections {
		titles[strings.TrimSpace(s.Title)] = struct{}{}
	}
	for _, s := range lower.Sections {
		if _, ok := titles[strings.TrimSpace(s.Title)]; !ok {
			return false
		}
	}
	points := make(map[string]struct{}, len(higher.KeyPoints))
	for _, kp := range higher.KeyPoints {
		points[kp] = struct{}{}
	}
	for _, kp := range lower.KeyPoints {
		if _, ok := points[kp]; !ok {
			return false
		}
	}
	return true
}

type filler struct {
	section  Section
	keyPoint string
}

var fillers = map[string]filler{
	"ko": {Section{Title: "추가 해석", Content: "추가 분석이 필요합니다.", Icon: "🔍"}, "참고 포인트"},
	"ja": {Section{Title: "追加の解釈", Content: "さらなる分析が必要です。", Icon: "🔍"}, "参考ポイント"},
	"en": {Section{Title: "Additional Insight", Content: "Further analysis is needed.", Icon: "🔍"}, "Point to consider"},
	"zh": {Section{Title: "补充解读", Content: "需要进一步分析。", Icon: "🔍"}, "参考要点"},
}

func fillerFor(locale string) filler {
	if f, ok := fillers[strings.ToLower(strings.TrimSpace(locale))]; ok {
		return f
	}
	return fillers["en"]
}
