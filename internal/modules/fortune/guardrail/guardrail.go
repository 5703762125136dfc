// Package guardrail keeps questions inside the fortune-telling domain.
package guardrail

import (
	"regexp"
	"strings"
	"unicode"
)

// Verdict is the outcome of Check.
type Verdict struct {
	Allowed bool
	// Reason is a user-facing message, set when the question is blocked.
	Reason string
	// Matched is the keyword that decided the verdict, if any.
	Matched string
}

var fortune = newMatcher(
	// en
	"horoscope", "horoscopes", "tarot", "astrology", "astrological", "zodiac", "fortune", "fortunes",
	"destiny", "compatible", "compatibility", "natal", "birth chart", "saju", "four pillars", "luck", "lucky",
	"aries", "taurus", "gemini", "cancer", "leo", "virgo", "libra", "scorpio", "sagittarius",
	"capricorn", "aquarius", "pisces", "arcana",
	// ko
	"운세", "사주", "팔자", "타로", "궁합", "별자리", "오행", "점성", "점괘", "운명", "띠별",
	"재물운", "연애운", "금전운", "건강운", "직장운", "애정운", "신년운",
	"양자리", "황소자리", "쌍둥이자리", "게자리", "사자자리", "처녀자리", "천칭자리", "전갈자리",
	"궁수자리", "염소자리", "물병자리", "물고기자리",
	// ja
	"運勢", "占い", "タロット", "星座", "相性", "四柱推命", "運命", "おみくじ",
	// zh
	"运势", "算命", "塔罗", "八字", "命理", "运气", "占卜", "星盘",
)

var offTopic = newMatcher(
	// en
	"code", "coding", "program", "programming", "python", "javascript", "typescript", "java", "golang",
	"function", "react", "vue", "database", "firebase", "sql", "algorithm", "debug", "compile",
	"math", "equation", "calculus", "derivative", "integral", "history", "world war", "recipe", "cook",
	"translate", "translation", "lawsuit", "lawyer", "legal", "prescription", "diagnosis", "homework", "essay",
	// ko
	"코딩", "프로그래밍", "자바스크립트", "파이썬", "코드", "함수", "데이터베이스", "투두리스트", "미분", "적분",
	"방정식", "수학", "역사", "레시피", "요리법", "번역", "소송", "법률", "처방",
	// ja
	"プログラミング", "コード", "処方箋", "数学", "翻訳", "レシピ", "歴史", "法律", "訴訟",
	// zh
	"编程", "代码", "数学", "翻译", "食谱", "历史", "法律", "处方",
)

var reasons = map[string]string{
	"ko": "운세, 사주, 타로, 점성술과 관련된 질문만 답변할 수 있어요.",
	"ja": "運勢・四柱推命・タロット・占星術に関する質問のみお答えできます。",
	"en": "I can only answer questions about fortune telling: horoscopes, Saju, tarot and astrology.",
	"zh": "只能回答与运势、八字、塔罗和占星相关的问题。",
}

// Check allows anything that mentions the fortune domain, blocks questions that
// only name an unrelated domain, and allows the rest.
func Check(question, locale string) Verdict {
	q := strings.TrimSpace(question)
	if q == "" {
		return Verdict{Allowed: true}
	}
	if kw, ok := fortune.match(q); ok {
		return Verdict{Allowed: true, Matched: kw}
	}
	if kw, ok := offTopic.match(q); ok {
		return Verdict{Allowed: false, Reason: Reason(locale), Matched: kw}
	}
	return Verdict{Allowed: true}
}

// Reason is the blocked message for locale, defaulting to Korean.
func Reason(locale string) string {
	if r, ok := reasons[strings.ToLower(strings.TrimSpace(locale))]; ok {
		return r
	}
	return reasons["ko"]
}

// matcher finds ASCII keywords on word boundaries and other keywords as substrings.
type matcher struct {
	words *regexp.Regexp
	runes []string
}

func newMatcher(keywords ...string) matcher {
	var ascii []string
	var m matcher
	for _, kw := range keywords {
		if isASCII(kw) {
			ascii = append(ascii, regexp.QuoteMeta(kw))
			continue
		}
		m.runes = append(m.runes, kw)
	}
	if len(ascii) > 0 {
		m.words = regexp.MustCompile(`(?i)\b(?:` + strings.Join(ascii, "|") + `)\b`)
	}
	return m
}

func (m matcher) match(q string) (string, bool) {
	if m.words != nil {
		if kw := m.words.FindString(q); kw != "" {
			return strings.ToLower(kw), true
		}
	}
	for _, kw := range m.runes {
		if strings.Contains(q, kw) {
			return kw, true
		}
	}
	return "", false
}

func isASCII(s string) bool {
	for _, r := range s {
		if r > unicode.MaxASCII {
			return false
		}
	}
	return true
}
