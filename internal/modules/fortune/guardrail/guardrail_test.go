package guardrail

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheck(t *testing.T) {
	cases := []struct {
		name    string
		input   string
		locale  string
		allowed bool
	}{
		{"ko daily fortune", "오늘의 운세를 알려주세요", "ko", true},
		{"ko saju", "내 사주 좀 봐줘", "ko", true},
		{"ko tarot", "타로 카드 3장 뽑아줘", "ko", true},
		{"ko zodiac week", "사자자리 이번주 운세", "ko", true},
		{"ko wealth", "올해 재물운이 어떤가요?", "ko", true},
		{"en horoscope", "What is my horoscope today?", "en", true},
		{"en tarot reading", "Do a tarot reading for me", "en", true},
		{"ja fortune", "今日の運勢を教えてください", "ja", true},
		{"en compatibility", "Is Leo compatible with Scorpio?", "en", true},
		{"ko five elements", "내 오행 분석해줘", "ko", true},

		{"ko coding", "자바스크립트로 투두리스트 만들어줘", "ko", false},
		{"en programming", "Write me a Python function", "en", false},
		{"ko math", "미분 방정식 풀어줘", "ko", false},
		{"en history", "What caused World War II?", "en", false},
		{"ko recipe", "김치찌개 레시피 알려줘", "ko", false},
		{"en translation", "Translate this to Spanish", "en", false},
		{"ko frameworks", "React와 Vue 비교해줘", "ko", false},
		{"ja prescription", "処方箋の書き方を教えて", "ja", false},
		{"en legal", "How to file a lawsuit", "en", false},
		{"ko it setup", "Firebase 데이터베이스 설정 방법", "ko", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := Check(tc.input, tc.locale)
			assert.Equal(t, tc.allowed, v.Allowed, "matched %q", v.Matched)
			if tc.allowed {
				assert.Empty(t, v.Reason)
			} else {
				assert.Equal(t, Reason(tc.locale), v.Reason)
			}
		})
	}
}

func TestCheckEdges(t *testing.T) {
	assert.True(t, Check("   ", "en").Allowed)
	assert.True(t, Check("Should I take the new job?", "en").Allowed, "unclassified questions pass")
	assert.True(t, Check("Tarot view on my Python career?", "en").Allowed, "fortune keywords win")
	assert.True(t, Check("Is a leopard lucky for me?", "en").Allowed)
	assert.True(t, Check("best recipes", "en").Allowed, "keywords match whole words")

	v := Check("PYTHON code please", "en")
	assert.False(t, v.Allowed)
	assert.Equal(t, "python", v.Matched)
}

func TestReasonFallsBackToKorean(t *testing.T) {
	assert.Equal(t, reasons["ko"], Reason("fr"))
	assert.Equal(t, reasons["en"], Reason(" EN "))
}
