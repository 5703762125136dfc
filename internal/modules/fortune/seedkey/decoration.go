package seedkey

import (
	"strconv"
	"strings"
)

// Decoration is the set of "lucky" elements shown next to a reading.
type Decoration struct {
	Color     string `json:"color"`
	Number    string `json:"number"`
	Direction string `json:"direction"`
}

const fallbackLocale = "en"

var luckyColors = map[string][]string{
	"ko": {"빨간색", "파란색", "초록색", "보라색", "금색", "은색", "분홍색", "하늘색", "주황색", "청록색", "자주색", "연두색"},
	"ja": {"赤", "青", "緑", "紫", "ゴールド", "シルバー", "ピンク", "水色", "オレンジ", "ターコイズ", "藤色", "若草色"},
	"en": {"Red", "Blue", "Green", "Purple", "Gold", "Silver", "Pink", "Sky Blue", "Orange", "Turquoise", "Magenta", "Lime"},
	"zh": {"红色", "蓝色", "绿色", "紫色", "金色", "银色", "粉色", "天蓝色", "橙色", "青绿色", "品红色", "浅绿色"},
}

var luckyDirections = map[string][]string{
	"ko": {"동쪽", "서쪽", "남쪽", "북쪽", "동남쪽", "동북쪽", "서남쪽", "서북쪽"},
	"ja": {"東", "西", "南", "北", "東南", "東北", "西南", "西北"},
	"en": {"East", "West", "South", "North", "Southeast", "Northeast", "Southwest", "Northwest"},
	"zh": {"东方", "西方", "南方", "北方", "东南方", "东北方", "西南方", "西北方"},
}

// Decorations derives the lucky elements from a seed key. It never calls out
// and returns the same value for the same arguments.
func Decorations(seedKey, locale string) Decoration {
	h := Prefix(seedKey)

	loc := strings.ToLower(strings.TrimSpace(locale))
	colors, ok := luckyColors[loc]
	if !ok {
		colors = luckyColors[fallbackLocale]
	}
	directions, ok := luckyDirections[loc]
	if !ok {
		directions = luckyDirections[fallbackLocale]
	}

	return Decoration{
		Color:     colors[h%uint64(len(colors))],
		Number:    strconv.FormatUint((h>>4)%9+1, 10),
		Direction: directions[(h>>8)%uint64(len(directions))],
	}
}

// Prefix interprets the first 8 hex characters of the key as an integer.
// Malformed keys yield 0.
func Prefix(seedKey string) uint64 {
	if len(seedKey) < 8 {
		return 0
	}
	h, err := strconv.ParseUint(seedKey[:8], 16, 64)
	if err != nil {
		return 0
	}
	return h
}

// ProviderSeed maps a seed key into the signed 31-bit range providers accept.
func ProviderSeed(seedKey string) int64 {
	return int64(Prefix(seedKey) % 2147483647)
}
