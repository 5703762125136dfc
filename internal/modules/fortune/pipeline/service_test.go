package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tarotlab/fortune-core/internal/modules/fortune/corecache"
	"github.com/tarotlab/fortune-core/internal/modules/fortune/provider"
	"github.com/tarotlab/fortune-core/internal/modules/fortune/reading"
	"github.com/tarotlab/fortune-core/internal/modules/fortune/seedkey"
	"github.com/tarotlab/fortune-core/internal/modules/fortune/tier"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const coreBody = `{
	"coreSummary": "The Fool opens a new road. Step on it lightly.",
	"coreSections": [
		{"title": "Beginnings", "content": "A fresh start is near.", "icon": "🌱"},
		{"title": "Risk", "content": "Leap, but look first.", "icon": "⚠️"},
		{"title": "Spirit", "content": "Stay curious.", "icon": "✨"}
	],
	"coreKeyPoints": ["new start", "trust", "lightness", "caution"],
	"coreGuidance": "Take one small step today. Keep your plans flexible."
}`

func foolParams() Params {
	return Params{
		System:     SystemTarot,
		Locale:     "en",
		DrawnCards: []Card{{Name: "The Fool"}},
	}
}

func tierForTokens(maxTokens int) tier.Tier {
	for _, t := range tier.All() {
		if t.Policy().ExpandTokens == maxTokens {
			return t
		}
	}
	return tier.Free
}

var sectionsPerTier = map[tier.Tier]int{tier.Plus: 5, tier.Pro: 7, tier.Archmage: 10}

// expandBody answers an expansion with fresh sections long enough to clear the
// tier floor. It never repeats the previous reading, so carrying content
// forward is left to the pipeline.
func expandBody(t tier.Tier) string {
	n := sectionsPerTier[t]
	per := t.Policy().MinChars/n + 40
	body := reading.Content{Summary: "summary " + t.String(), Guidance: "guidance " + t.String()}
	for i := 0; i < n; i++ {
		body.Sections = append(body.Sections, reading.Section{
			Title:   fmt.Sprintf("%s section %d", t, i),
			Content: strings.Repeat("a", per),
			Icon:    "🔮",
		})
		body.KeyPoints = append(body.KeyPoints, fmt.Sprintf("%s point %d", t, i))
	}
	raw, _ := json.Marshal(body)
	return string(raw)
}

func fortuneModel() *provider.Fake {
	return provider.NewFake(func(req provider.Request) provider.Result {
		if req.Seed != nil {
			return provider.Text(coreBody)
		}
		return provider.Text(expandBody(tierForTokens(req.MaxTokens)))
	})
}

func newService(p provider.Provider) (*Service, *corecache.Memory) {
	cache := corecache.NewMemory(corecache.Options{})
	return NewService(cache, provider.Stages{Core: p, Expand: p}, nil), cache
}

func TestInterpretFreeAndCacheRepeat(t *testing.T) {
	model := fortuneModel()
	svc, _ := newService(model)
	ctx := context.Background()

	first, err := svc.Interpret(ctx, foolParams(), tier.Free, tier.Free)
	require.NoError(t, err)
	assert.Len(t, first.Sections, 3)
	assert.Len(t, first.KeyPoints, 4)
	assert.False(t, first.Meta.CacheHit)
	assert.Equal(t, "9d97def9eb22bf73", first.Meta.SeedKey)
	assert.Equal(t, seedkey.Decoration{Color: "Silver", Number: "9", Direction: "Southwest"}, first.LuckyElements)
	assert.Equal(t, 1, model.CallCount())

	second, err := svc.Interpret(ctx, foolParams(), tier.Free, tier.Free)
	require.NoError(t, err)
	assert.True(t, second.Meta.CacheHit)
	assert.Equal(t, 1, model.CallCount(), "repeat must not call the provider")
	if diff := cmp.Diff(first.Content, second.Content); diff != "" {
		t.Fatalf("cached reading differs (-first +second):\n%s", diff)
	}
}

func TestCoreRequestIsSeeded(t *testing.T) {
	model := fortuneModel()
	svc, _ := newService(model)

	_, key, hit, err := svc.GenerateCore(context.Background(), foolParams())
	require.NoError(t, err)
	assert.False(t, hit)

	calls := model.Calls()
	require.Len(t, calls, 1)
	req := calls[0]
	require.NotNil(t, req.Seed)
	assert.Equal(t, seedkey.ProviderSeed(key), *req.Seed)
	assert.EqualValues(t, 496492282, *req.Seed)
	assert.Equal(t, 1200, req.MaxTokens)
	assert.Zero(t, req.Temperature)
	assert.True(t, req.JSON)
	assert.Contains(t, req.User, "The Fool (upright)")
}

func TestCoreArityWithZeroSections(t *testing.T) {
	svc, _ := newService(provider.Scripted(provider.Text(`{"coreSummary":"only this"}`)))

	got, err := svc.Interpret(context.Background(), foolParams(), tier.Free, tier.Free)
	require.NoError(t, err)
	assert.Equal(t, "only this", got.Summary)
	require.Len(t, got.Sections, 3)
	require.Len(t, got.KeyPoints, 4)
	assert.Equal(t, "Additional Insight", got.Sections[0].Title)
	assert.Equal(t, 3, got.Meta.SectionCount)
	assert.Equal(t, 4, got.Meta.KeyPointCount)
}

func TestCoreTruncatesExtraItems(t *testing.T) {
	body := `{"coreSections":[{"title":"1"},{"title":"2"},{"title":"3"},{"title":"4"}],
		"coreKeyPoints":["a","b","c","d","e","f"]}`
	svc, _ := newService(provider.Scripted(provider.Text(body)))

	core, _, _, err := svc.GenerateCore(context.Background(), foolParams())
	require.NoError(t, err)
	assert.Len(t, core.CoreSections, 3)
	assert.Equal(t, []string{"a", "b", "c", "d"}, core.CoreKeyPoints)
}

func TestDegradedCoreIsNotCached(t *testing.T) {
	model := provider.Scripted(provider.Failure(errors.New("upstream 503")), provider.Text(coreBody))
	svc, cache := newService(model)
	ctx := context.Background()

	core, _, hit, err := svc.GenerateCore(ctx, foolParams())
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "Further analysis is needed.", core.CoreSections[0].Content)
	assert.Zero(t, cache.Len())

	core, _, hit, err = svc.GenerateCore(ctx, foolParams())
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "Beginnings", core.CoreSections[0].Title)
	assert.Equal(t, 1, cache.Len())
}

func TestInterpretArchmageIncludesFree(t *testing.T) {
	svc, _ := newService(fortuneModel())
	ctx := context.Background()

	free, err := svc.Interpret(ctx, foolParams(), tier.Free, tier.Free)
	require.NoError(t, err)
	top, err := svc.Interpret(ctx, foolParams(), tier.Archmage, tier.Archmage)
	require.NoError(t, err)

	assert.Subset(t, top.KeyPoints, free.KeyPoints)
	assert.Greater(t, top.Meta.TotalChars, free.Meta.TotalChars)
	assert.GreaterOrEqual(t, top.Meta.TotalChars, tier.Archmage.Policy().MinChars)
	assert.Equal(t, tier.Archmage, top.Meta.EffectiveTier)
	assert.True(t, reading.Includes(top.Content, free.Content))
}

func TestMalformedExpansionKeepsPreviousReading(t *testing.T) {
	model := provider.NewFake(func(req provider.Request) provider.Result {
		if req.Seed != nil {
			return provider.Text(coreBody)
		}
		return provider.Text("the oracle is silent")
	})
	svc, _ := newService(model)
	ctx := context.Background()

	free, err := svc.Interpret(ctx, foolParams(), tier.Free, tier.Free)
	require.NoError(t, err)
	plus, err := svc.Interpret(ctx, foolParams(), tier.Plus, tier.Plus)
	require.NoError(t, err)

	if diff := cmp.Diff(free.Content, plus.Content); diff != "" {
		t.Fatalf("plus should fall back to the free reading (-free +plus):\n%s", diff)
	}
	// one core call, one expansion and two expand-more attempts
	assert.Equal(t, 4, model.CallCount())
}

func TestExpansionFallsBackFieldByField(t *testing.T) {
	svc, _ := newService(provider.Scripted(provider.Text(`{"summary":"richer","sections":"oops","keyPoints":null}`)))
	prev := reading.Content{
		Summary:   "old",
		Sections:  []reading.Section{{Title: "A", Content: "a"}},
		KeyPoints: []string{"k1"},
		Guidance:  "keep",
	}

	got := svc.expand(context.Background(), reading.CoreReading{}, prev, tier.Plus, foolParams())
	assert.Equal(t, "richer", got.Summary)
	assert.Equal(t, prev.Sections, got.Sections)
	assert.Equal(t, prev.KeyPoints, got.KeyPoints)
	assert.Equal(t, "keep", got.Guidance)
}

func TestExpansionCarriesDroppedContent(t *testing.T) {
	svc, _ := newService(provider.Scripted(provider.Text(
		`{"summary":"s","sections":[{"title":"B","content":"b"}],"keyPoints":["k2"],"guidance":"g"}`)))
	prev := reading.Content{
		Sections:  []reading.Section{{Title: "A", Content: "a"}},
		KeyPoints: []string{"k1"},
	}

	got := svc.expand(context.Background(), reading.CoreReading{}, prev, tier.Pro, foolParams())
	assert.Equal(t, []string{"k2", "k1"}, got.KeyPoints)
	require.Len(t, got.Sections, 2)
	assert.Equal(t, "A", got.Sections[1].Title)
}

func TestEnforceMinLength(t *testing.T) {
	short := reading.Content{Summary: "tiny", KeyPoints: []string{"k"}}

	t.Run("free untouched", func(t *testing.T) {
		model := fortuneModel()
		svc, _ := newService(model)
		got := svc.EnforceMinLength(context.Background(), short, tier.Free, foolParams())
		assert.Equal(t, short, got)
		assert.Zero(t, model.CallCount())
	})

	t.Run("stops once over the floor", func(t *testing.T) {
		model := fortuneModel()
		svc, _ := newService(model)
		got := svc.EnforceMinLength(context.Background(), short, tier.Plus, foolParams())
		assert.GreaterOrEqual(t, reading.Measure(got).TotalChars, tier.Plus.Policy().MinChars)
		assert.Contains(t, got.KeyPoints, "k")
		require.Equal(t, 1, model.CallCount())

		prompt := model.Calls()[0].User
		assert.Contains(t, prompt, fmt.Sprintf("(%d chars, need %d)", reading.Measure(short).TotalChars, 1400))
		assert.InDelta(t, 0.3, model.Calls()[0].Temperature, 1e-9)
		assert.Equal(t, 2000, model.Calls()[0].MaxTokens)
	})

	t.Run("gives up after two attempts", func(t *testing.T) {
		model := provider.Scripted(provider.Text(`{"summary":"still tiny"}`))
		svc, _ := newService(model)
		got := svc.EnforceMinLength(context.Background(), short, tier.Pro, foolParams())
		assert.Equal(t, 2, model.CallCount())
		assert.Equal(t, "still tiny", got.Summary)
		assert.Equal(t, []string{"k"}, got.KeyPoints)
	})
}

func TestCompareAll(t *testing.T) {
	model := fortuneModel()
	svc, _ := newService(model)

	cmpResult, err := svc.CompareAll(context.Background(), foolParams())
	require.NoError(t, err)
	require.Len(t, cmpResult.Tiers, 4)
	assert.Equal(t, "9d97def9eb22bf73", cmpResult.SeedKey)

	ordered := cmpResult.Ordered()
	assert.True(t, ordered[0].Meta.CacheHit)
	for i, e := range ordered {
		assert.Equal(t, tier.All()[i], e.Meta.EffectiveTier)
		assert.Equal(t, tier.Free, e.Meta.UserTier)
		assert.Equal(t, cmpResult.SeedKey, e.Meta.SeedKey)
		if i == 0 {
			continue
		}
		assert.False(t, e.Meta.CacheHit)
		assert.Greater(t, e.Meta.TotalChars, ordered[i-1].Meta.TotalChars)
		assert.True(t, reading.Includes(e.Content, ordered[i-1].Content), "tier %s", e.Meta.EffectiveTier)
	}
	// one core call plus one expansion for each paid tier
	assert.Equal(t, 4, model.CallCount())

	raw, err := json.Marshal(cmpResult)
	require.NoError(t, err)
	var decoded struct {
		Tiers map[string]json.RawMessage `json:"tiers"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	for _, name := range []string{"free", "plus", "pro", "archmage"} {
		assert.Contains(t, decoded.Tiers, name)
	}
}

func TestInterpretHonoursCancellation(t *testing.T) {
	svc, _ := newService(fortuneModel())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Interpret(ctx, foolParams(), tier.Pro, tier.Pro)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExpandPromptCarriesQuestionBlock(t *testing.T) {
	p := foolParams()
	p.Question = "Will I move abroad?"
	_, user := buildExpandRequest(reading.CoreReading{}, reading.Content{}, tier.Pro, p)
	assert.Contains(t, user, `[There is a question: "Will I move abroad?"]`)
	assert.Contains(t, user, "2200-3500")
	assert.Contains(t, user, "🎯 Comprehensive Summary")

	_, user = buildExpandRequest(reading.CoreReading{}, reading.Content{}, tier.Archmage, foolParams())
	assert.Contains(t, user, "3200+ chars")
	assert.NotContains(t, user, "There is a question")
}
