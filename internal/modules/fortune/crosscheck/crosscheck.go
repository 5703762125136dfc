// Package crosscheck runs a second model over an archmage reading and returns
// what it adds to it.
package crosscheck

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/tarotlab/fortune-core/internal/modules/fortune/pipeline"
	"github.com/tarotlab/fortune-core/internal/modules/fortune/tier"
)

const DefaultModel = "gemini-2.0-flash"

var ErrEmptyResponse = errors.New("cross-check returned no text")

// Verification is the second opinion attached to a reading.
type Verification struct {
	AdditionalInsights string   `json:"additionalInsights"`
	CrossValidation    string   `json:"crossValidation"`
	HiddenPatterns     []string `json:"hiddenPatterns"`
	Model              string   `json:"model"`
}

// Input is the reading to verify and the request it answered.
type Input struct {
	Params   pipeline.Params
	Original any
}

// Generator produces text for a prompt.
type Generator interface {
	GenerateText(ctx context.Context, model, prompt string) (string, error)
}

// Verifier asks a Generator to cross-validate readings.
type Verifier struct {
	gen     Generator
	model   string
	timeout time.Duration
}

func New(gen Generator, model string, timeout time.Duration) *Verifier {
	if strings.TrimSpace(model) == "" {
		model = DefaultModel
	}
	return &Verifier{gen: gen, model: model, timeout: timeout}
}

// NewGemini builds a Verifier backed by the Gemini API.
func NewGemini(ctx context.Context, apiKey, model string, timeout time.Duration) (*Verifier, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return New(&geminiGenerator{client: client}, model, timeout), nil
}

func (v *Verifier) Model() string { return v.model }

// Verify returns the parsed verification. Text that holds no JSON object is
// returned whole as AdditionalInsights.
func (v *Verifier) Verify(ctx context.Context, in Input) (*Verification, error) {
	if v.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.timeout)
		defer cancel()
	}

	text, err := v.gen.GenerateText(ctx, v.model, buildPrompt(in))
	if err != nil {
		return nil, fmt.Errorf("cross-check: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyResponse
	}
	out := parse(text)
	out.Model = v.model
	return out, nil
}

var verifierRoles = map[string]string{
	"ko": "당신은 최고 수준의 점술 검증관입니다. 아래 원본 해석을 교차 검증하고, 놓친 패턴이나 추가 통찰을 제공하세요.",
	"ja": "あなたは最高レベルの占術検証官です。以下の元の解釈を交差検証し、見落としたパターンや追加の洞察を提供してください。",
	"en": "You are a supreme fortune verification officer. Cross-validate the original interpretation below and provide missed patterns or additional insights.",
	"zh": "你是最高级别的占术验证官。交叉验证以下原始解读，提供遗漏的模式或额外洞察。",
}

var formatInstructions = map[string]string{
	"ko": `반드시 다음 JSON 형식으로 응답하세요:
{ "additionalInsights": "추가 통찰", "crossValidation": "교차 검증 의견", "hiddenPatterns": ["숨겨진 패턴 1", ...] }`,
	"ja": `必ず以下のJSON形式で応答してください:
{ "additionalInsights": "追加の洞察", "crossValidation": "交差検証の意見", "hiddenPatterns": ["隠されたパターン1", ...] }`,
	"en": `You MUST respond in this JSON format:
{ "additionalInsights": "Additional insights", "crossValidation": "Cross-validation opinion", "hiddenPatterns": ["Hidden pattern 1", ...] }`,
	"zh": `必须以以下JSON格式回复:
{ "additionalInsights": "额外洞察", "crossValidation": "交叉验证意见", "hiddenPatterns": ["隐藏模式1", ...] }`,
}

func localized(table map[string]string, locale string) string {
	if s, ok := table[locale]; ok {
		return s
	}
	return table["en"]
}

func buildPrompt(in Input) string {
	locale := pipeline.NormalizeLocale(in.Params.Locale)
	original, err := json.MarshalIndent(in.Original, "", "  ")
	if err != nil {
		original = []byte("{}")
	}

	var b strings.Builder
	b.WriteString(localized(verifierRoles, locale))
	b.WriteString("\n\n")
	b.WriteString(pipeline.SystemPrompt(in.Params.System, locale, tier.Archmage))
	b.WriteString("\n\n[User input]\n")
	b.WriteString(pipeline.UserPrompt(in.Params))
	b.WriteString("\n\n[Original reading]\n")
	b.Write(original)
	b.WriteString("\n\n")
	b.WriteString(localized(formatInstructions, locale))
	return b.String()
}

func parse(text string) *Verification {
	raw := firstObject(text)
	if raw != "" {
		var parsed struct {
			AdditionalInsights string          `json:"additionalInsights"`
			CrossValidation    string          `json:"crossValidation"`
			HiddenPatterns     json.RawMessage `json:"hiddenPatterns"`
		}
		if err := json.Unmarshal([]byte(raw), &parsed); err == nil {
			out := &Verification{
				AdditionalInsights: parsed.AdditionalInsights,
				CrossValidation:    parsed.CrossValidation,
				HiddenPatterns:     []string{},
			}
			var patterns []string
			if json.Unmarshal(parsed.HiddenPatterns, &patterns) == nil && patterns != nil {
				out.HiddenPatterns = patterns
			}
			return out
		}
	}
	return &Verification{AdditionalInsights: text, HiddenPatterns: []string{}}
}

// firstObject returns the span from the first '{' to the last '}'.
func firstObject(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}

type geminiGenerator struct {
	client *genai.Client
}

func (g *geminiGenerator) GenerateText(ctx context.Context, model, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, model, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}
