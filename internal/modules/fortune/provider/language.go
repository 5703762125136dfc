package provider

import (
	"context"
	"errors"
	"strings"
	"time"

	anthropicclient "github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	jetai "go.jetify.com/ai"
	jetapi "go.jetify.com/ai/api"
	jetanthropic "go.jetify.com/ai/provider/anthropic"
)

const (
	defaultAnthropicModel  = "claude-haiku-4-5-20251001"
	jsonOnlyInstruction    = "Respond with a single JSON object and nothing else."
	defaultMaxOutputTokens = 1024
)

// Language drives a jetify language model. Used for Anthropic, which has no
// JSON response mode or sampling seed; JSON is requested in the system prompt.
type Language struct {
	name    string
	timeout time.Duration
	model   jetapi.LanguageModel
}

func NewAnthropic(name, apiKey, endpoint, model string, timeout time.Duration) (*Language, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("AI provider api key is empty")
	}
	modelID := strings.TrimSpace(model)
	if modelID == "" {
		modelID = defaultAnthropicModel
	}

	opts := []anthropicoption.RequestOption{
		anthropicoption.WithAPIKey(apiKey),
		anthropicoption.WithMaxRetries(0),
	}
	if endpoint = strings.TrimSpace(endpoint); endpoint != "" {
		opts = append(opts, anthropicoption.WithBaseURL(strings.TrimRight(endpoint, "/")))
	}

	client := anthropicclient.NewClient(opts...)
	return &Language{
		name:    name + "/" + modelID,
		timeout: timeout,
		model:   jetanthropic.NewLanguageModel(modelID, jetanthropic.WithClient(client)),
	}, nil
}

func (l *Language) Name() string { return l.name }

func (l *Language) Generate(ctx context.Context, req Request) Result {
	ctx, cancel := withTimeout(ctx, l.timeout)
	defer cancel()

	system := req.System
	if req.JSON {
		system = strings.TrimSpace(system + "\n\n" + jsonOnlyInstruction)
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxOutputTokens
	}

	resp, err := jetai.GenerateText(
		ctx,
		buildPromptMessages(system, req.User),
		jetai.WithModel(l.model),
		jetai.WithMaxOutputTokens(maxTokens),
		jetai.WithTemperature(req.Temperature),
	)
	if err != nil {
		return Failure(err)
	}
	text, err := extractText(resp)
	if err != nil {
		return Failure(err)
	}
	return Text(text)
}

func buildPromptMessages(systemPrompt, prompt string) []jetapi.Message {
	messages := make([]jetapi.Message, 0, 2)
	if strings.TrimSpace(systemPrompt) != "" {
		messages = append(messages, &jetapi.SystemMessage{Content: systemPrompt})
	}
	messages = append(messages, &jetapi.UserMessage{Content: jetapi.ContentFromText(prompt)})
	return messages
}

func extractText(resp *jetapi.Response) (string, error) {
	if resp == nil {
		return "", ErrEmptyResponse
	}

	var full strings.Builder
	for _, block := range resp.Content {
		textBlock, ok := block.(*jetapi.TextBlock)
		if !ok || textBlock.Text == "" {
			continue
		}
		full.WriteString(textBlock.Text)
	}

	text := full.String()
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
