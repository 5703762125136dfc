package provider

import (
	"context"
	"errors"
	neturl "net/url"
	"strings"
	"time"

	openaiclient "github.com/openai/openai-go/v2"
	openaioption "github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAI calls chat completions on OpenAI or any compatible endpoint.
type OpenAI struct {
	name    string
	model   string
	timeout time.Duration
	client  openaiclient.Client
}

// NewOpenAI builds a client. endpoint may be empty for api.openai.com.
func NewOpenAI(name, apiKey, endpoint, model string, timeout time.Duration) (*OpenAI, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("AI provider api key is empty")
	}
	model = strings.TrimSpace(model)
	if model == "" {
		model = defaultOpenAIModel
	}

	opts := []openaioption.RequestOption{
		openaioption.WithAPIKey(apiKey),
		openaioption.WithMaxRetries(0),
	}
	if normalized := normalizeOpenAIBaseURL(endpoint); normalized != "" {
		opts = append(opts, openaioption.WithBaseURL(normalized))
	}

	return &OpenAI{
		name:    name,
		model:   model,
		timeout: timeout,
		client:  openaiclient.NewClient(opts...),
	}, nil
}

func (o *OpenAI) Name() string { return o.name + "/" + o.model }

func (o *OpenAI) Generate(ctx context.Context, req Request) Result {
	ctx, cancel := withTimeout(ctx, o.timeout)
	defer cancel()

	messages := make([]openaiclient.ChatCompletionMessageParamUnion, 0, 2)
	if strings.TrimSpace(req.System) != "" {
		messages = append(messages, openaiclient.SystemMessage(req.System))
	}
	messages = append(messages, openaiclient.UserMessage(req.User))

	params := openaiclient.ChatCompletionNewParams{
		Model:       openaiclient.ChatModel(o.model),
		Messages:    messages,
		Temperature: openaiclient.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openaiclient.Int(int64(req.MaxTokens))
	}
	if req.Seed != nil {
		params.Seed = openaiclient.Int(*req.Seed)
	}
	if req.JSON {
		params.ResponseFormat = openaiclient.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return Failure(err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return Failure(ErrEmptyResponse)
	}
	return Text(resp.Choices[0].Message.Content)
}

func normalizeOpenAIBaseURL(raw string) string {
	base := strings.TrimSpace(raw)
	if base == "" {
		return ""
	}
	parsed, err := neturl.Parse(base)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return strings.TrimRight(base, "/")
	}

	path := strings.TrimRight(parsed.Path, "/")
	if !strings.HasSuffix(path, "/v1") {
		if path == "" {
			path = "/v1"
		} else {
			path += "/v1"
		}
	}
	parsed.Path = path
	return strings.TrimRight(parsed.String(), "/")
}
