package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
)

// OpenAI implements Provider on the official SDK's responses API.
type OpenAI struct {
	client    openai.Client
	model     string
	maxTokens int64
}

var _ Provider = (*OpenAI)(nil)

// NewOpenAI creates an OpenAI provider.
func NewOpenAI(apiKey, model string, maxTokens int64) *OpenAI {
	if model == "" {
		model = "gpt-4o"
	}
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &OpenAI{
		client:    openai.NewClient(option.WithAPIKey(apiKey)),
		model:     model,
		maxTokens: maxTokens,
	}
}

func (o *OpenAI) Name() string {
	return fmt.Sprintf("OpenAI (%s)", o.model)
}

func (o *OpenAI) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	params := responses.ResponseNewParams{
		Model:           o.model,
		MaxOutputTokens: openai.Int(o.maxTokens),
		Instructions:    openai.String(systemPrompt),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: []responses.ResponseInputItemUnionParam{
				responses.ResponseInputItemParamOfMessage(userPrompt, responses.EasyInputMessageRoleUser),
			},
		},
	}

	resp, err := o.client.Responses.New(ctx, params)
	if err != nil {
		if svcErr := classifyOpenAIErr(err); svcErr != nil {
			return "", svcErr
		}
		return "", wrapTransportErr("openai", ctx, err)
	}

	text := resp.OutputText()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("openai returned empty response")
	}
	return text, nil
}

// classifyOpenAIErr recognizes rate-limit and server errors from the SDK
// error string; nil means the generic transport mapping applies.
func classifyOpenAIErr(err error) *ServiceError {
	s := strings.ToLower(err.Error())
	switch {
	case strings.Contains(s, "429") || strings.Contains(s, "rate limit") || strings.Contains(s, "too many requests"):
		return &ServiceError{Kind: ServiceRateLimited, Message: "openai rate limited", Err: err}
	case strings.Contains(s, "500") || strings.Contains(s, "server_error") || strings.Contains(s, "internal server error"):
		return &ServiceError{Kind: ServiceUnavailable, Message: "openai server error", Err: err}
	default:
		return nil
	}
}
