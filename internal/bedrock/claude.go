package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

// ErrGenerationFailed wraps any generator-side failure: invocation error,
// timeout, or an unusable response body.
var ErrGenerationFailed = errors.New("generation failed")

// Claude generates recommendation responses with an Anthropic model on
// Bedrock.
type Claude struct {
	client      *Client
	modelID     string
	temperature float64
}

// Claude API request format (what Bedrock expects)
type claudeMessageRequest struct {
	AnthropicVersion string          `json:"anthropic_version"`
	MaxTokens        int             `json:"max_tokens"`
	Temperature      float64         `json:"temperature,omitempty"`
	Messages         []claudeMessage `json:"messages"`
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Claude API response format (what Bedrock returns)
type claudeMessageResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

const anthropicVersion = "bedrock-2023-05-31"

func NewClaude(client *Client, modelID string, temperature float64) *Claude {
	return &Claude{client: client, modelID: modelID, temperature: temperature}
}

// Generate runs one completion for the prompt. Cancellation and deadline
// come from ctx.
func (c *Claude) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	payload := claudeMessageRequest{
		AnthropicVersion: anthropicVersion,
		MaxTokens:        maxTokens,
		Temperature:      c.temperature,
		Messages: []claudeMessage{
			{
				Role:    "user",
				Content: prompt,
			},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	output, err := c.client.Runtime.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     &c.modelID,
		Body:        body,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	var response claudeMessageResponse
	if err := json.Unmarshal(output.Body, &response); err != nil {
		return "", fmt.Errorf("%w: failed to unmarshal response: %v", ErrGenerationFailed, err)
	}
	if len(response.Content) == 0 || response.Content[0].Text == "" {
		return "", fmt.Errorf("%w: model returned no content", ErrGenerationFailed)
	}

	return response.Content[0].Text, nil
}
