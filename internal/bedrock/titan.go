package bedrock

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

// Titan embeds text with an Amazon Titan embedding model.
type Titan struct {
	client     *Client
	modelID    string
	dimensions int
}

// Titan request format (what Bedrock expects)
type titanEmbedRequest struct {
	InputText  string `json:"inputText"`
	Dimensions int    `json:"dimensions,omitempty"`
	Normalize  bool   `json:"normalize"`
}

// Titan response format (what Bedrock returns)
type titanEmbedResponse struct {
	Embedding           []float64 `json:"embedding"`
	InputTextTokenCount int       `json:"inputTextTokenCount"`
}

func NewTitan(client *Client, modelID string, dimensions int) *Titan {
	if dimensions <= 0 {
		dimensions = 1024
	}
	return &Titan{client: client, modelID: modelID, dimensions: dimensions}
}

// EmbedQuery returns the normalized embedding vector for one text.
func (t *Titan) EmbedQuery(ctx context.Context, text string) ([]float64, error) {
	payload := titanEmbedRequest{
		InputText:  text,
		Dimensions: t.dimensions,
		Normalize:  true,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embed request: %w", err)
	}

	output, err := t.client.Runtime.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     &t.modelID,
		Body:        body,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to invoke embedding model: %w", err)
	}

	var response titanEmbedResponse
	if err := json.Unmarshal(output.Body, &response); err != nil {
		return nil, fmt.Errorf("failed to unmarshal embedding response: %w", err)
	}
	if len(response.Embedding) == 0 {
		return nil, fmt.Errorf("embedding model returned an empty vector")
	}

	return response.Embedding, nil
}

// EmbedDocuments embeds a batch of texts one call at a time, preserving
// order. Titan has no batch endpoint.
func (t *Titan) EmbedDocuments(ctx context.Context, texts []string) ([][]float64, error) {
	vectors := make([][]float64, 0, len(texts))
	for i, text := range texts {
		vector, err := t.EmbedQuery(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("failed to embed document %d: %w", i, err)
		}
		vectors = append(vectors, vector)
	}
	return vectors, nil
}
