package skills

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// NFTMetaMind writes collection-ready NFT metadata with an LLM.
type NFTMetaMind struct {
	client *openai.Client
	model  string
}

// NewNFTMetaMind creates the metadata skill
func NewNFTMetaMind(apiKey string) *NFTMetaMind {
	return &NFTMetaMind{
		client: openai.NewClient(apiKey),
		model:  openai.GPT4oMini,
	}
}

// NewNFTMetaMindWithConfig builds the skill against a custom endpoint (tests)
func NewNFTMetaMindWithConfig(apiKey, baseURL string) *NFTMetaMind {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	return &NFTMetaMind{
		client: openai.NewClientWithConfig(cfg),
		model:  openai.GPT4oMini,
	}
}

func (m *NFTMetaMind) Slug() string     { return "nft-metamind" }
func (m *NFTMetaMind) Category() string { return "blockchain" }

const metamindSystemPrompt = `You write NFT metadata. Given a collection theme and
a piece description, respond with JSON only, in this exact shape:
{"name": "...", "description": "...", "attributes": [{"trait_type": "...", "value": "..."}]}
Keep the name under 60 characters and the description under 300.`

// Execute writes metadata for input["theme"] and input["description"].
func (m *NFTMetaMind) Execute(ctx context.Context, input map[string]any) (map[string]any, error) {
	theme, err := requireString(input, "theme")
	if err != nil {
		return nil, err
	}
	description := optString(input, "description", theme)

	resp, err := m.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: m.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: metamindSystemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: fmt.Sprintf("Collection theme: %s\nPiece: %s", theme, description),
			},
		},
		Temperature: 0.8,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamFailed, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty completion", ErrUpstreamFailed)
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var metadata struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Attributes  []struct {
			TraitType string `json:"trait_type"`
			Value     string `json:"value"`
		} `json:"attributes"`
	}
	if err := json.Unmarshal([]byte(content), &metadata); err != nil {
		return nil, fmt.Errorf("%w: model returned invalid metadata: %v", ErrUpstreamFailed, err)
	}

	attrs := make([]map[string]any, len(metadata.Attributes))
	for i, a := range metadata.Attributes {
		attrs[i] = map[string]any{"trait_type": a.TraitType, "value": a.Value}
	}

	return map[string]any{
		"name":        metadata.Name,
		"description": metadata.Description,
		"attributes":  attrs,
		"theme":       theme,
	}, nil
}
