package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jwebster45206/quantum-engine/pkg/branch"
	"github.com/jwebster45206/quantum-engine/pkg/delta"
	"github.com/jwebster45206/quantum-engine/pkg/engine"
)

const (
	anthropicBaseURL = "https://api.anthropic.com/v1"
	anthropicVersion = "2023-06-01"

	DefaultAnthropicTemperature = 0.7
	DefaultAnthropicMaxTokens   = 2048
)

// AnthropicService implements the generation collaborator against the
// Anthropic API: branch variant generation and unknown-key
// clarification.
type AnthropicService struct {
	apiKey     string
	modelName  string
	httpClient *http.Client
	logger     *slog.Logger
}

var (
	_ engine.GenerationService = (*AnthropicService)(nil)
	_ delta.KeyResolver        = (*AnthropicService)(nil)
)

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicChatRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature *float64           `json:"temperature,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
}

type anthropicContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicChatResponse struct {
	ID      string                  `json:"id"`
	Content []anthropicContentBlock `json:"content"`
	Error   *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func NewAnthropicService(apiKey string, modelName string, logger *slog.Logger) *AnthropicService {
	return &AnthropicService{
		apiKey:    apiKey,
		modelName: modelName,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		logger: logger,
	}
}

// chatCompletion makes a chat completion request to Anthropic.
func (a *AnthropicService) chatCompletion(ctx context.Context, system, user string) (string, error) {
	temperature := DefaultAnthropicTemperature
	anthropicReq := anthropicChatRequest{
		Model:       a.modelName,
		MaxTokens:   DefaultAnthropicMaxTokens,
		Temperature: &temperature,
		System:      system,
		Messages: []anthropicMessage{
			{Role: "user", Content: user},
		},
	}

	reqBody, err := json.Marshal(anthropicReq)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", anthropicBaseURL+"/messages", bytes.NewBuffer(reqBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("x-api-key", a.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)
	req.Header.Set("content-type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to make request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var anthropicResp anthropicChatResponse
	if err := json.Unmarshal(body, &anthropicResp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if anthropicResp.Error != nil {
		return "", fmt.Errorf("API error: %s", anthropicResp.Error.Message)
	}

	var responseText string
	for _, content := range anthropicResp.Content {
		if content.Type == "text" {
			responseText += content.Text
		}
	}
	return responseText, nil
}

// GenerateVariants produces the outcome variants for one branch.
func (a *AnthropicService) GenerateVariants(ctx context.Context, req engine.GenerationRequest) (map[branch.VariantType]*branch.OutcomeVariant, error) {
	system := buildGenerationPrompt(req)
	content, err := a.chatCompletion(ctx, system, "Generate the outcome variants now.")
	if err != nil {
		return nil, err
	}

	variants, err := parseVariantsResponse(content)
	if err != nil {
		a.logger.Warn("Unparsable generation response", "error", err)
		return nil, err
	}
	return variants, nil
}

// keyResolution is the wire shape of a clarification answer.
type keyResolution struct {
	Resolution  string `json:"resolution"` // "existing" or "create_new"
	Key         string `json:"key,omitempty"`
	EntityType  string `json:"entity_type,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

// ResolveKey asks the model which known key an unknown reference meant,
// offering the ranked candidates plus a create-new option.
func (a *AnthropicService) ResolveKey(ctx context.Context, unknownKey string, candidates []string) (delta.Resolution, error) {
	var sb strings.Builder
	sb.WriteString("A generated state change references an unknown entity key ")
	fmt.Fprintf(&sb, "%q. Known candidates: %s. ", unknownKey, strings.Join(candidates, ", "))
	sb.WriteString(`Reply with JSON only: {"resolution":"existing","key":"<candidate>"} `)
	sb.WriteString(`or {"resolution":"create_new","entity_type":"item|npc|container|creature","display_name":"..."}.`)

	content, err := a.chatCompletion(ctx, sb.String(), "Resolve the key now.")
	if err != nil {
		return delta.Resolution{}, err
	}

	raw := extractJSON(content)
	if raw == "" {
		return delta.Resolution{}, fmt.Errorf("no JSON object in clarification response")
	}
	var decoded keyResolution
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return delta.Resolution{}, fmt.Errorf("failed to parse clarification response: %w", err)
	}

	if decoded.Resolution == "create_new" {
		return delta.Resolution{
			CreateNew:   true,
			EntityType:  decoded.EntityType,
			DisplayName: decoded.DisplayName,
		}, nil
	}
	return delta.Resolution{Key: decoded.Key}, nil
}
