package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type CompletionMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type CompletionOptions struct {
	APIKey      string
	MaxTokens   int
	Temperature float64
}

// CompletionClient issues one blocking text-completion request. The context
// carries cancellation and deadline; implementations must honor it.
type CompletionClient interface {
	Complete(ctx context.Context, model ModelInfo, msgs []CompletionMessage, opts CompletionOptions) ([]ContentBlock, error)
}

// GatewayClient talks to the agent gateway, which fronts every provider
// behind an Anthropic-style messages endpoint at
// <base>/<provider>/v1/messages.
type GatewayClient struct {
	BaseURL string
	HTTP    *http.Client
}

func NewGatewayClient(baseURL string) *GatewayClient {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultConfig().GatewayURL
	}
	return &GatewayClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 180 * time.Second},
	}
}

type gatewayRequest struct {
	Model       string              `json:"model"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`
	Temperature float64             `json:"temperature,omitempty"`
	Messages    []CompletionMessage `json:"messages"`
}

type gatewayResponse struct {
	Content []struct {
		Type     string `json:"type"`
		Text     string `json:"text,omitempty"`
		Name     string `json:"name,omitempty"`
		Thinking string `json:"thinking,omitempty"`
	} `json:"content"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
	StopReason string `json:"stop_reason,omitempty"`
}

func (c *GatewayClient) endpoint(provider string) string {
	return c.BaseURL + "/" + provider + "/v1/messages"
}

func (c *GatewayClient) Complete(ctx context.Context, model ModelInfo, msgs []CompletionMessage, opts CompletionOptions) ([]ContentBlock, error) {
	reqBody := gatewayRequest{
		Model:       model.Ref.ID,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		Messages:    msgs,
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(model.Ref.Provider), bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Authorization", "Bearer "+opts.APIKey)
	request.Header.Set("x-api-key", opts.APIKey)
	request.Header.Set("anthropic-version", "2023-06-01")

	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read gateway response: %w", err)
	}

	if resp.StatusCode >= 300 {
		var errResp struct {
			Error *struct {
				Message string `json:"message"`
			} `json:"error"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal(bodyBytes, &errResp)
		if errResp.Error != nil && errResp.Error.Message != "" {
			return nil, fmt.Errorf("gateway error: status %d: %s", resp.StatusCode, errResp.Error.Message)
		}
		if errResp.Message != "" {
			return nil, fmt.Errorf("gateway error: status %d: %s", resp.StatusCode, errResp.Message)
		}
		return nil, fmt.Errorf("gateway error: status %d: %s", resp.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}

	var parsed gatewayResponse
	if err := json.Unmarshal(bodyBytes, &parsed); err != nil {
		return nil, fmt.Errorf("invalid gateway response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("gateway error: %s", parsed.Error.Message)
	}

	blocks := make([]ContentBlock, 0, len(parsed.Content))
	for _, item := range parsed.Content {
		switch item.Type {
		case "text", "output_text":
			blocks = append(blocks, ContentBlock{Kind: BlockKind(item.Type), Text: item.Text})
		case "tool_use", "tool_call":
			blocks = append(blocks, ContentBlock{Kind: BlockToolCall, ToolName: item.Name})
		}
		// Thinking blocks are dropped; callers only consume final text.
	}
	return blocks, nil
}
