package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nextlevelbuilder/chatrelay/internal/router"
)

// OpenAIClient calls OpenAI-compatible chat completion APIs
// (OpenAI, Groq, OpenRouter, DeepSeek, vLLM, etc.).
type OpenAIClient struct {
	httpClient
	defaultModel string
}

func NewOpenAIClient(apiKey, apiBase, defaultModel string) *OpenAIClient {
	if apiBase == "" {
		apiBase = "https://api.openai.com/v1"
	}
	return &OpenAIClient{
		httpClient:   newHTTPClient("openai", apiBase, apiKey),
		defaultModel: defaultModel,
	}
}

func (p *OpenAIClient) DefaultModel() string { return p.defaultModel }

func (p *OpenAIClient) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}
	var oaiResp openAIResponse
	if err := p.postJSON(ctx, "/chat/completions", p.buildRequestBody(model, req), &oaiResp, true); err != nil {
		return nil, err
	}
	return parseResponse(&oaiResp), nil
}

func (p *OpenAIClient) buildRequestBody(model string, req ChatRequest) map[string]interface{} {
	body := map[string]interface{}{
		"model":    model,
		"messages": req.Messages,
		"stream":   false,
	}
	if req.MaxTokens > 0 {
		body["max_tokens"] = req.MaxTokens
	}
	if req.Temperature != nil {
		body["temperature"] = *req.Temperature
	}
	if req.JSONMode {
		body["response_format"] = map[string]string{"type": "json_object"}
	}
	return body
}

func parseResponse(resp *openAIResponse) *ChatResponse {
	result := &ChatResponse{FinishReason: "stop", Usage: resp.Usage}
	if len(resp.Choices) > 0 {
		result.Content = strings.TrimSpace(resp.Choices[0].Message.Content)
		if fr := resp.Choices[0].FinishReason; fr != "" {
			result.FinishReason = fr
		}
	}
	return result
}

// Chatter is the subset of OpenAIClient the agent and classifier need.
type Chatter interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

const agentSystemPrompt = `You are the assistant of a food ordering and parcel delivery service.
Answer briefly in plain text (no markdown), in the user's language.
You can help with ordering food, sending parcels, tracking orders, wallet and loyalty points.
Never invent order numbers, prices or balances.`

// OpenAIAgent is the generative fallback.
type OpenAIAgent struct {
	llm Chatter
}

func NewOpenAIAgent(llm Chatter) *OpenAIAgent {
	return &OpenAIAgent{llm: llm}
}

func (a *OpenAIAgent) Reply(ctx context.Context, req router.AgentRequest) (string, error) {
	var sys strings.Builder
	sys.WriteString(agentSystemPrompt)
	if req.Language != "" {
		fmt.Fprintf(&sys, "\nPreferred language code: %s.", req.Language)
	}
	if name, ok := req.Profile["name"].(string); ok && name != "" {
		fmt.Fprintf(&sys, "\nThe user's name is %s.", name)
	}
	if req.Intent != "" {
		fmt.Fprintf(&sys, "\nDetected intent: %s.", req.Intent)
	}
	if req.Channel == "voice" || req.Channel == "sms" {
		sys.WriteString("\nKeep the answer under 300 characters.")
	}

	temp := 0.4
	resp, err := a.llm.Chat(ctx, ChatRequest{
		Messages: []Message{
			{Role: "system", Content: sys.String()},
			{Role: "user", Content: req.Text},
		},
		MaxTokens:   400,
		Temperature: &temp,
	})
	if err != nil {
		return "", fmt.Errorf("agent reply: %w", err)
	}
	if resp.Content == "" {
		return "", fmt.Errorf("agent reply: empty response")
	}
	return resp.Content, nil
}

const classifierPrompt = `Classify the user's message into exactly one intent from this list:
order_food, browse_menu, search_food, parcel_booking, track_order, check_wallet,
loyalty_points, reorder, view_wishlist, add_to_wishlist, cancel_order,
refund_request, convert_points, login, greeting, chitchat, help, unknown.
Reply with JSON only: {"intent": "<intent>", "confidence": <0..1>}`

// LLMClassifier is the secondary classifier backed by a chat model.
type LLMClassifier struct {
	llm Chatter
}

func NewLLMClassifier(llm Chatter) *LLMClassifier {
	return &LLMClassifier{llm: llm}
}

func (c *LLMClassifier) Classify(ctx context.Context, text string) (router.Classification, error) {
	temp := 0.0
	resp, err := c.llm.Chat(ctx, ChatRequest{
		Messages: []Message{
			{Role: "system", Content: classifierPrompt},
			{Role: "user", Content: text},
		},
		MaxTokens:   60,
		Temperature: &temp,
		JSONMode:    true,
	})
	if err != nil {
		return router.Classification{}, fmt.Errorf("llm classify: %w", err)
	}

	var out struct {
		Intent     string  `json:"intent"`
		Confidence float64 `json:"confidence"`
	}
	raw := strings.TrimSpace(resp.Content)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimSuffix(strings.TrimPrefix(raw, "```"), "```")
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &out); err != nil {
		return router.Classification{}, fmt.Errorf("llm classify: decode %q: %w", resp.Content, err)
	}
	return router.Classification{
		Intent:     strings.ToLower(strings.TrimSpace(out.Intent)),
		Confidence: clamp01(out.Confidence),
		Provider:   "llm",
	}, nil
}

var (
	_ router.Agent      = (*OpenAIAgent)(nil)
	_ router.Classifier = (*LLMClassifier)(nil)
)
