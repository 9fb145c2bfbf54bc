package router

import (
	"context"

	"github.com/nextlevelbuilder/chatrelay/internal/channels"
	"github.com/nextlevelbuilder/chatrelay/internal/intent"
)

// EventUserInput is the generic transition sent for free-text answers that
// are not a named transition (e.g. "2" when picking from a numbered list).
const EventUserInput = "user_input"

// StartRequest starts a flow for one session.
type StartRequest struct {
	SessionID      string         `json:"sessionId"`
	InitialContext map[string]any `json:"initialContext,omitempty"`
}

// FlowEvent is a transition hint passed alongside raw text.
type FlowEvent struct {
	Type  string `json:"type"`
	Value string `json:"value,omitempty"`
}

// Card is a rich item returned by a flow (menu item, vehicle option...).
type Card struct {
	ID       string            `json:"id"`
	Title    string            `json:"title"`
	Subtitle string            `json:"subtitle,omitempty"`
	ImageURL string            `json:"imageUrl,omitempty"`
	Buttons  []channels.Button `json:"buttons,omitempty"`
}

// FlowResult is what the flow engine returns for start and continue.
type FlowResult struct {
	Response        string              `json:"response"`
	Buttons         []channels.Button   `json:"buttons,omitempty"`
	ListItems       []channels.ListItem `json:"listItems,omitempty"`
	ListButtonText  string              `json:"listButtonText,omitempty"`
	Cards           []Card              `json:"cards,omitempty"`
	ImageURL        string              `json:"imageUrl,omitempty"`
	ImageCaption    string              `json:"imageCaption,omitempty"`
	RequestLocation bool                `json:"requestLocation,omitempty"`
	FlowRunID       string              `json:"flowRunId"`
	CurrentState    string              `json:"currentState"`
	Completed       bool                `json:"completed"`
	// Metadata is merged into the session (nil values delete keys).
	Metadata map[string]any `json:"metadata,omitempty"`
}

// FlowEngine executes named multi-turn flows.
type FlowEngine interface {
	StartFlow(ctx context.Context, flowID string, req StartRequest) (*FlowResult, error)
	ProcessMessage(ctx context.Context, sessionID, text string, event *FlowEvent) (*FlowResult, error)
}

// Classification is a classifier verdict. Decision is attached by the router.
type Classification struct {
	Intent     string                `json:"intent"`
	Confidence float64               `json:"confidence"`
	Provider   string                `json:"provider"`
	Decision   *intent.RouteDecision `json:"decision,omitempty"`
}

// Classifier labels free text with an intent.
type Classifier interface {
	Classify(ctx context.Context, text string) (Classification, error)
}

// AgentRequest is the context handed to the generative fallback.
type AgentRequest struct {
	Identifier string         `json:"identifier"`
	Text       string         `json:"text"`
	Channel    string         `json:"channel"`
	Language   string         `json:"language,omitempty"`
	Intent     string         `json:"intent,omitempty"`
	Reason     string         `json:"reason,omitempty"`
	Profile    map[string]any `json:"profile,omitempty"`
}

// Agent produces open-ended replies.
type Agent interface {
	Reply(ctx context.Context, req AgentRequest) (string, error)
}

// BusinessResult is the response shape of every business service call.
type BusinessResult struct {
	Success bool           `json:"success"`
	Message string         `json:"message,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

// OrderService handles existing orders.
type OrderService interface {
	Reorder(ctx context.Context, userID string) (*BusinessResult, error)
	CancelOrder(ctx context.Context, userID, orderID string) (*BusinessResult, error)
	RequestRefund(ctx context.Context, userID, orderID, reason string) (*BusinessResult, error)
}

// WalletService reads wallet balances.
type WalletService interface {
	Balance(ctx context.Context, userID string) (*BusinessResult, error)
}

// LoyaltyService reads and converts loyalty points.
type LoyaltyService interface {
	Points(ctx context.Context, userID string) (*BusinessResult, error)
	ConvertToWallet(ctx context.Context, userID string) (*BusinessResult, error)
}

// WishlistService manages saved items.
type WishlistService interface {
	List(ctx context.Context, userID string) (*BusinessResult, error)
	Add(ctx context.Context, userID, item string) (*BusinessResult, error)
}

// Services bundles the optional business collaborators. Any field may be nil.
type Services struct {
	Orders   OrderService
	Wallet   WalletService
	Loyalty  LoyaltyService
	Wishlist WishlistService
}
