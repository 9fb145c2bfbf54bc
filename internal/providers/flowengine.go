package providers

import (
	"context"
	"net/url"

	"github.com/nextlevelbuilder/chatrelay/internal/router"
)

// FlowEngineClient talks to the flow engine service over HTTP.
//
//	POST {base}/flows/{flowId}/start            {sessionId, initialContext}
//	POST {base}/sessions/{sessionId}/messages   {text, event}
type FlowEngineClient struct {
	httpClient
}

func NewFlowEngineClient(apiBase, apiKey string) *FlowEngineClient {
	return &FlowEngineClient{httpClient: newHTTPClient("flow-engine", apiBase, apiKey)}
}

func (c *FlowEngineClient) StartFlow(ctx context.Context, flowID string, req router.StartRequest) (*router.FlowResult, error) {
	var out router.FlowResult
	// Starting a flow creates a run; never retried.
	if err := c.postJSON(ctx, "/flows/"+url.PathEscape(flowID)+"/start", req, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *FlowEngineClient) ProcessMessage(ctx context.Context, sessionID, text string, event *router.FlowEvent) (*router.FlowResult, error) {
	body := struct {
		Text  string            `json:"text"`
		Event *router.FlowEvent `json:"event,omitempty"`
	}{Text: text, Event: event}

	var out router.FlowResult
	if err := c.postJSON(ctx, "/sessions/"+url.PathEscape(sessionID)+"/messages", body, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

var _ router.FlowEngine = (*FlowEngineClient)(nil)
