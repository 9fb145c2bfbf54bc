package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/chatrelay/internal/router"
)

func fastRetry(c *httpClient) {
	c.retryConfig = RetryConfig{Attempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestNLUClassifier_RetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "pizza", body["text"])
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		w.Write([]byte(`{"intent":"Order_Food","confidence":1.4}`))
	}))
	defer srv.Close()

	c := NewNLUClassifier(srv.URL, "k")
	fastRetry(&c.httpClient)

	res, err := c.Classify(context.Background(), "pizza")
	require.NoError(t, err)
	assert.Equal(t, "order_food", res.Intent)
	assert.Equal(t, 1.0, res.Confidence)
	assert.Equal(t, int32(2), hits.Load())
}

func TestRetryDo_StopsOnClientError(t *testing.T) {
	calls := 0
	_, err := RetryDo(context.Background(), RetryConfig{Attempts: 5, BaseDelay: time.Millisecond}, func() (int, error) {
		calls++
		return 0, &HTTPError{Status: http.StatusBadRequest}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

type stubClassifier struct {
	res router.Classification
	err error
	n   int
}

func (s *stubClassifier) Classify(context.Context, string) (router.Classification, error) {
	s.n++
	return s.res, s.err
}

func TestClassifierChain(t *testing.T) {
	failing := &stubClassifier{err: errors.New("down")}
	abstain := &stubClassifier{res: router.Classification{Intent: "unknown"}}
	good := &stubClassifier{res: router.Classification{Intent: "order_food", Confidence: 0.8, Provider: "llm"}}

	res, err := NewClassifierChain(failing, nil, abstain, good).Classify(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "llm", res.Provider)
	assert.Equal(t, 1, failing.n)
	assert.Equal(t, 1, abstain.n)

	res, err = NewClassifierChain(failing).Classify(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "unknown", res.Intent)
	assert.Zero(t, res.Confidence)
}

func TestFlowEngineClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/flows/food_order_v1/start":
			var req router.StartRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "+919876543210", req.SessionID)
			w.Write([]byte(`{"response":"What would you like?","flowRunId":"run-1","currentState":"browse_menu","buttons":[{"id":"veg","title":"Veg"}]}`))
		case "/sessions/+919876543210/messages":
			w.Write([]byte(`{"response":"Done","flowRunId":"run-1","currentState":"end","completed":true}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewFlowEngineClient(srv.URL, "")
	res, err := c.StartFlow(context.Background(), "food_order_v1", router.StartRequest{SessionID: "+919876543210"})
	require.NoError(t, err)
	assert.Equal(t, "browse_menu", res.CurrentState)
	require.Len(t, res.Buttons, 1)
	assert.Equal(t, "Veg", res.Buttons[0].Title)

	res, err = c.ProcessMessage(context.Background(), "+919876543210", "1", &router.FlowEvent{Type: router.EventUserInput, Value: "1"})
	require.NoError(t, err)
	assert.True(t, res.Completed)
}

type failingAgent struct{ calls atomic.Int32 }

func (f *failingAgent) Reply(context.Context, router.AgentRequest) (string, error) {
	f.calls.Add(1)
	return "", errors.New("boom")
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	inner := &failingAgent{}
	a := NewBreakerAgent(inner, BreakerConfig{MaxFailures: 2, Timeout: time.Minute})

	for i := 0; i < 2; i++ {
		_, err := a.Reply(context.Background(), router.AgentRequest{})
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrCircuitOpen)
	}
	assert.Equal(t, gobreaker.StateOpen, a.b.State())

	_, err := a.Reply(context.Background(), router.AgentRequest{})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(2), inner.calls.Load(), "open breaker must not reach the agent")
}

func TestCountsAsSuccess(t *testing.T) {
	assert.True(t, countsAsSuccess(nil))
	assert.True(t, countsAsSuccess(context.Canceled))
	assert.True(t, countsAsSuccess(&HTTPError{Status: 404}))
	assert.False(t, countsAsSuccess(&HTTPError{Status: 502}))
	assert.False(t, countsAsSuccess(context.DeadlineExceeded))
}

type fakeChatter struct{ content string }

func (f fakeChatter) Chat(context.Context, ChatRequest) (*ChatResponse, error) {
	return &ChatResponse{Content: f.content}, nil
}

func TestLLMClassifier_ParsesFencedJSON(t *testing.T) {
	c := NewLLMClassifier(fakeChatter{content: "```json\n{\"intent\":\"check_wallet\",\"confidence\":0.82}\n```"})
	res, err := c.Classify(context.Background(), "how much money do I have")
	require.NoError(t, err)
	assert.Equal(t, "check_wallet", res.Intent)
	assert.InDelta(t, 0.82, res.Confidence, 1e-9)
	assert.Equal(t, "llm", res.Provider)
}

func TestOpenAIAgent_EmptyReplyIsError(t *testing.T) {
	_, err := NewOpenAIAgent(fakeChatter{}).Reply(context.Background(), router.AgentRequest{Text: "hi"})
	assert.Error(t, err)
}
