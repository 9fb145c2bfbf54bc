package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/nextlevelbuilder/chatrelay/internal/router"
)

// ErrCircuitOpen is returned while a collaborator's breaker is open.
var ErrCircuitOpen = errors.New("collaborator circuit open")

// Default circuit breaker settings.
const (
	defaultCBMaxFailures uint32        = 5
	defaultCBTimeout     time.Duration = 30 * time.Second
	defaultCBInterval    time.Duration = 60 * time.Second
)

// BreakerConfig configures the circuit breaker behavior.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures before the circuit opens.
	MaxFailures uint32
	// Timeout is how long the circuit stays open before going half-open.
	Timeout time.Duration
	// Interval clears failure counts while closed. 0 uses the default.
	Interval time.Duration
}

// Breaker guards one collaborator.
type Breaker struct {
	name string
	cb   *gobreaker.CircuitBreaker[any]
}

func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultCBMaxFailures
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultCBTimeout
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultCBInterval
	}

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1, // one probe in half-open state
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: countsAsSuccess,
	})
	return &Breaker{name: name, cb: cb}
}

// State returns the current breaker state for health reporting.
func (b *Breaker) State() gobreaker.State { return b.cb.State() }

// countsAsSuccess keeps caller cancellations and client errors from tripping
// the breaker; only timeouts, transport errors and 5xx/429 count.
func countsAsSuccess(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	var he *HTTPError
	if errors.As(err, &he) {
		return he.Status < 500 && he.Status != 429
	}
	return false
}

// do runs fn through b.
func do[T any](b *Breaker, fn func() (T, error)) (T, error) {
	var zero T
	v, err := b.cb.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, fmt.Errorf("%s: %w", b.name, ErrCircuitOpen)
		}
		return zero, err
	}
	out, _ := v.(T)
	return out, nil
}

// BreakerFlowEngine wraps a FlowEngine with a circuit breaker.
type BreakerFlowEngine struct {
	inner router.FlowEngine
	b     *Breaker
}

func NewBreakerFlowEngine(inner router.FlowEngine, cfg BreakerConfig) *BreakerFlowEngine {
	return &BreakerFlowEngine{inner: inner, b: NewBreaker("flow-engine", cfg)}
}

func (e *BreakerFlowEngine) StartFlow(ctx context.Context, flowID string, req router.StartRequest) (*router.FlowResult, error) {
	return do(e.b, func() (*router.FlowResult, error) { return e.inner.StartFlow(ctx, flowID, req) })
}

func (e *BreakerFlowEngine) ProcessMessage(ctx context.Context, sessionID, text string, event *router.FlowEvent) (*router.FlowResult, error) {
	return do(e.b, func() (*router.FlowResult, error) { return e.inner.ProcessMessage(ctx, sessionID, text, event) })
}

// BreakerClassifier wraps a Classifier with a circuit breaker.
type BreakerClassifier struct {
	inner router.Classifier
	b     *Breaker
}

func NewBreakerClassifier(name string, inner router.Classifier, cfg BreakerConfig) *BreakerClassifier {
	return &BreakerClassifier{inner: inner, b: NewBreaker("classifier:"+name, cfg)}
}

func (c *BreakerClassifier) Classify(ctx context.Context, text string) (router.Classification, error) {
	return do(c.b, func() (router.Classification, error) { return c.inner.Classify(ctx, text) })
}

// BreakerAgent wraps an Agent with a circuit breaker.
type BreakerAgent struct {
	inner router.Agent
	b     *Breaker
}

func NewBreakerAgent(inner router.Agent, cfg BreakerConfig) *BreakerAgent {
	return &BreakerAgent{inner: inner, b: NewBreaker("agent", cfg)}
}

func (a *BreakerAgent) Reply(ctx context.Context, req router.AgentRequest) (string, error) {
	return do(a.b, func() (string, error) { return a.inner.Reply(ctx, req) })
}

// BreakerBusiness wraps every business service behind one breaker.
type BreakerBusiness struct {
	svc router.Services
	b   *Breaker
}

// NewBreakerServices wraps each non-nil service in svc.
func NewBreakerServices(svc router.Services, cfg BreakerConfig) router.Services {
	bb := &BreakerBusiness{svc: svc, b: NewBreaker("business", cfg)}
	out := router.Services{}
	if svc.Orders != nil {
		out.Orders = bb
	}
	if svc.Wallet != nil {
		out.Wallet = bb
	}
	if svc.Loyalty != nil {
		out.Loyalty = bb
	}
	if svc.Wishlist != nil {
		out.Wishlist = bb
	}
	return out
}

type bizResult = *router.BusinessResult

func (w *BreakerBusiness) Reorder(ctx context.Context, userID string) (bizResult, error) {
	return do(w.b, func() (bizResult, error) { return w.svc.Orders.Reorder(ctx, userID) })
}

func (w *BreakerBusiness) CancelOrder(ctx context.Context, userID, orderID string) (bizResult, error) {
	return do(w.b, func() (bizResult, error) { return w.svc.Orders.CancelOrder(ctx, userID, orderID) })
}

func (w *BreakerBusiness) RequestRefund(ctx context.Context, userID, orderID, reason string) (bizResult, error) {
	return do(w.b, func() (bizResult, error) { return w.svc.Orders.RequestRefund(ctx, userID, orderID, reason) })
}

func (w *BreakerBusiness) Balance(ctx context.Context, userID string) (bizResult, error) {
	return do(w.b, func() (bizResult, error) { return w.svc.Wallet.Balance(ctx, userID) })
}

func (w *BreakerBusiness) Points(ctx context.Context, userID string) (bizResult, error) {
	return do(w.b, func() (bizResult, error) { return w.svc.Loyalty.Points(ctx, userID) })
}

func (w *BreakerBusiness) ConvertToWallet(ctx context.Context, userID string) (bizResult, error) {
	return do(w.b, func() (bizResult, error) { return w.svc.Loyalty.ConvertToWallet(ctx, userID) })
}

func (w *BreakerBusiness) List(ctx context.Context, userID string) (bizResult, error) {
	return do(w.b, func() (bizResult, error) { return w.svc.Wishlist.List(ctx, userID) })
}

func (w *BreakerBusiness) Add(ctx context.Context, userID, item string) (bizResult, error) {
	return do(w.b, func() (bizResult, error) { return w.svc.Wishlist.Add(ctx, userID, item) })
}

var (
	_ router.FlowEngine = (*BreakerFlowEngine)(nil)
	_ router.Classifier = (*BreakerClassifier)(nil)
	_ router.Agent      = (*BreakerAgent)(nil)
)
