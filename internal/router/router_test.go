package router

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/chatrelay/internal/bus"
	"github.com/nextlevelbuilder/chatrelay/internal/channels"
	"github.com/nextlevelbuilder/chatrelay/internal/intent"
	"github.com/nextlevelbuilder/chatrelay/internal/sessions"
	"github.com/nextlevelbuilder/chatrelay/internal/store"
	"github.com/nextlevelbuilder/chatrelay/internal/store/file"
)

type fakeFlows struct {
	mu        sync.Mutex
	started   []string
	processed []string
	events    []*FlowEvent
	startErr  error
	result    FlowResult
}

func (f *fakeFlows) StartFlow(_ context.Context, flowID string, _ StartRequest) (*FlowResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, flowID)
	if f.startErr != nil {
		return nil, f.startErr
	}
	res := f.result
	if res.Response == "" {
		res.Response = "started " + flowID
	}
	if res.CurrentState == "" {
		res.CurrentState = "start"
	}
	return &res, nil
}

func (f *fakeFlows) ProcessMessage(_ context.Context, _ string, text string, ev *FlowEvent) (*FlowResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processed = append(f.processed, text)
	f.events = append(f.events, ev)
	return &FlowResult{Response: "next step", CurrentState: "next", FlowRunID: "run-1"}, nil
}

type fakeClassifier struct {
	res   Classification
	calls atomic.Int32
}

func (f *fakeClassifier) Classify(context.Context, string) (Classification, error) {
	f.calls.Add(1)
	return f.res, nil
}

type fakeAgent struct {
	reply string
	err   error
}

func (f *fakeAgent) Reply(context.Context, AgentRequest) (string, error) { return f.reply, f.err }

type fakeWallet struct {
	err error
}

func (f *fakeWallet) Balance(context.Context, string) (*BusinessResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &BusinessResult{Success: true, Data: map[string]any{"balance": "₹250"}}, nil
}

type recordingDeliverer struct {
	channel, chatID string
	msg             channels.OutboundMessage
}

func (d *recordingDeliverer) Send(_ context.Context, channel, chatID string, msg channels.OutboundMessage) error {
	d.channel, d.chatID, d.msg = channel, chatID, msg
	return nil
}

type harness struct {
	router     *Router
	sessions   store.SessionStore
	flows      *fakeFlows
	classifier *fakeClassifier
	agent      *fakeAgent
}

func newHarness(t *testing.T, cfg Config, mutate func(*Deps)) *harness {
	t.Helper()
	rules := []store.FlowTrigger{
		{FlowID: FlowParcel, Triggers: []string{"parcel_booking", "send_parcel"}, Priority: 110, Enabled: true},
		{FlowID: FlowFoodOrder, Triggers: []string{"order_food", "browse_menu", "add_to_cart", "view_cart"}, Priority: 100, Enabled: true},
		{FlowID: FlowLogin, Triggers: []string{"login"}, Priority: 90, Enabled: true},
		{FlowID: FlowGreeting, Triggers: []string{"greeting"}, Priority: 10, Enabled: true},
	}
	cache := intent.NewTriggerCache(file.NewStaticTriggerStore(rules), time.Minute)
	require.NoError(t, cache.Refresh(context.Background()))

	h := &harness{
		sessions:   file.NewFileSessionStore(sessions.NewManager("")),
		flows:      &fakeFlows{},
		classifier: &fakeClassifier{res: Classification{Intent: intent.IntentUnknown, Provider: "test"}},
		agent:      &fakeAgent{reply: "agent says hi"},
	}
	deps := Deps{
		Sessions:   h.sessions,
		Intents:    intent.NewRouter(cache),
		Classifier: h.classifier,
		Flows:      h.flows,
		Agent:      h.agent,
	}
	if mutate != nil {
		mutate(&deps)
	}
	h.router = New(cfg, deps)
	return h
}

func (h *harness) seed(t *testing.T, id string, data sessions.Data) {
	t.Helper()
	require.NoError(t, h.sessions.Save(context.Background(), id, data))
}

func (h *harness) data(t *testing.T, id string) sessions.Data {
	t.Helper()
	s, err := h.sessions.Get(context.Background(), id)
	require.NoError(t, err)
	return s.Data
}

func textEvent(id, text string) bus.MessageEvent {
	return bus.MessageEvent{MessageID: "m-" + text, Identifier: id, RawText: text, Channel: "whatsapp", ChatID: id}
}

func withFlow(state string, flowID string, extra sessions.Data) sessions.Data {
	d := sessions.Data{sessions.KeyOnboardingCompleted: true}
	for k, v := range extra {
		d[k] = v
	}
	d.SetFlow(sessions.FlowState{FlowID: flowID, RunID: "run-1", CurrentState: state})
	return d
}

func TestDecide_ExactCancelInPaymentState(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	const id = "+919876543210"
	h.seed(t, id, withFlow("await_payment", FlowFoodOrder, sessions.Data{sessions.KeyCart: []any{"dosa"}}))

	resp, err := h.router.Decide(context.Background(), Input{Event: textEvent(id, "cancel")})
	require.NoError(t, err)

	assert.Equal(t, HandledExactCancel, resp.Handler)
	assert.NotEmpty(t, resp.Message.Text)
	d := h.data(t, id)
	assert.False(t, d.HasActiveFlow())
	assert.NotContains(t, d, sessions.KeyCart)
	assert.Empty(t, h.flows.processed)
}

func TestDecide_LooseCancelInPaymentStateGoesToFlow(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	const id = "+919876543210"
	h.seed(t, id, withFlow("await_payment", FlowFoodOrder, nil))

	resp, err := h.router.Decide(context.Background(), Input{Event: textEvent(id, "ruko")})
	require.NoError(t, err)

	assert.Equal(t, HandledFlowContinue, resp.Handler)
	assert.Equal(t, []string{"ruko"}, h.flows.processed)
	assert.True(t, h.data(t, id).HasActiveFlow())
}

func TestDecide_ClassifiedDestructiveCommand(t *testing.T) {
	restartCls := Classification{Intent: "restart", Confidence: 0.95}
	const text = "let's do the whole thing again from scratch"

	t.Run("runs without a flow", func(t *testing.T) {
		h := newHarness(t, Config{}, nil)
		h.classifier.res = restartCls
		h.seed(t, "c", sessions.Data{sessions.KeyOnboardingCompleted: true})

		resp, err := h.router.Decide(context.Background(), Input{Event: textEvent("c", text)})
		require.NoError(t, err)
		assert.Equal(t, HandledCommand, resp.Handler)
	})

	t.Run("goes to the active flow", func(t *testing.T) {
		h := newHarness(t, Config{}, nil)
		h.classifier.res = restartCls
		h.seed(t, "c", withFlow("browse_menu", FlowFoodOrder, nil))

		resp, err := h.router.Decide(context.Background(), Input{Event: textEvent("c", text)})
		require.NoError(t, err)
		assert.Equal(t, HandledFlowContinue, resp.Handler)
		assert.True(t, h.data(t, "c").HasActiveFlow())
	})
}

func TestDecide_PizzaStartsFoodFlow(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	const id = "telegram:42"

	resp, err := h.router.Decide(context.Background(), Input{Event: textEvent(id, "pizza")})
	require.NoError(t, err)

	assert.Equal(t, HandledFlowStart, resp.Handler)
	assert.Equal(t, FlowFoodOrder, resp.FlowID)
	assert.Equal(t, []string{FlowFoodOrder}, h.flows.started)
	f, ok := h.data(t, id).ActiveFlow()
	require.True(t, ok)
	assert.Equal(t, FlowFoodOrder, f.FlowID)
	assert.NotEmpty(t, f.RunID)
}

func TestDecide_UIActionSkipsClassifier(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	ev := textEvent("web:abc", "")
	ev.Action = &bus.UIAction{ID: "parcel_booking", Kind: bus.ActionButton}

	resp, err := h.router.Decide(context.Background(), Input{Event: ev})
	require.NoError(t, err)

	assert.Equal(t, int32(0), h.classifier.calls.Load())
	assert.Equal(t, HandledUIAction, resp.Handler)
	assert.Equal(t, []string{FlowParcel}, h.flows.started)
	require.NotNil(t, resp.Decision)
	assert.InDelta(t, 1.0, resp.Decision.Confidence, 1e-9)
}

func TestDecide_UIActionInFlowIsForwarded(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	const id = "web:abc"
	h.seed(t, id, withFlow("select_vehicle", FlowParcel, nil))
	ev := textEvent(id, "")
	ev.Action = &bus.UIAction{ID: "bike", Kind: bus.ActionButton}

	resp, err := h.router.Decide(context.Background(), Input{Event: ev})
	require.NoError(t, err)

	assert.Equal(t, HandledUIAction, resp.Handler)
	require.Len(t, h.flows.events, 1)
	assert.Equal(t, "bike", h.flows.events[0].Type)
}

func TestDecide_FlowSwitchGuard(t *testing.T) {
	pizza := Classification{Intent: intent.IntentOrderFood, Confidence: 0.9}

	t.Run("critical state blocks switch", func(t *testing.T) {
		h := newHarness(t, Config{}, nil)
		h.classifier.res = pizza
		const id = "+919800000001"
		h.seed(t, id, withFlow("collect_pickup", FlowParcel, nil))

		resp, err := h.router.Decide(context.Background(), Input{Event: textEvent(id, "i want pizza")})
		require.NoError(t, err)
		assert.Equal(t, HandledFlowContinue, resp.Handler)
		assert.Empty(t, h.flows.started)
	})

	t.Run("non critical state switches and suspends", func(t *testing.T) {
		h := newHarness(t, Config{}, nil)
		h.classifier.res = pizza
		const id = "+919800000002"
		h.seed(t, id, withFlow("enter_weight", FlowParcel, nil))

		resp, err := h.router.Decide(context.Background(), Input{Event: textEvent(id, "i want pizza")})
		require.NoError(t, err)
		assert.Equal(t, HandledFlowSwitch, resp.Handler)
		assert.Equal(t, []string{FlowFoodOrder}, h.flows.started)

		d := h.data(t, id)
		s, ok := d.SuspendedFlow()
		require.True(t, ok)
		assert.Equal(t, FlowParcel, s.FlowID)
		f, _ := d.ActiveFlow()
		assert.Equal(t, FlowFoodOrder, f.FlowID)
	})

	t.Run("low confidence stays", func(t *testing.T) {
		h := newHarness(t, Config{}, nil)
		h.classifier.res = Classification{Intent: intent.IntentLogin, Confidence: 0.5}
		const id = "+919800000003"
		h.seed(t, id, withFlow("enter_weight", FlowParcel, nil))

		resp, err := h.router.Decide(context.Background(), Input{Event: textEvent(id, "hmm")})
		require.NoError(t, err)
		assert.Equal(t, HandledFlowContinue, resp.Handler)
	})
}

func TestDecide_GreetingHandling(t *testing.T) {
	greeting := Classification{Intent: intent.IntentGreeting, Confidence: 0.9}

	h := newHarness(t, Config{}, nil)
	h.classifier.res = greeting
	h.seed(t, "a", withFlow("browse_menu", FlowFoodOrder, nil))
	resp, err := h.router.Decide(context.Background(), Input{Event: textEvent("a", "hello")})
	require.NoError(t, err)
	assert.Equal(t, HandledGreeting, resp.Handler)
	assert.NotEmpty(t, resp.Message.Buttons)
	assert.False(t, h.data(t, "a").HasActiveFlow())

	h.seed(t, "b", withFlow("await_payment", FlowFoodOrder, nil))
	resp, err = h.router.Decide(context.Background(), Input{Event: textEvent("b", "hello")})
	require.NoError(t, err)
	assert.Equal(t, HandledFlowContinue, resp.Handler)
	assert.True(t, h.data(t, "b").HasActiveFlow())
}

func TestDecide_NumericAnswerIsUserInput(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	h.seed(t, "n", withFlow("choose_item", FlowFoodOrder, nil))

	_, err := h.router.Decide(context.Background(), Input{Event: textEvent("n", "2.")})
	require.NoError(t, err)
	require.Len(t, h.flows.events, 1)
	require.NotNil(t, h.flows.events[0])
	assert.Equal(t, EventUserInput, h.flows.events[0].Type)
	assert.Equal(t, "2", h.flows.events[0].Value)
}

func TestDecide_DirectAnswer(t *testing.T) {
	walletCls := Classification{Intent: IntentCheckWallet, Confidence: 0.9}

	t.Run("requires login", func(t *testing.T) {
		h := newHarness(t, Config{}, func(d *Deps) { d.Services.Wallet = &fakeWallet{} })
		h.classifier.res = walletCls
		h.seed(t, "u", sessions.Data{sessions.KeyOnboardingCompleted: true})

		resp, err := h.router.Decide(context.Background(), Input{Event: textEvent("u", "my wallet")})
		require.NoError(t, err)
		assert.Equal(t, HandledDirect, resp.Handler)
		require.Len(t, resp.Message.Buttons, 1)
		assert.Equal(t, "login", resp.Message.Buttons[0].ID)
	})

	t.Run("answers and suspends flow", func(t *testing.T) {
		h := newHarness(t, Config{}, func(d *Deps) { d.Services.Wallet = &fakeWallet{} })
		h.classifier.res = walletCls
		h.seed(t, "u", withFlow("browse_menu", FlowFoodOrder, sessions.Data{sessions.KeyAuthenticated: true}))

		resp, err := h.router.Decide(context.Background(), Input{Event: textEvent("u", "my wallet")})
		require.NoError(t, err)
		assert.Contains(t, resp.Message.Text, "₹250")
		d := h.data(t, "u")
		assert.False(t, d.HasActiveFlow())
		_, suspended := d.SuspendedFlow()
		assert.True(t, suspended)
	})

	t.Run("payment choice stays in critical state", func(t *testing.T) {
		h := newHarness(t, Config{}, func(d *Deps) { d.Services.Wallet = &fakeWallet{} })
		h.classifier.res = walletCls
		h.seed(t, "u", withFlow("select_payment", FlowFoodOrder, sessions.Data{sessions.KeyAuthenticated: true}))

		resp, err := h.router.Decide(context.Background(), Input{Event: textEvent("u", "wallet")})
		require.NoError(t, err)
		assert.Equal(t, HandledFlowContinue, resp.Handler)
		assert.Equal(t, []string{"wallet"}, h.flows.processed)
		assert.True(t, h.data(t, "u").HasActiveFlow())
	})

	t.Run("low confidence does not interrupt flow", func(t *testing.T) {
		h := newHarness(t, Config{}, func(d *Deps) { d.Services.Wallet = &fakeWallet{} })
		h.classifier.res = Classification{Intent: IntentCheckWallet, Confidence: 0.4}
		h.seed(t, "u", withFlow("browse_menu", FlowFoodOrder, sessions.Data{sessions.KeyAuthenticated: true}))

		resp, err := h.router.Decide(context.Background(), Input{Event: textEvent("u", "wallet")})
		require.NoError(t, err)
		assert.Equal(t, HandledFlowContinue, resp.Handler)
		assert.Equal(t, []string{"wallet"}, h.flows.processed)
	})

	t.Run("service failure gives generic text", func(t *testing.T) {
		h := newHarness(t, Config{}, func(d *Deps) { d.Services.Wallet = &fakeWallet{err: errors.New("boom")} })
		h.classifier.res = walletCls
		h.seed(t, "u", sessions.Data{sessions.KeyOnboardingCompleted: true, sessions.KeyAuthenticated: true})

		resp, err := h.router.Decide(context.Background(), Input{Event: textEvent("u", "my wallet")})
		require.NoError(t, err)
		assert.Equal(t, localize("en", msgGeneric), resp.Message.Text)
	})

	t.Run("no service falls through", func(t *testing.T) {
		h := newHarness(t, Config{}, nil)
		h.classifier.res = walletCls

		resp, err := h.router.Decide(context.Background(), Input{Event: textEvent("u", "my wallet")})
		require.NoError(t, err)
		assert.Equal(t, HandledAgent, resp.Handler)
	})
}

func TestDecide_FallbackChain(t *testing.T) {
	h := newHarness(t, Config{FallbackText: "try later"}, nil)
	h.flows.startErr = errors.New("engine down")

	resp, err := h.router.Decide(context.Background(), Input{Event: textEvent("x", "pizza")})
	require.NoError(t, err)
	assert.Equal(t, HandledAgent, resp.Handler)
	assert.Equal(t, "agent says hi", resp.Message.Text)

	h.agent.err = errors.New("llm down")
	resp, err = h.router.Decide(context.Background(), Input{Event: textEvent("y", "pizza")})
	require.NoError(t, err)
	assert.Equal(t, HandledFallback, resp.Handler)
	assert.Equal(t, "try later", resp.Message.Text)
}

func TestDecide_Onboarding(t *testing.T) {
	cfg := Config{OnboardingEnabled: true, OnboardingFlowID: "onboarding_v1", NativeOnboardingPlatforms: []string{"app"}}

	h := newHarness(t, cfg, nil)
	resp, err := h.router.Decide(context.Background(), Input{Event: textEvent("new", "hey there")})
	require.NoError(t, err)
	assert.Equal(t, HandledOnboarding, resp.Handler)
	assert.Equal(t, []string{"onboarding_v1"}, h.flows.started)

	h = newHarness(t, cfg, nil)
	_, err = h.router.Decide(context.Background(), Input{Event: textEvent("hungry", "one pizza please")})
	require.NoError(t, err)
	assert.Equal(t, []string{FlowFoodOrder}, h.flows.started)

	h = newHarness(t, cfg, nil)
	ev := textEvent("native", "hey there")
	ev.Platform = "app"
	resp, err = h.router.Decide(context.Background(), Input{Event: ev})
	require.NoError(t, err)
	assert.NotEqual(t, HandledOnboarding, resp.Handler)
}

func TestDecide_OnboardingCompletionMarksSession(t *testing.T) {
	cfg := Config{OnboardingEnabled: true, OnboardingFlowID: "onboarding_v1"}
	h := newHarness(t, cfg, nil)
	h.flows.result = FlowResult{Response: "welcome aboard", Completed: true, Metadata: map[string]any{sessions.KeyName: "Asha"}}

	_, err := h.router.Decide(context.Background(), Input{Event: textEvent("o", "hey")})
	require.NoError(t, err)
	d := h.data(t, "o")
	assert.True(t, d.Bool(sessions.KeyOnboardingCompleted))
	assert.Equal(t, "Asha", d.String(sessions.KeyName))
	assert.False(t, d.HasActiveFlow())
}

func TestDecide_UserTypeCachedOnce(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	h.seed(t, "r", sessions.Data{sessions.KeyOrderCount: float64(3)})

	_, err := h.router.Decide(context.Background(), Input{Event: textEvent("r", "pizza")})
	require.NoError(t, err)
	assert.Equal(t, UserReturning, h.data(t, "r").String(sessions.KeyUserType))
}

func TestDecide_LegacyPathUsesAgent(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	ev := textEvent("l", "pizza")
	ev.Metadata = map[string]string{MetaPath: PathLegacy}

	resp, err := h.router.Decide(context.Background(), Input{Event: ev})
	require.NoError(t, err)
	assert.Equal(t, HandledLegacy, resp.Handler)
	assert.Empty(t, h.flows.started)
	assert.Equal(t, int32(0), h.classifier.calls.Load())
}

func TestProcess_DeliversOnOriginChannel(t *testing.T) {
	rec := &recordingDeliverer{}
	h := newHarness(t, Config{}, func(d *Deps) { d.Deliverer = rec })
	ev := textEvent("+919811111111", "pizza")
	ev.Channel = "telegram"
	ev.ChatID = "chat-7"

	_, err := h.router.Process(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, "telegram", rec.channel)
	assert.Equal(t, "chat-7", rec.chatID)
	assert.NotEmpty(t, rec.msg.Text)
}

func TestRespond_RendersForChannel(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	ev := textEvent("v", "menu")
	ev.Channel = "voice"

	resp, rendered, err := h.router.Respond(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, HandledCommand, resp.Handler)
	assert.Equal(t, "voice", rendered.Channel)
	assert.Empty(t, rendered.Buttons)
	assert.NotEmpty(t, rendered.Text)
}

func TestIsCriticalState(t *testing.T) {
	for _, s := range []string{"await_payment", "collect_pickup_address", "verify_otp", "CONFIRM_ORDER"} {
		assert.True(t, IsCriticalState(s), s)
	}
	for _, s := range []string{"browse_menu", "start", "enter_weight"} {
		assert.False(t, IsCriticalState(s), s)
	}
}

func TestWishlistItem(t *testing.T) {
	assert.Equal(t, "paneer tikka", wishlistItem("please add paneer tikka to my wishlist"))
}

func TestDecide_SameFlowFullRequestRestarts(t *testing.T) {
	cases := []struct {
		name  string
		flow  string
		state string
		cls   Classification
		text  string
	}{
		{"parcel route", FlowParcel, "show_quote", Classification{Intent: intent.IntentParcelBooking, Confidence: 0.9}, "send a parcel from andheri to bandra"},
		{"food item at checkout", FlowFoodOrder, "review_cart", Classification{Intent: intent.IntentOrderFood, Confidence: 0.9}, "2 pizza"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, Config{}, nil)
			h.classifier.res = tc.cls
			h.seed(t, "r", withFlow(tc.state, tc.flow, nil))

			resp, err := h.router.Decide(context.Background(), Input{Event: textEvent("r", tc.text)})
			require.NoError(t, err)
			assert.Equal(t, HandledFlowRestart, resp.Handler)
			assert.Equal(t, []string{tc.flow}, h.flows.started)
			assert.Empty(t, h.flows.processed)
		})
	}

	t.Run("plain answer continues", func(t *testing.T) {
		h := newHarness(t, Config{}, nil)
		h.classifier.res = Classification{Intent: intent.IntentParcelBooking, Confidence: 0.9}
		h.seed(t, "r", withFlow("show_quote", FlowParcel, nil))

		resp, err := h.router.Decide(context.Background(), Input{Event: textEvent("r", "parcel looks fine")})
		require.NoError(t, err)
		assert.Equal(t, HandledFlowContinue, resp.Handler)
		assert.Empty(t, h.flows.started)
	})
}

type fakeDurable struct {
	flow    sessions.FlowState
	updated time.Time
	fresh   *store.SessionData
	reloads int
}

func (f *fakeDurable) DurableFlow(context.Context, string) (sessions.FlowState, time.Time, error) {
	return f.flow, f.updated, nil
}

func (f *fakeDurable) Reload(context.Context, string) (*store.SessionData, error) {
	f.reloads++
	return f.fresh, nil
}

func TestDecide_ReconcilesStaleSession(t *testing.T) {
	parcel := sessions.FlowState{FlowID: FlowParcel, RunID: "run-9", CurrentState: "show_quote"}
	durableData := func() *store.SessionData {
		d := sessions.Data{sessions.KeyOnboardingCompleted: true}
		d.SetFlow(parcel)
		return &store.SessionData{Identifier: "s", Data: d, Updated: time.Now().Add(time.Minute)}
	}

	t.Run("newer durable flow is adopted", func(t *testing.T) {
		durable := &fakeDurable{flow: parcel, updated: time.Now().Add(time.Minute), fresh: durableData()}
		h := newHarness(t, Config{}, func(d *Deps) { d.Durable = durable })
		h.seed(t, "s", sessions.Data{sessions.KeyOnboardingCompleted: true})

		resp, err := h.router.Decide(context.Background(), Input{Event: textEvent("s", "2")})
		require.NoError(t, err)
		assert.Equal(t, 1, durable.reloads)
		assert.Equal(t, HandledFlowContinue, resp.Handler)
		assert.Equal(t, FlowParcel, resp.FlowID)
		assert.Equal(t, []string{"2"}, h.flows.processed)
	})

	t.Run("older durable copy is ignored", func(t *testing.T) {
		durable := &fakeDurable{flow: parcel, updated: time.Now().Add(-time.Hour), fresh: durableData()}
		h := newHarness(t, Config{}, func(d *Deps) { d.Durable = durable })
		h.seed(t, "s", sessions.Data{sessions.KeyOnboardingCompleted: true})

		resp, err := h.router.Decide(context.Background(), Input{Event: textEvent("s", "2")})
		require.NoError(t, err)
		assert.Zero(t, durable.reloads)
		assert.Empty(t, h.flows.processed)
		assert.NotEqual(t, HandledFlowContinue, resp.Handler)
	})
}
