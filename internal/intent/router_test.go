package intent

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/chatrelay/internal/store"
)

type fakeTriggerStore struct {
	rules []store.FlowTrigger
	err   error
	calls atomic.Int32
}

func (f *fakeTriggerStore) ListEnabled(context.Context) ([]store.FlowTrigger, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.rules, nil
}

func (f *fakeTriggerStore) Upsert(context.Context, store.FlowTrigger) error { return nil }

func seedRules() []store.FlowTrigger {
	return []store.FlowTrigger{
		{FlowID: "parcel_delivery_v1", Triggers: []string{"parcel_booking", "send_parcel"}, Priority: 110, Enabled: true},
		{FlowID: "food_order_v1", Triggers: []string{"order_food", "browse_menu", "add_to_cart", "view_cart"}, Priority: 100, Enabled: true},
		{FlowID: "login_v1", Triggers: []string{"login"}, Priority: 90, Enabled: true},
		{FlowID: "greeting_v1", Triggers: []string{"greeting"}, Priority: 10, Enabled: true},
		{FlowID: "chitchat_v1", Triggers: []string{"chitchat", "greeting"}, Priority: 5, Enabled: true},
	}
}

func newTestRouter(t *testing.T, opts ...Option) *Router {
	t.Helper()
	cache := NewTriggerCache(&fakeTriggerStore{rules: seedRules()}, time.Minute)
	require.NoError(t, cache.Refresh(context.Background()))
	return NewRouter(cache, opts...)
}

func TestRoute_PriorityChain(t *testing.T) {
	r := newTestRouter(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		in       Input
		wantFlow string
		wantTag  PriorityTag
		wantInt  string
	}{
		{"cart add", Input{Text: "add 2 dosa to my cart", Intent: "order_food", Confidence: 0.8}, "food_order_v1", TagOverride, IntentAddToCart},
		{"cart excluded without cart word", Input{Text: "show my order", Intent: "track_order", Confidence: 0.9}, "", TagFallback, IntentTrackOrder},
		{"cart word beats exclusion", Input{Text: "show my cart", Intent: "track_order", Confidence: 0.9}, "food_order_v1", TagOverride, IntentViewCart},
		{"command", Input{Text: "Cancel", Intent: "order_food", Confidence: 0.4}, "", TagCommand, "cancel"},
		{"static translation", Input{Text: "i would like to order", Intent: "place_order", Confidence: 0.9}, "food_order_v1", TagIntentMap, IntentOrderFood},
		{"parcel detector overrides", Input{Text: "send a parcel to pune", Intent: "order_food", Confidence: 0.9}, "parcel_delivery_v1", TagOverride, IntentParcelBooking},
		{"food detector overrides unknown", Input{Text: "craving biryani", Intent: "unknown", Confidence: 0.1}, "food_order_v1", TagOverride, IntentOrderFood},
		{"login keyword", Input{Text: "please sign in", Intent: "unknown"}, "login_v1", TagKeyword, IntentLogin},
		{"greeting pattern", Input{Text: "Namaste ji", Intent: "unknown"}, "greeting_v1", TagPattern, IntentGreeting},
		{"service inquiry goes to agent", Input{Text: "what do you offer?", Intent: "unknown"}, "", TagPattern, IntentServiceInquiry},
		{"no match", Input{Text: "the weather is odd", Intent: "weather", Confidence: 0.5}, "", TagFallback, "weather"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := r.Route(ctx, tt.in)
			assert.Equal(t, tt.wantFlow, d.FlowID, "reason=%s", d.Reason)
			assert.Equal(t, tt.wantTag, d.PriorityTag, "reason=%s", d.Reason)
			assert.Equal(t, tt.wantInt, d.TranslatedIntent)
			assert.Equal(t, tt.in.Intent, d.OriginalIntent)
		})
	}
}

func TestRoute_NoMatchShape(t *testing.T) {
	d := newTestRouter(t).Route(context.Background(), Input{Text: "qwerty", Intent: "weather"})
	assert.Equal(t, noMatchConfidence, d.Confidence)
	assert.Equal(t, "no_match:weather", d.Reason)
	assert.False(t, d.HasFlow())
}

func TestRoute_MenuSuppressedInTransactionalFlow(t *testing.T) {
	r := newTestRouter(t)
	in := Input{Text: "home", Intent: "select_address", Confidence: 0.7, ActiveFlowID: "parcel_delivery_v1"}
	d := r.Route(context.Background(), in)
	assert.NotEqual(t, TagCommand, d.PriorityTag)

	in.ActiveFlowID = "greeting_v1"
	d = r.Route(context.Background(), in)
	assert.Equal(t, TagCommand, d.PriorityTag)
	assert.Equal(t, "menu", d.TranslatedIntent)
}

func TestRoute_ContextTranslationOnlyWithoutFlow(t *testing.T) {
	r := newTestRouter(t)
	d := r.Route(context.Background(), Input{Text: "ok proceed", Intent: "checkout", Confidence: 0.9})
	assert.Equal(t, IntentOrderFood, d.TranslatedIntent)
	assert.Equal(t, "food_order_v1", d.FlowID)

	d = r.Route(context.Background(), Input{Text: "ok proceed", Intent: "checkout", Confidence: 0.9, ActiveFlowID: "food_order_v1"})
	assert.Equal(t, "checkout", d.TranslatedIntent)
	assert.Empty(t, d.FlowID)
}

func TestRoute_SyntheticActionFullConfidence(t *testing.T) {
	d := newTestRouter(t).Route(context.Background(), Input{Text: "parcel_booking", Intent: "parcel_booking", Synthetic: true})
	assert.Equal(t, "parcel_delivery_v1", d.FlowID)
	assert.Equal(t, 1.0, d.Confidence)
	assert.Equal(t, TagIntentMap, d.PriorityTag)
}

func TestRoute_Deterministic(t *testing.T) {
	r := newTestRouter(t)
	in := Input{Text: "pizza", Intent: "order_food", Confidence: 0.9}
	first := r.Route(context.Background(), in)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, r.Route(context.Background(), in))
	}
	assert.Equal(t, "food_order_v1", first.FlowID)
	assert.Equal(t, TagIntentMap, first.PriorityTag)
	assert.InDelta(t, 0.9, first.Confidence, 1e-9)
}

func TestRoute_DetectorErrorFallsBackToStaticKeywords(t *testing.T) {
	failing := DetectorFunc(func(context.Context, string) (DetectionResult, error) {
		return DetectionResult{}, errors.New("model down")
	})
	r := newTestRouter(t, WithDetectors(failing, failing))
	d := r.Route(context.Background(), Input{Text: "one pizza please", Intent: "unknown"})
	assert.Equal(t, "food_order_v1", d.FlowID)
	assert.Contains(t, d.Reason, "food:static")
}

func TestRoute_LowConfidenceDetectorIgnored(t *testing.T) {
	unsure := DetectorFunc(func(context.Context, string) (DetectionResult, error) {
		return DetectionResult{Matched: true, Confidence: 0.4, Method: "model"}, nil
	})
	r := newTestRouter(t, WithDetectors(unsure, unsure))
	d := r.Route(context.Background(), Input{Text: "tell me a joke", Intent: "chitchat", Confidence: 0.8})
	assert.Equal(t, "chitchat_v1", d.FlowID)
	assert.False(t, d.OverrideApplied)
}

func TestSnapshot_FirstWriteWins(t *testing.T) {
	snap := NewSnapshot([]TriggerRule{
		{FlowID: "low", Triggers: []string{"greeting"}, Priority: 1, Enabled: true},
		{FlowID: "high", Triggers: []string{"Greeting"}, Priority: 50, Enabled: true},
		{FlowID: "off", Triggers: []string{"greeting"}, Priority: 99, Enabled: false},
	}, time.Now())
	flow, ok := snap.Lookup("greeting")
	require.True(t, ok)
	assert.Equal(t, "high", flow)
	assert.Len(t, snap.Rules, 2)
	assert.Equal(t, "high", snap.Rules[0].FlowID)
}

func TestTriggerCache_TTLAndFailureKeepsSnapshot(t *testing.T) {
	src := &fakeTriggerStore{rules: seedRules()}
	cache := NewTriggerCache(src, time.Minute)
	now := time.Unix(1_700_000_000, 0)
	cache.now = func() time.Time { return now }

	ctx := context.Background()
	snap := cache.Get(ctx)
	assert.Equal(t, int32(1), src.calls.Load(), "first Get loads")
	_, ok := snap.Lookup("order_food")
	assert.True(t, ok)

	now = now.Add(30 * time.Second)
	cache.Get(ctx)
	assert.Equal(t, int32(1), src.calls.Load(), "fresh snapshot is served from memory")

	now = now.Add(time.Minute)
	src.err = errors.New("db down")
	stale := cache.Get(ctx)
	assert.Equal(t, int32(2), src.calls.Load())
	_, ok = stale.Lookup("order_food")
	assert.True(t, ok, "failed refresh keeps the previous snapshot")
}

func TestTriggerCache_OutageBacksOff(t *testing.T) {
	src := &fakeTriggerStore{rules: seedRules()}
	cache := NewTriggerCache(src, time.Minute)
	now := time.Unix(1_700_000_000, 0)
	cache.now = func() time.Time { return now }

	ctx := context.Background()
	cache.Get(ctx)
	src.err = errors.New("db down")
	now = now.Add(2 * time.Minute)

	for i := 0; i < 100; i++ {
		snap := cache.Get(ctx)
		_, ok := snap.Lookup("order_food")
		require.True(t, ok)
	}
	assert.Equal(t, int32(2), src.calls.Load(), "one load per backoff period while the store is down")

	now = now.Add(refreshBackoff)
	cache.Get(ctx)
	assert.Equal(t, int32(3), src.calls.Load(), "retries once the backoff elapses")

	src.err = nil
	now = now.Add(refreshBackoff)
	cache.Get(ctx)
	assert.Equal(t, int32(4), src.calls.Load())
	cache.Get(ctx)
	assert.Equal(t, int32(4), src.calls.Load(), "recovered snapshot is fresh again")
}

type blockingTriggerStore struct{ fakeTriggerStore }

func (b *blockingTriggerStore) ListEnabled(ctx context.Context) ([]store.FlowTrigger, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestTriggerCache_RefreshHasDeadline(t *testing.T) {
	cache := NewTriggerCache(&blockingTriggerStore{}, time.Minute)
	cache.timeout = 20 * time.Millisecond

	start := time.Now()
	err := cache.Refresh(context.Background())
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestKeywordDetector(t *testing.T) {
	d := NewParcelDetector()
	res, err := d.Detect(context.Background(), "need a courier pickup from Baner")
	require.NoError(t, err)
	assert.True(t, res.Matched)
	assert.GreaterOrEqual(t, res.Confidence, DefaultDetectorThreshold)

	res, err = NewFoodDetector().Detect(context.Background(), "book a cab")
	require.NoError(t, err)
	assert.False(t, res.Matched)
}
