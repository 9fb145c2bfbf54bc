package sessions

import "maps"

// Data is the free-form per-identifier conversation state.
// Values must stay JSON-compatible: sessions round-trip through the file
// store and Postgres jsonb.
type Data map[string]any

// Recognized data keys.
const (
	KeyActiveFlowID = "activeFlowId"
	KeyFlowRunID    = "flowRunId"
	KeyFlowContext  = "flowContext"

	KeySuspendedFlow       = "suspendedFlow"
	KeyCart                = "cart"
	KeyAuthenticated       = "authenticated"
	KeyLanguage            = "language"
	KeyUserType            = "userType"
	KeyOnboardingCompleted = "onboardingCompleted"
	KeyChannel             = "channel"
	KeyPlatform            = "platform"
	KeyLastMessageAt       = "lastMessageAt"

	// Profile fields.
	KeyName      = "name"
	KeyPhone     = "phone"
	KeyEmail     = "email"
	KeyUserID    = "userId"
	KeyAuthToken = "authToken"

	// Behavioral fields.
	KeyLastOrderID      = "lastOrderId"
	KeyOrderCount       = "orderCount"
	KeyPreferredPayment = "preferredPayment"
	KeyFavoriteCuisine  = "favoriteCuisine"
)

// flowContext sub-keys.
const (
	ctxFlowID       = "flowId"
	ctxCurrentState = "currentState"
	ctxRunID        = "runId"
)

// FlowState is the typed view of the three flow fields.
type FlowState struct {
	FlowID       string `json:"flowId"`
	RunID        string `json:"runId"`
	CurrentState string `json:"currentState"`
}

// IsZero reports whether no flow is described.
func (f FlowState) IsZero() bool { return f.FlowID == "" }

// Clone returns a shallow copy; nested maps are copied one level deep so
// callers can mutate flowContext without touching the original.
func (d Data) Clone() Data {
	out := make(Data, len(d))
	for k, v := range d {
		if m, ok := v.(map[string]any); ok {
			out[k] = maps.Clone(m)
			continue
		}
		out[k] = v
	}
	return out
}

// String returns the string value for key, or "".
func (d Data) String(key string) string {
	if v, ok := d[key].(string); ok {
		return v
	}
	return ""
}

// Bool returns the bool value for key. String "true" is accepted since some
// stores hand back flags written by other services as strings.
func (d Data) Bool(key string) bool {
	switch v := d[key].(type) {
	case bool:
		return v
	case string:
		return v == "true"
	}
	return false
}

// Int returns the numeric value for key (JSON numbers decode as float64).
func (d Data) Int(key string) int {
	switch v := d[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// ActiveFlow returns the active flow. ok is false unless all three flow
// fields are present.
func (d Data) ActiveFlow() (FlowState, bool) {
	flowID := d.String(KeyActiveFlowID)
	runID := d.String(KeyFlowRunID)
	ctx, hasCtx := d[KeyFlowContext].(map[string]any)
	if flowID == "" || runID == "" || !hasCtx {
		return FlowState{}, false
	}
	state, _ := ctx[ctxCurrentState].(string)
	return FlowState{FlowID: flowID, RunID: runID, CurrentState: state}, true
}

// HasActiveFlow reports whether a flow is in progress.
func (d Data) HasActiveFlow() bool {
	_, ok := d.ActiveFlow()
	return ok
}

// SetFlow writes all three flow fields together.
func (d Data) SetFlow(f FlowState) {
	if f.FlowID == "" {
		d.ClearFlow()
		return
	}
	d[KeyActiveFlowID] = f.FlowID
	d[KeyFlowRunID] = f.RunID
	d[KeyFlowContext] = map[string]any{
		ctxFlowID:       f.FlowID,
		ctxCurrentState: f.CurrentState,
	}
}

// ClearFlow removes all three flow fields together.
func (d Data) ClearFlow() {
	delete(d, KeyActiveFlowID)
	delete(d, KeyFlowRunID)
	delete(d, KeyFlowContext)
}

// SuspendedFlow returns the flow parked by a flow switch or direct answer.
func (d Data) SuspendedFlow() (FlowState, bool) {
	m, ok := d[KeySuspendedFlow].(map[string]any)
	if !ok {
		return FlowState{}, false
	}
	f := FlowState{}
	f.FlowID, _ = m[ctxFlowID].(string)
	f.RunID, _ = m[ctxRunID].(string)
	f.CurrentState, _ = m[ctxCurrentState].(string)
	return f, f.FlowID != ""
}

// Merge applies a partial update in place. A nil value deletes the key.
func (d Data) Merge(partial map[string]any) {
	for k, v := range partial {
		if v == nil {
			delete(d, k)
			continue
		}
		d[k] = v
	}
}

// FlowPatch is the partial update that makes f the active flow.
func FlowPatch(f FlowState) map[string]any {
	if f.FlowID == "" {
		return ClearFlowPatch()
	}
	return map[string]any{
		KeyActiveFlowID: f.FlowID,
		KeyFlowRunID:    f.RunID,
		KeyFlowContext: map[string]any{
			ctxFlowID:       f.FlowID,
			ctxCurrentState: f.CurrentState,
		},
	}
}

// ClearFlowPatch is the partial update that removes the active flow.
func ClearFlowPatch() map[string]any {
	return map[string]any{
		KeyActiveFlowID: nil,
		KeyFlowRunID:    nil,
		KeyFlowContext:  nil,
	}
}

// SuspendPatch parks f under suspendedFlow and clears the active flow.
func SuspendPatch(f FlowState) map[string]any {
	p := ClearFlowPatch()
	p[KeySuspendedFlow] = map[string]any{
		ctxFlowID:       f.FlowID,
		ctxRunID:        f.RunID,
		ctxCurrentState: f.CurrentState,
	}
	return p
}
