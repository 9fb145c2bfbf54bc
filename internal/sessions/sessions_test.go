package sessions

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		raw, cc, want string
	}{
		{"+91 98765-43210", "91", "+919876543210"},
		{"0091 9876543210", "91", "+919876543210"},
		{"9876543210", "91", "+919876543210"},
		{"09876543210", "91", "+919876543210"},
		{"whatsapp:+14155550100", "", "+14155550100"},
		{"919876543210@c.us", "", "+919876543210"},
		{"919876543210@s.whatsapp.net", "91", "+919876543210"},
		{"hello", "91", ""},
		{"12345", "91", ""},
	}
	for _, tt := range tests {
		got := NormalizePhone(tt.raw, tt.cc)
		if got != tt.want {
			t.Errorf("NormalizePhone(%q, %q) = %q, want %q", tt.raw, tt.cc, got, tt.want)
		}
	}
}

func TestNormalizeIdentifier(t *testing.T) {
	tests := []struct {
		name       string
		channel    string
		raw        string
		phoneBased bool
		want       string
	}{
		{"whatsapp phone", "whatsapp", "919876543210@c.us", true, "+919876543210"},
		{"voice phone local", "voice", "9876543210", true, "+919876543210"},
		{"telegram compound", "telegram", "386246614|alice", false, "telegram:386246614"},
		{"web session id", "web", "abc-123", false, "web:abc-123"},
		{"already canonical", "telegram", "telegram:386246614", false, "telegram:386246614"},
		{"phone channel non-phone id", "whatsapp", "bridge-user", true, "whatsapp:bridge-user"},
		{"empty", "web", "  ", false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeIdentifier(tt.channel, tt.raw, tt.phoneBased, "91")
			if got != tt.want {
				t.Errorf("NormalizeIdentifier(%q, %q) = %q, want %q", tt.channel, tt.raw, got, tt.want)
			}
		})
	}
}

func TestData_FlowFieldsMoveTogether(t *testing.T) {
	d := Data{}
	if d.HasActiveFlow() {
		t.Fatal("empty data reports active flow")
	}

	d.SetFlow(FlowState{FlowID: "food_order_v1", RunID: "run-1", CurrentState: "await_payment"})
	f, ok := d.ActiveFlow()
	if !ok || f.FlowID != "food_order_v1" || f.RunID != "run-1" || f.CurrentState != "await_payment" {
		t.Fatalf("ActiveFlow() = %+v, %v", f, ok)
	}

	d.ClearFlow()
	for _, k := range []string{KeyActiveFlowID, KeyFlowRunID, KeyFlowContext} {
		if _, exists := d[k]; exists {
			t.Errorf("key %s survived ClearFlow", k)
		}
	}
}

func TestData_PartialFlowIsNotActive(t *testing.T) {
	d := Data{KeyActiveFlowID: "parcel_delivery_v1"}
	if d.HasActiveFlow() {
		t.Error("activeFlowId alone must not count as an active flow")
	}
}

func TestData_MergeDeletesNil(t *testing.T) {
	d := Data{KeyLanguage: "hi", KeyCart: []any{"x"}}
	d.SetFlow(FlowState{FlowID: "f", RunID: "r", CurrentState: "s"})
	d.Merge(ClearFlowPatch())
	d.Merge(map[string]any{KeyCart: nil})

	if d.HasActiveFlow() {
		t.Error("flow still active after ClearFlowPatch")
	}
	if _, ok := d[KeyCart]; ok {
		t.Error("cart survived nil merge")
	}
	if d.String(KeyLanguage) != "hi" {
		t.Error("unrelated key lost")
	}
}

func TestData_SuspendPatch(t *testing.T) {
	d := Data{}
	d.SetFlow(FlowState{FlowID: "food_order_v1", RunID: "r1", CurrentState: "browse_menu"})
	d.Merge(SuspendPatch(FlowState{FlowID: "food_order_v1", RunID: "r1", CurrentState: "browse_menu"}))

	if d.HasActiveFlow() {
		t.Error("suspend must clear the active flow")
	}
	s, ok := d.SuspendedFlow()
	if !ok || s.FlowID != "food_order_v1" || s.CurrentState != "browse_menu" {
		t.Errorf("SuspendedFlow() = %+v, %v", s, ok)
	}
}

func TestManager_MergeAndPersist(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir)

	m.GetOrCreate("+919876543210")
	m.Merge("+919876543210", FlowPatch(FlowState{FlowID: "parcel_delivery_v1", RunID: "r", CurrentState: "collect_pickup"}))
	if err := m.Save("+919876543210"); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reloaded := NewManager(dir)
	s, ok := reloaded.Get("+919876543210")
	if !ok {
		t.Fatal("session not reloaded from disk")
	}
	f, ok := s.Data.ActiveFlow()
	if !ok || f.CurrentState != "collect_pickup" {
		t.Errorf("reloaded flow = %+v, %v", f, ok)
	}
}

func TestManager_GetReturnsCopy(t *testing.T) {
	m := NewManager("")
	m.Merge("web:1", map[string]any{KeyLanguage: "en"})

	s, _ := m.Get("web:1")
	s.Data[KeyLanguage] = "mr"

	again, _ := m.Get("web:1")
	if again.Data.String(KeyLanguage) != "en" {
		t.Error("mutating a returned session leaked into the manager")
	}
}

func TestManager_DeleteRemovesFile(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir)
	m.UpdateMetadata("telegram:42", "telegram", "telegram")
	if err := m.Save("telegram:42"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "telegram_42.json")); err != nil {
		t.Fatalf("session file missing: %v", err)
	}

	if err := m.Delete("telegram:42"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "telegram_42.json")); !os.IsNotExist(err) {
		t.Errorf("session file still present: %v", err)
	}
	if len(NewManager(dir).List()) != 0 {
		t.Error("deleted session reloaded")
	}
}
