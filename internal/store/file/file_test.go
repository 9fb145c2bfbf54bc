package file

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/chatrelay/internal/sessions"
	"github.com/nextlevelbuilder/chatrelay/internal/store"
)

func TestFileSessionStore_GetMissing(t *testing.T) {
	s := NewFileSessionStore(sessions.NewManager(""))
	_, err := s.Get(context.Background(), "+919876543210")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestFileSessionStore_UpdatePersists(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := NewFileSessionStore(sessions.NewManager(dir))

	_, err := s.GetOrCreate(ctx, "telegram:42")
	require.NoError(t, err)
	require.NoError(t, s.Update(ctx, "telegram:42", map[string]any{sessions.KeyLanguage: "mr"}))

	reopened := NewFileSessionStore(sessions.NewManager(dir))
	got, err := reopened.Get(ctx, "telegram:42")
	require.NoError(t, err)
	assert.Equal(t, "mr", got.Data.String(sessions.KeyLanguage))
}

func TestStaticTriggerStore_OrderAndFilter(t *testing.T) {
	s := NewStaticTriggerStore([]store.FlowTrigger{
		{FlowID: "greeting_v1", Triggers: []string{"greeting"}, Priority: 10, Enabled: true},
		{FlowID: "food_order_v1", Triggers: []string{"order_food"}, Priority: 100, Enabled: true},
		{FlowID: "legacy_food", Triggers: []string{"order_food"}, Priority: 500, Enabled: false},
	})

	rules, err := s.ListEnabled(context.Background())
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "food_order_v1", rules[0].FlowID)
	assert.Equal(t, "greeting_v1", rules[1].FlowID)
}
