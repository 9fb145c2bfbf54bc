package upgrade

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeTriggers(t *testing.T) {
	got := NormalizeTriggers([]string{"Order Food", "order  food", " ", "PIZZA", "pizza", "send parcel"})
	assert.Equal(t, []string{"order food", "pizza", "send parcel"}, got)
	assert.Empty(t, NormalizeTriggers(nil))
}

func TestSchemaStatus(t *testing.T) {
	cases := []struct {
		state   SchemaState
		current uint
		err     error
		advice  string
	}{
		{StateCurrent, 2, nil, ""},
		{StateFresh, 0, ErrSchemaOutdated, "chatrelay migrate up"},
		{StateOutdated, 1, ErrSchemaOutdated, "CHATRELAY_AUTO_UPGRADE"},
		{StateDirty, 2, ErrSchemaDirty, "migrate force 1"},
		{StateAhead, 3, ErrSchemaAhead, "newer chatrelay"},
	}
	for _, tc := range cases {
		t.Run(string(tc.state), func(t *testing.T) {
			s := &SchemaStatus{State: tc.state, CurrentVersion: tc.current, RequiredVersion: 2}
			assert.Equal(t, tc.state == StateCurrent, s.Compatible())
			if tc.err == nil {
				assert.NoError(t, s.Err())
			} else {
				assert.ErrorIs(t, s.Err(), tc.err)
			}
			if tc.advice == "" {
				assert.Empty(t, s.Advice())
			} else {
				assert.Contains(t, s.Advice(), tc.advice)
			}
		})
	}
}

func TestRegistryHasTriggerHook(t *testing.T) {
	var names []string
	for _, h := range registry {
		names = append(names, h.name)
	}
	assert.Contains(t, names, "002_normalize_trigger_phrases")
}
