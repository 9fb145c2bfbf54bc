package discord

import (
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/chatrelay/internal/bus"
	"github.com/nextlevelbuilder/chatrelay/internal/channels"
)

func TestComponentAction(t *testing.T) {
	a := componentAction(discordgo.MessageComponentInteractionData{CustomID: "order_food"})
	require.NotNil(t, a)
	assert.Equal(t, "order_food", a.ID)
	assert.Equal(t, bus.ActionButton, a.Kind)

	a = componentAction(discordgo.MessageComponentInteractionData{CustomID: listCustomID, Values: []string{"item_7"}})
	require.NotNil(t, a)
	assert.Equal(t, "item_7", a.ID)
	assert.Equal(t, bus.ActionList, a.Kind)

	assert.Nil(t, componentAction(discordgo.MessageComponentInteractionData{CustomID: listCustomID}))
}

func TestButtonRows(t *testing.T) {
	var buttons []channels.Button
	for i := 0; i < 7; i++ {
		buttons = append(buttons, channels.Button{ID: string(rune('a' + i)), Title: "x"})
	}
	rows := buttonRows(buttons)
	require.Len(t, rows, 2)
	assert.Len(t, rows[0].(discordgo.ActionsRow).Components, maxRowButtons)
	assert.Len(t, rows[1].(discordgo.ActionsRow).Components, 2)
}

func TestStripMention(t *testing.T) {
	assert.Equal(t, "order pizza", stripMention("<@123> order pizza", "123"))
	assert.Equal(t, "hi", stripMention("<@!123>   hi", "123"))
}
