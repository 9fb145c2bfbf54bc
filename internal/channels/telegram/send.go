package telegram

import (
	"context"
	"fmt"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/nextlevelbuilder/chatrelay/internal/bus"
	"github.com/nextlevelbuilder/chatrelay/internal/channels"
)

// buttonsPerRow keeps inline keyboards readable on phones.
const buttonsPerRow = 2

func (c *Channel) chat(chatID string) (telego.ChatID, error) {
	if !c.IsRunning() {
		return telego.ChatID{}, fmt.Errorf("telegram bot not running")
	}
	id, err := parseChatID(chatID)
	if err != nil {
		return telego.ChatID{}, fmt.Errorf("invalid telegram chat id %q: %w", chatID, err)
	}
	return tu.ID(id), nil
}

func (c *Channel) SendText(ctx context.Context, chatID, text string) error {
	id, err := c.chat(chatID)
	if err != nil {
		return err
	}
	_, err = c.bot.SendMessage(ctx, tu.Message(id, text))
	return err
}

func (c *Channel) SendButtons(ctx context.Context, chatID, text string, buttons []channels.Button) error {
	id, err := c.chat(chatID)
	if err != nil {
		return err
	}
	msg := tu.Message(id, text).WithReplyMarkup(inlineKeyboard(buttons))
	_, err = c.bot.SendMessage(ctx, msg)
	return err
}

// SendList is never reached through Deliver (lists render to text), but a
// direct caller still gets a usable keyboard.
func (c *Channel) SendList(ctx context.Context, chatID, text, _ string, items []channels.ListItem) error {
	id, err := c.chat(chatID)
	if err != nil {
		return err
	}
	rows := make([][]telego.InlineKeyboardButton, 0, len(items))
	for _, it := range items {
		rows = append(rows, tu.InlineKeyboardRow(
			tu.InlineKeyboardButton(it.Title).WithCallbackData(callbackData(bus.ActionList, it.ID)),
		))
	}
	_, err = c.bot.SendMessage(ctx, tu.Message(id, text).WithReplyMarkup(tu.InlineKeyboard(rows...)))
	return err
}

func (c *Channel) SendImage(ctx context.Context, chatID, url, caption string) error {
	id, err := c.chat(chatID)
	if err != nil {
		return err
	}
	photo := tu.Photo(id, tu.FileFromURL(url))
	if caption != "" {
		photo = photo.WithCaption(caption)
	}
	_, err = c.bot.SendPhoto(ctx, photo)
	return err
}

// SendLocationRequest shows a one-time reply keyboard asking for the user's
// location, or sends the pin when coordinates are set.
func (c *Channel) SendLocationRequest(ctx context.Context, chatID, text string, loc channels.Location) error {
	id, err := c.chat(chatID)
	if err != nil {
		return err
	}
	if !loc.IsRequest() {
		if text != "" {
			if _, err := c.bot.SendMessage(ctx, tu.Message(id, text)); err != nil {
				return err
			}
		}
		_, err = c.bot.SendLocation(ctx, tu.Location(id, loc.Latitude, loc.Longitude))
		return err
	}
	label := loc.Label
	if label == "" {
		label = "📍 Share location"
	}
	keyboard := tu.Keyboard(tu.KeyboardRow(tu.KeyboardButton(label).WithRequestLocation())).
		WithResizeKeyboard().
		WithOneTimeKeyboard()
	_, err = c.bot.SendMessage(ctx, tu.Message(id, text).WithReplyMarkup(keyboard))
	return err
}

func inlineKeyboard(buttons []channels.Button) *telego.InlineKeyboardMarkup {
	var rows [][]telego.InlineKeyboardButton
	var row []telego.InlineKeyboardButton
	for _, b := range buttons {
		row = append(row, tu.InlineKeyboardButton(b.Title).WithCallbackData(callbackData(bus.ActionButton, b.ID)))
		if len(row) == buttonsPerRow {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	return tu.InlineKeyboard(rows...)
}
