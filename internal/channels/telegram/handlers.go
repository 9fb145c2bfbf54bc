package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/nextlevelbuilder/chatrelay/internal/bus"
	"github.com/nextlevelbuilder/chatrelay/internal/channels"
)

// handleMessage forwards a user's text (or shared location) to the gateway.
func (c *Channel) handleMessage(ctx context.Context, message *telego.Message) {
	if isServiceMessage(message) {
		slog.Debug("telegram service message skipped", "chat_id", message.Chat.ID)
		return
	}
	user := message.From
	if user == nil || user.IsBot {
		return
	}

	senderID := senderKey(user)
	chatIDStr := strconv.FormatInt(message.Chat.ID, 10)

	if message.Chat.Type != telego.ChatTypePrivate {
		slog.Debug("telegram group message ignored", "chat_id", message.Chat.ID)
		return
	}

	content := message.Text
	if content == "" {
		content = message.Caption
	}
	metadata := map[string]string{
		"message_id": strconv.Itoa(message.MessageID),
		"username":   user.Username,
	}
	if user.LanguageCode != "" {
		metadata["language_code"] = user.LanguageCode
	}
	if loc := message.Location; loc != nil {
		metadata["latitude"] = strconv.FormatFloat(loc.Latitude, 'f', 6, 64)
		metadata["longitude"] = strconv.FormatFloat(loc.Longitude, 'f', 6, 64)
		if content == "" {
			content = metadata["latitude"] + "," + metadata["longitude"]
		}
	}
	if content == "" {
		return
	}

	slog.Debug("telegram message received",
		"chat_id", message.Chat.ID,
		"user_id", user.ID,
		"text_preview", channels.Truncate(content, 60),
	)

	c.HandleMessage(ctx, senderID, chatIDStr, content, nil, metadata)
}

// handleCallbackQuery turns an inline keyboard press into a UI action.
func (c *Channel) handleCallbackQuery(ctx context.Context, q *telego.CallbackQuery) {
	if err := c.bot.AnswerCallbackQuery(ctx, tu.CallbackQuery(q.ID)); err != nil {
		slog.Debug("answer callback query failed", "error", err)
	}
	if q.Message == nil || q.Data == "" {
		return
	}
	action := parseCallbackData(q.Data)
	chatIDStr := strconv.FormatInt(q.Message.GetChat().ID, 10)

	slog.Debug("telegram callback received", "chat_id", chatIDStr, "action", action.ID)
	c.HandleMessage(ctx, senderKey(&q.From), chatIDStr, action.Value, action, map[string]string{
		"callback_id": q.ID,
	})
}

// Callback data is "<kind>:<id>"; Telegram caps it at 64 bytes.
const maxCallbackData = 64

func callbackData(kind, id string) string {
	data := kind + ":" + id
	if len(data) > maxCallbackData {
		data = data[:maxCallbackData]
	}
	return data
}

func parseCallbackData(data string) *bus.UIAction {
	kind, id, ok := strings.Cut(data, ":")
	if !ok || (kind != bus.ActionButton && kind != bus.ActionList) {
		return &bus.UIAction{ID: data, Value: data, Kind: bus.ActionButton}
	}
	return &bus.UIAction{ID: id, Value: id, Kind: kind}
}

// senderKey uses the compound "id|username" form the allowlist understands.
func senderKey(u *telego.User) string {
	if u.Username != "" {
		return fmt.Sprintf("%d|%s", u.ID, u.Username)
	}
	return strconv.FormatInt(u.ID, 10)
}

// isServiceMessage reports member joins, title changes and similar updates
// that carry nothing to route.
func isServiceMessage(msg *telego.Message) bool {
	if msg.Text != "" || msg.Caption != "" || msg.Location != nil {
		return false
	}
	return len(msg.NewChatMembers) > 0 || msg.LeftChatMember != nil ||
		msg.NewChatTitle != "" || msg.PinnedMessage != nil
}
