package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/nextlevelbuilder/chatrelay/internal/channels"
)

// maxRowButtons is the per action row component limit.
const maxRowButtons = 5

func (c *Channel) send(ctx context.Context, channelID string, msg *discordgo.MessageSend) error {
	if !c.IsRunning() {
		return fmt.Errorf("discord bot not running")
	}
	if channelID == "" {
		return fmt.Errorf("empty chat ID for discord send")
	}
	if _, err := c.session.ChannelMessageSendComplex(channelID, msg, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("send discord message: %w", err)
	}
	return nil
}

func (c *Channel) SendText(ctx context.Context, chatID, text string) error {
	return c.send(ctx, chatID, &discordgo.MessageSend{Content: channels.Truncate(text, maxMessageLen)})
}

func (c *Channel) SendButtons(ctx context.Context, chatID, text string, buttons []channels.Button) error {
	return c.send(ctx, chatID, &discordgo.MessageSend{
		Content:    channels.Truncate(text, maxMessageLen),
		Components: buttonRows(buttons),
	})
}

func (c *Channel) SendList(ctx context.Context, chatID, text, buttonText string, items []channels.ListItem) error {
	return c.send(ctx, chatID, &discordgo.MessageSend{
		Content:    channels.Truncate(text, maxMessageLen),
		Components: []discordgo.MessageComponent{selectMenu(buttonText, items)},
	})
}

func (c *Channel) SendImage(ctx context.Context, chatID, url, caption string) error {
	return c.send(ctx, chatID, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{{
			Description: caption,
			Image:       &discordgo.MessageEmbedImage{URL: url},
		}},
	})
}

// SendLocationRequest is unsupported: Discord has no location sharing.
func (c *Channel) SendLocationRequest(context.Context, string, string, channels.Location) error {
	return channels.ErrUnsupported
}

func buttonRows(buttons []channels.Button) []discordgo.MessageComponent {
	var rows []discordgo.MessageComponent
	var row []discordgo.MessageComponent
	for _, b := range buttons {
		row = append(row, discordgo.Button{
			Label:    b.Title,
			Style:    discordgo.PrimaryButton,
			CustomID: b.ID,
		})
		if len(row) == maxRowButtons {
			rows = append(rows, discordgo.ActionsRow{Components: row})
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, discordgo.ActionsRow{Components: row})
	}
	return rows
}

// maxSelectOptions is Discord's select menu option limit.
const maxSelectOptions = 25

func selectMenu(placeholder string, items []channels.ListItem) discordgo.ActionsRow {
	if len(items) > maxSelectOptions {
		items = items[:maxSelectOptions]
	}
	opts := make([]discordgo.SelectMenuOption, 0, len(items))
	for _, it := range items {
		opts = append(opts, discordgo.SelectMenuOption{
			Label:       channels.Truncate(it.Title, 100),
			Value:       it.ID,
			Description: channels.Truncate(it.Description, 100),
		})
	}
	return discordgo.ActionsRow{Components: []discordgo.MessageComponent{
		discordgo.SelectMenu{
			MenuType:    discordgo.StringSelectMenu,
			CustomID:    listCustomID,
			Placeholder: placeholder,
			Options:     opts,
		},
	}}
}
