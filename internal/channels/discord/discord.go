package discord

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/nextlevelbuilder/chatrelay/internal/bus"
	"github.com/nextlevelbuilder/chatrelay/internal/channels"
	"github.com/nextlevelbuilder/chatrelay/internal/config"
)

// maxMessageLen is Discord's hard content limit.
const maxMessageLen = 2000

// Channel connects to Discord via the Bot API using gateway events.
type Channel struct {
	*channels.BaseChannel
	session   *discordgo.Session
	config    config.DiscordConfig
	botUserID string // populated on start
}

// New creates a new Discord channel from config.
func New(cfg config.DiscordConfig, handler bus.InboundHandler) (*Channel, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	return &Channel{
		BaseChannel: channels.NewBaseChannel(channels.ChannelDiscord, handler, cfg.AllowFrom),
		session:     session,
		config:      cfg,
	}, nil
}

// Start opens the Discord gateway connection and begins receiving events.
// Handlers run on discordgo's goroutines and use ctx for the gateway call.
func (c *Channel) Start(ctx context.Context) error {
	slog.Info("starting discord bot")

	c.session.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		c.handleMessage(ctx, m)
	})
	c.session.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		c.handleInteraction(ctx, s, i)
	})

	if err := c.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}

	user, err := c.session.User("@me")
	if err != nil {
		c.session.Close()
		return fmt.Errorf("fetch discord bot identity: %w", err)
	}
	c.botUserID = user.ID

	c.SetRunning(true)
	slog.Info("discord bot connected", "username", user.Username, "id", user.ID)

	return nil
}

// Stop closes the Discord gateway connection.
func (c *Channel) Stop(_ context.Context) error {
	slog.Info("stopping discord bot")
	c.SetRunning(false)
	return c.session.Close()
}

func (c *Channel) handleMessage(ctx context.Context, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == c.botUserID || m.Author.Bot {
		return
	}

	isDM := m.GuildID == ""
	content := m.Content
	if !isDM {
		// In guilds only messages addressed to the bot are routed.
		if !mentions(m.Mentions, c.botUserID) {
			return
		}
		content = stripMention(content, c.botUserID)
	}
	if strings.TrimSpace(content) == "" {
		return
	}

	slog.Debug("discord message received",
		"sender_id", m.Author.ID,
		"channel_id", m.ChannelID,
		"is_dm", isDM,
		"preview", channels.Truncate(content, 50),
	)

	c.HandleMessage(ctx, m.Author.ID, m.ChannelID, content, nil, map[string]string{
		"message_id": m.ID,
		"username":   m.Author.Username,
		"guild_id":   m.GuildID,
	})
}

// handleInteraction turns a button press or select choice into a UI action.
func (c *Channel) handleInteraction(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionMessageComponent {
		return
	}
	// Acknowledge within Discord's 3 second window; the reply follows as a
	// regular message.
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredMessageUpdate,
	}); err != nil {
		slog.Debug("discord interaction ack failed", "error", err)
	}

	user := i.User
	if i.Member != nil && i.Member.User != nil {
		user = i.Member.User
	}
	if user == nil {
		return
	}
	action := componentAction(i.MessageComponentData())
	if action == nil {
		return
	}
	c.HandleMessage(ctx, user.ID, i.ChannelID, action.Value, action, map[string]string{
		"interaction_id": i.ID,
		"username":       user.Username,
	})
}

// listCustomID marks select menus so their chosen value becomes the action.
const listCustomID = "list"

func componentAction(data discordgo.MessageComponentInteractionData) *bus.UIAction {
	if data.CustomID == listCustomID {
		if len(data.Values) == 0 {
			return nil
		}
		return &bus.UIAction{ID: data.Values[0], Value: data.Values[0], Kind: bus.ActionList}
	}
	if data.CustomID == "" {
		return nil
	}
	return &bus.UIAction{ID: data.CustomID, Value: data.CustomID, Kind: bus.ActionButton}
}

func mentions(users []*discordgo.User, id string) bool {
	for _, u := range users {
		if u.ID == id {
			return true
		}
	}
	return false
}

func stripMention(content, botID string) string {
	content = strings.ReplaceAll(content, "<@"+botID+">", "")
	content = strings.ReplaceAll(content, "<@!"+botID+">", "")
	return strings.TrimSpace(content)
}
