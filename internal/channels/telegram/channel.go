// Package telegram is the Telegram Bot API adapter: private chats in,
// inline keyboards out.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/mymmrac/telego"

	"github.com/nextlevelbuilder/chatrelay/internal/bus"
	"github.com/nextlevelbuilder/chatrelay/internal/channels"
	"github.com/nextlevelbuilder/chatrelay/internal/config"
)

const (
	pollTimeoutSec = 30
	stopWait       = 10 * time.Second
	maxBotCommands = 100
)

// menuRetryDelays spaces the attempts to publish the command menu.
var menuRetryDelays = []time.Duration{0, 5 * time.Second, 10 * time.Second}

// menuCommands are the global commands. Telegram sends "/menu" as plain
// text, so the command handler matches it like any keyword.
var menuCommands = []telego.BotCommand{
	{Command: "menu", Description: "Show the main menu"},
	{Command: "cancel", Description: "Cancel what you are doing"},
	{Command: "back", Description: "Go back to what you were doing before"},
	{Command: "restart", Description: "Start over"},
	{Command: "help", Description: "What can I do?"},
}

// Channel long-polls the Bot API.
type Channel struct {
	*channels.BaseChannel
	bot *telego.Bot
	cfg config.TelegramConfig

	cancel context.CancelFunc
	done   chan struct{}
}

func New(cfg config.TelegramConfig, handler bus.InboundHandler) (*Channel, error) {
	opts, err := botOptions(cfg)
	if err != nil {
		return nil, err
	}
	bot, err := telego.NewBot(cfg.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("telegram: create bot: %w", err)
	}
	return &Channel{
		BaseChannel: channels.NewBaseChannel(channels.ChannelTelegram, handler, cfg.AllowFrom),
		bot:         bot,
		cfg:         cfg,
	}, nil
}

func botOptions(cfg config.TelegramConfig) ([]telego.BotOption, error) {
	if cfg.Proxy == "" {
		return nil, nil
	}
	proxy, err := url.Parse(cfg.Proxy)
	if err != nil {
		return nil, fmt.Errorf("telegram: proxy %q: %w", cfg.Proxy, err)
	}
	client := &http.Client{Transport: &http.Transport{Proxy: http.ProxyURL(proxy)}}
	return []telego.BotOption{telego.WithHTTPClient(client)}, nil
}

// Start opens the update stream and returns; updates are consumed in the
// background until Stop.
func (c *Channel) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	updates, err := c.bot.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{
		Timeout:        pollTimeoutSec,
		AllowedUpdates: []string{"message", "callback_query"},
	})
	if err != nil {
		cancel()
		return fmt.Errorf("telegram: long polling: %w", err)
	}
	c.cancel = cancel
	c.done = make(chan struct{})
	c.SetRunning(true)
	slog.Info("telegram bot polling", "username", c.bot.Username())

	go c.publishMenu(ctx)
	go c.consume(ctx, updates)
	return nil
}

func (c *Channel) consume(ctx context.Context, updates <-chan telego.Update) {
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				slog.Info("telegram update stream closed")
				return
			}
			switch {
			case u.Message != nil:
				c.handleMessage(ctx, u.Message)
			case u.CallbackQuery != nil:
				c.handleCallbackQuery(ctx, u.CallbackQuery)
			}
		}
	}
}

// publishMenu replaces the bot's command menu, retrying a few times.
func (c *Channel) publishMenu(ctx context.Context) {
	cmds := menuCommands
	if len(cmds) > maxBotCommands {
		cmds = cmds[:maxBotCommands]
	}
	for attempt, delay := range menuRetryDelays {
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		if err := c.bot.DeleteMyCommands(ctx, nil); err != nil {
			slog.Debug("telegram deleteMyCommands failed", "error", err)
		}
		err := c.bot.SetMyCommands(ctx, &telego.SetMyCommandsParams{Commands: cmds})
		if err == nil {
			slog.Debug("telegram menu published", "commands", len(cmds))
			return
		}
		slog.Warn("telegram menu publish failed", "attempt", attempt+1, "error", err)
	}
}

// Stop cancels polling and waits for the consumer; Telegram keeps the
// getUpdates lock until it exits.
func (c *Channel) Stop(_ context.Context) error {
	c.SetRunning(false)
	if c.cancel == nil {
		return nil
	}
	c.cancel()
	select {
	case <-c.done:
	case <-time.After(stopWait):
		slog.Warn("telegram poller still running after stop", "waited", stopWait)
	}
	return nil
}

func parseChatID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("telegram: chat id %q: %w", s, err)
	}
	return id, nil
}
