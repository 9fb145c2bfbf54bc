package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/chatrelay/internal/bus"
	"github.com/nextlevelbuilder/chatrelay/internal/channels"
	"github.com/nextlevelbuilder/chatrelay/internal/channels/discord"
	"github.com/nextlevelbuilder/chatrelay/internal/channels/telegram"
	"github.com/nextlevelbuilder/chatrelay/internal/channels/voice"
	"github.com/nextlevelbuilder/chatrelay/internal/channels/whatsapp"
	"github.com/nextlevelbuilder/chatrelay/internal/config"
	"github.com/nextlevelbuilder/chatrelay/internal/dedupe"
	"github.com/nextlevelbuilder/chatrelay/internal/featureflag"
	"github.com/nextlevelbuilder/chatrelay/internal/gateway"
	httpapi "github.com/nextlevelbuilder/chatrelay/internal/http"
	"github.com/nextlevelbuilder/chatrelay/internal/intent"
	"github.com/nextlevelbuilder/chatrelay/internal/router"
	"github.com/nextlevelbuilder/chatrelay/internal/store"
	"github.com/nextlevelbuilder/chatrelay/internal/store/file"
	"github.com/nextlevelbuilder/chatrelay/internal/store/pg"
	"github.com/nextlevelbuilder/chatrelay/internal/tracing"
	"github.com/nextlevelbuilder/chatrelay/pkg/protocol"
)

const localDedupEntries = 10000

func runGateway() {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, cfg.Telemetry)
	if err != nil {
		slog.Warn("telemetry disabled", "error", err)
		shutdownTracing = func(context.Context) error { return nil }
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		shutdownTracing(sctx)
	}()

	stores, err := openStores(ctx, cfg)
	if err != nil {
		slog.Error("failed to open stores", "error", err)
		os.Exit(1)
	}
	defer stores.Close()

	msgBus, locker, closeTransport, err := openTransport(ctx, cfg)
	if err != nil {
		slog.Error("failed to open transport", "error", err)
		os.Exit(1)
	}
	defer closeTransport()

	hub := bus.NewEventHub()

	// Feature flags: config snapshot, optional hot-reloaded file.
	flags := featureflag.New(featureflag.FromConfig(cfg.Flags))
	flags.OnUpdate(func(c featureflag.Config) {
		hub.Broadcast(bus.Event{Name: protocol.EventFlagsChanged, Payload: c})
	})
	if err := featureflag.Watch(ctx, cfg.Flags.File, flags); err != nil {
		slog.Warn("feature flag file not watched", "path", cfg.Flags.File, "error", err)
	}

	// Intent router over the trigger cache.
	triggerCache := intent.NewTriggerCache(stores.Triggers, time.Duration(cfg.Intent.TriggerTTLSec)*time.Second)
	if err := triggerCache.Refresh(ctx); err != nil {
		slog.Warn("initial trigger load failed, starting with empty rules", "error", err)
	}
	intents := intent.NewRouter(triggerCache,
		intent.WithDetectors(intent.NewParcelDetector(), intent.NewFoodDetector()),
		intent.WithThreshold(cfg.Intent.DetectorThreshold),
	)
	hub.Subscribe("trigger-cache", func(ev bus.Event) {
		if ev.Name != protocol.EventCacheInvalidate {
			return
		}
		if p, ok := ev.Payload.(bus.CacheInvalidatePayload); !ok || p.Kind != bus.CacheKindFlowTriggers {
			return
		}
		if err := triggerCache.Refresh(context.Background()); err != nil {
			slog.Warn("trigger cache invalidation refresh failed", "error", err)
		}
	})

	channelMgr := channels.NewManager()
	collab := buildCollaborators(cfg)
	contextRouter := router.New(routerConfig(cfg), router.Deps{
		Sessions:   stores.Sessions,
		Durable:    stores.Durable,
		Intents:    intents,
		Classifier: collab.Classifier,
		Flows:      collab.Flows,
		Agent:      collab.Agent,
		Services:   collab.Services,
		Deliverer:  channelMgr,
	})

	gw := gateway.New(cfg, gateway.Deps{
		Bus:      msgBus,
		Locker:   locker,
		Sessions: stores.Sessions,
		Flags:    flags,
		Router:   contextRouter,
		Events:   hub,
	})

	server := gateway.NewServer(cfg, gw, hub)
	server.SetChannelManager(channelMgr)
	server.SetFlags(flags)
	server.Mount(httpapi.NewAdminHandler(cfg.Gateway.Token, httpapi.AdminDeps{
		Events:   hub,
		Triggers: stores.Triggers,
		Intents:  intents,
		Sessions: stores.Sessions,
		Flags:    flags,
	}).RegisterRoutes)
	registerChannels(cfg, channelMgr, gw, server)

	consumer := &routeConsumer{
		router:  contextRouter,
		locker:  locker,
		events:  hub,
		lockTTL: cfg.Gateway.LockTTL(),
	}

	slog.Info("chatrelay gateway starting",
		"version", Version,
		"protocol", protocol.ProtocolVersion,
		"mode", cfg.Database.Mode,
		"redis", cfg.Redis.Enabled(),
		"channels", channelMgr.GetEnabledChannels(),
		"triggers", triggerCache.Current().Len(),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(gctx)
	})
	g.Go(func() error {
		if err := consumer.start(gctx, msgBus, cfg.Gateway.ConsumerWorkers); err != nil {
			return err
		}
		if err := channelMgr.StartAll(gctx); err != nil {
			return fmt.Errorf("start channels: %w", err)
		}
		<-gctx.Done()
		slog.Info("graceful shutdown initiated")
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return channelMgr.StopAll(sctx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("gateway error", "error", err)
		os.Exit(1)
	}
	slog.Info("gateway stopped")
}

// openStores picks Postgres in managed mode and file/config storage otherwise.
func openStores(ctx context.Context, cfg *config.Config) (*store.Stores, error) {
	storeCfg := store.StoreConfig{
		PostgresDSN:     cfg.Database.PostgresDSN,
		SessionsStorage: cfg.SessionsPath(),
		Triggers:        triggerRules(cfg),
	}
	if !cfg.IsManagedMode() {
		slog.Info("standalone mode", "sessions", storeCfg.SessionsStorage, "triggers", len(storeCfg.Triggers))
		return file.NewFileStores(storeCfg), nil
	}
	if err := checkSchemaOrAutoUpgrade(ctx, cfg.Database.PostgresDSN); err != nil {
		return nil, err
	}
	stores, err := pg.NewPGStores(storeCfg)
	if err != nil {
		return nil, err
	}
	slog.Info("managed mode: postgres stores ready")
	return stores, nil
}

func triggerRules(cfg *config.Config) []store.FlowTrigger {
	rules := cfg.TriggerRules()
	out := make([]store.FlowTrigger, 0, len(rules))
	for _, r := range rules {
		out = append(out, store.FlowTrigger{
			FlowID:   r.FlowID,
			Triggers: []string(r.Triggers),
			Priority: r.Priority,
			Enabled:  r.IsEnabled(),
		})
	}
	return out
}

// openTransport returns the bus and message locker. With Redis configured
// both are shared across replicas; otherwise they are process-local.
func openTransport(ctx context.Context, cfg *config.Config) (bus.Bus, dedupe.Locker, func(), error) {
	if !cfg.Redis.Enabled() {
		cache := dedupe.New(localDedupEntries)
		b := bus.New(cfg.Gateway.ConsumerWorkers * 64)
		return b, cache, func() {
			b.Close()
			cache.Close()
		}, nil
	}

	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		client.Close()
		return nil, nil, nil, fmt.Errorf("redis ping: %w", err)
	}

	owner, _ := os.Hostname()
	owner = owner + "/" + uuid.NewString()[:8]
	b := bus.NewRedisBus(client, cfg.Redis.Prefix)
	slog.Info("redis transport ready", "addr", opts.Addr, "prefix", cfg.Redis.Prefix)
	return b, dedupe.NewRedisLocker(client, owner), func() {
		b.Close()
		client.Close()
	}, nil
}

func routerConfig(cfg *config.Config) router.Config {
	rc := cfg.Router
	return router.Config{
		CollaboratorTimeout:       rc.CollaboratorTimeout(),
		FlowSwitchThreshold:       rc.FlowSwitchThreshold,
		ChitchatSwitchThreshold:   rc.ChitchatSwitchThreshold,
		CommandConfidenceFloor:    rc.CommandConfidenceFloor,
		OnboardingEnabled:         rc.OnboardingEnabled,
		OnboardingFlowID:          rc.OnboardingFlowID,
		NativeOnboardingPlatforms: rc.NativeOnboardingPlatforms,
		FallbackText:              rc.FallbackText,
	}
}

// registerChannels builds every enabled adapter. Asynchronous adapters feed
// the gateway pipeline; voice answers inline and mounts its webhooks on the
// gateway listener.
func registerChannels(cfg *config.Config, mgr *channels.Manager, gw *gateway.Gateway, server *gateway.Server) {
	ch := cfg.Channels

	if ch.Telegram.Enabled && ch.Telegram.Token != "" {
		if c, err := telegram.New(ch.Telegram, gw.HandleInbound); err != nil {
			slog.Error("failed to initialize telegram channel", "error", err)
		} else {
			mgr.RegisterChannel(channels.ChannelTelegram, c)
		}
	}

	if ch.Discord.Enabled && ch.Discord.Token != "" {
		if c, err := discord.New(ch.Discord, gw.HandleInbound); err != nil {
			slog.Error("failed to initialize discord channel", "error", err)
		} else {
			mgr.RegisterChannel(channels.ChannelDiscord, c)
		}
	}

	if ch.WhatsApp.Enabled {
		if c, err := whatsapp.New(ch.WhatsApp, gw.HandleInbound); err != nil {
			slog.Error("failed to initialize whatsapp channel", "error", err)
		} else {
			mgr.RegisterChannel(channels.ChannelWhatsApp, c)
		}
	}

	if ch.Voice.Enabled {
		c := voice.New(ch.Voice, gw.HandleSync)
		mgr.RegisterChannel(channels.ChannelVoice, c)
		server.Mount(c.Routes)
	}
}
