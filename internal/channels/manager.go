package channels

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

type managed struct {
	ch       Channel
	startErr error
}

// Manager owns the enabled channels: it starts and stops them and routes
// outbound replies to the channel a conversation came in on.
type Manager struct {
	mu       sync.RWMutex
	channels map[string]*managed
}

func NewManager() *Manager {
	return &Manager{channels: make(map[string]*managed)}
}

// RegisterChannel adds or replaces the channel under name.
func (m *Manager) RegisterChannel(name string, ch Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[name] = &managed{ch: ch}
}

// GetEnabledChannels returns registered channel names, sorted.
func (m *Manager) GetEnabledChannels() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StartAll starts every channel in name order. A channel that fails is
// logged and left stopped; StartAll errors only when none came up.
func (m *Manager) StartAll(ctx context.Context) error {
	names := m.GetEnabledChannels()
	if len(names) == 0 {
		slog.Warn("no channels enabled")
		return nil
	}

	var errs []error
	for _, name := range names {
		entry := m.entry(name)
		err := entry.ch.Start(ctx)
		m.mu.Lock()
		entry.startErr = err
		m.mu.Unlock()
		if err != nil {
			slog.Error("channel failed to start", "channel", name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		slog.Info("channel started", "channel", name)
	}
	if len(errs) == len(names) {
		return fmt.Errorf("no channel started: %w", errors.Join(errs...))
	}
	return nil
}

// StopAll stops every channel; failures are logged.
func (m *Manager) StopAll(ctx context.Context) error {
	for _, name := range m.GetEnabledChannels() {
		if err := m.entry(name).ch.Stop(ctx); err != nil {
			slog.Warn("channel stop failed", "channel", name, "error", err)
		}
	}
	slog.Info("channels stopped")
	return nil
}

// GetStatus reports running state and any start error per channel.
func (m *Manager) GetStatus() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()
	status := make(map[string]interface{}, len(m.channels))
	for name, e := range m.channels {
		s := map[string]interface{}{"running": e.ch.IsRunning()}
		if e.startErr != nil {
			s["error"] = e.startErr.Error()
		}
		status[name] = s
	}
	return status
}

func (m *Manager) entry(name string) *managed {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.channels[name]
}

// Send renders msg for channelName and delivers it to chatID. Empty
// messages are a no-op.
func (m *Manager) Send(ctx context.Context, channelName, chatID string, msg OutboundMessage) error {
	e := m.entry(channelName)
	if e == nil {
		return fmt.Errorf("channel %s not registered", channelName)
	}
	if msg.IsEmpty() {
		return nil
	}
	return Deliver(ctx, e.ch, chatID, Render(channelName, msg))
}
