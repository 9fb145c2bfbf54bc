package channels

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buttons(n int) []Button {
	out := make([]Button, n)
	for i := range out {
		out[i] = Button{ID: fmt.Sprintf("b%d", i+1), Title: fmt.Sprintf("Option %d", i+1)}
	}
	return out
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactly ten", 11, "exactly ten"},
		{"hello world again", 14, "hello world..."},
		{"helloworldagain", 10, "hellowo..."},
		{"anything", -1, "anything"},
		{"abcdef", 3, "a..."},
		{"abcdef", 1, "a..."},
		{"abcdef", 0, "a..."},
		{"abc", 2, "abc"},
	}
	for _, tt := range tests {
		got := Truncate(tt.in, tt.max)
		if got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}

func TestTruncate_NeverExceedsMax(t *testing.T) {
	text := strings.Repeat("नमस्ते world ", 40)
	for max := 4; max < 200; max += 7 {
		got := Truncate(text, max)
		assert.LessOrEqual(t, utf8.RuneCountInString(got), max)
		assert.True(t, strings.HasSuffix(got, "..."), "max=%d", max)
	}
	assert.Equal(t, "fits", Truncate("fits", 100))
}

func TestRender_ButtonOverflow(t *testing.T) {
	out := Render(ChannelWhatsApp, OutboundMessage{Text: "Pick one", Buttons: buttons(5)})

	require.Len(t, out.Buttons, 3)
	assert.Equal(t, "b1", out.Buttons[0].ID)
	assert.Contains(t, out.Text, "Reply with text for 2 more")
	assert.Contains(t, out.Text, "4. Option 4")
	assert.Contains(t, out.Text, "5. Option 5")
}

func TestRender_NoButtonsChannelNumbersAllInOrder(t *testing.T) {
	out := Render(ChannelSMS, OutboundMessage{Text: "Pick one", Buttons: buttons(4)})

	assert.Empty(t, out.Buttons)
	last := -1
	for i := 1; i <= 4; i++ {
		idx := strings.Index(out.Text, fmt.Sprintf("%d. Option %d", i, i))
		require.GreaterOrEqual(t, idx, 0, "option %d missing", i)
		assert.Greater(t, idx, last, "option %d out of order", i)
		last = idx
	}
}

func TestRender_PassThroughWhenSupported(t *testing.T) {
	msg := OutboundMessage{
		Text:           "Menu",
		Buttons:        buttons(2),
		ListItems:      []ListItem{{ID: "1", Title: "Pizza"}},
		ListButtonText: "View",
		ImageURL:       "https://img/p.png",
		ImageCaption:   "Pizza",
		Location:       &Location{Latitude: 19.07, Longitude: 72.87, Label: "Store"},
	}
	out := Render(ChannelWeb, msg)
	assert.Equal(t, "Menu", out.Text)
	assert.Len(t, out.Buttons, 2)
	assert.Len(t, out.ListItems, 1)
	assert.Equal(t, "View", out.ListButtonText)
	assert.Equal(t, "https://img/p.png", out.ImageURL)
	require.NotNil(t, out.Location)
	assert.Equal(t, ChannelWeb, out.Channel)
}

func TestRender_DegradesListImageLocation(t *testing.T) {
	msg := OutboundMessage{
		Text:           "Choose a restaurant",
		ListItems:      []ListItem{{ID: "r1", Title: "Spice Hub", Description: "North Indian"}, {ID: "r2", Title: "Dosa Co"}},
		ListButtonText: "Restaurants",
		ImageURL:       "https://img/banner.png",
		ImageCaption:   "Today's offer",
		Location:       &Location{Latitude: 18.52, Longitude: 73.85, Label: "Pickup"},
	}
	out := Render(ChannelDiscord, msg)

	assert.Empty(t, out.ListItems)
	assert.Empty(t, out.ListButtonText)
	assert.Nil(t, out.Location)
	assert.Equal(t, "https://img/banner.png", out.ImageURL, "discord supports images")
	assert.Contains(t, out.Text, "1. Spice Hub - North Indian")
	assert.Contains(t, out.Text, "2. Dosa Co")
	assert.Contains(t, out.Text, "Pickup: https://maps.google.com/?q=18.52,73.85")

	voice := Render(ChannelVoice, msg)
	assert.Empty(t, voice.ImageURL)
	assert.LessOrEqual(t, utf8.RuneCountInString(voice.Text), 500)
}

func TestRender_TruncatesAfterConversion(t *testing.T) {
	caps := Capabilities{MaxButtons: 0, MaxTextLength: 40}
	out := RenderWith(caps, OutboundMessage{Text: "Select your vehicle type please", Buttons: buttons(6)})
	assert.LessOrEqual(t, utf8.RuneCountInString(out.Text), 40)
	assert.True(t, strings.HasSuffix(out.Text, "..."))
}

func TestCapabilitiesFor_Unknown(t *testing.T) {
	c := CapabilitiesFor("pager")
	assert.Equal(t, 0, c.MaxButtons)
	assert.False(t, c.SupportsImages)
	assert.Equal(t, Unlimited, CapabilitiesFor("WEB").MaxButtons)
}

type recordingSender struct {
	calls []string
}

func (r *recordingSender) SendText(_ context.Context, chatID, text string) error {
	r.calls = append(r.calls, "text:"+text)
	return nil
}
func (r *recordingSender) SendButtons(_ context.Context, chatID, text string, b []Button) error {
	r.calls = append(r.calls, fmt.Sprintf("buttons:%d", len(b)))
	return nil
}
func (r *recordingSender) SendList(_ context.Context, chatID, text, bt string, items []ListItem) error {
	r.calls = append(r.calls, fmt.Sprintf("list:%d", len(items)))
	return nil
}
func (r *recordingSender) SendImage(_ context.Context, chatID, url, caption string) error {
	r.calls = append(r.calls, "image:"+url)
	return nil
}
func (r *recordingSender) SendLocationRequest(_ context.Context, chatID, text string, loc Location) error {
	r.calls = append(r.calls, "location")
	return nil
}

func TestDeliver(t *testing.T) {
	rs := &recordingSender{}
	m := Render(ChannelTelegram, OutboundMessage{Text: "Hi", Buttons: buttons(2), ImageURL: "https://x/y.png"})
	require.NoError(t, Deliver(context.Background(), rs, "42", m))
	assert.Equal(t, []string{"buttons:2", "image:https://x/y.png"}, rs.calls)

	rs = &recordingSender{}
	require.NoError(t, Deliver(context.Background(), rs, "42", Render(ChannelSMS, OutboundMessage{Text: "Hi", Buttons: buttons(2)})))
	require.Len(t, rs.calls, 1)
	assert.True(t, strings.HasPrefix(rs.calls[0], "text:"))
}

type stubChannel struct {
	*BaseChannel
	startErr error
	sent     []string
}

func (s *stubChannel) Start(context.Context) error {
	if s.startErr != nil {
		return s.startErr
	}
	s.SetRunning(true)
	return nil
}
func (s *stubChannel) Stop(context.Context) error { s.SetRunning(false); return nil }
func (s *stubChannel) SendText(_ context.Context, _, text string) error {
	s.sent = append(s.sent, text)
	return nil
}
func (s *stubChannel) SendButtons(context.Context, string, string, []Button) error {
	return ErrUnsupported
}
func (s *stubChannel) SendList(context.Context, string, string, string, []ListItem) error {
	return ErrUnsupported
}
func (s *stubChannel) SendImage(context.Context, string, string, string) error { return ErrUnsupported }
func (s *stubChannel) SendLocationRequest(context.Context, string, string, Location) error {
	return ErrUnsupported
}

func TestManager_Lifecycle(t *testing.T) {
	ctx := context.Background()
	good := &stubChannel{BaseChannel: NewBaseChannel(ChannelVoice, nil, nil)}
	bad := &stubChannel{BaseChannel: NewBaseChannel(ChannelDiscord, nil, nil), startErr: fmt.Errorf("bad token")}

	m := NewManager()
	m.RegisterChannel(ChannelVoice, good)
	m.RegisterChannel(ChannelDiscord, bad)
	assert.Equal(t, []string{ChannelDiscord, ChannelVoice}, m.GetEnabledChannels())

	require.NoError(t, m.StartAll(ctx))
	status := m.GetStatus()
	assert.Equal(t, true, status[ChannelVoice].(map[string]interface{})["running"])
	assert.Equal(t, "bad token", status[ChannelDiscord].(map[string]interface{})["error"])

	require.NoError(t, m.Send(ctx, ChannelVoice, "call-1", OutboundMessage{Text: "hi"}))
	require.NoError(t, m.Send(ctx, ChannelVoice, "call-1", OutboundMessage{}))
	assert.Equal(t, []string{"hi"}, good.sent)
	assert.Error(t, m.Send(ctx, "sms", "x", OutboundMessage{Text: "hi"}))

	require.NoError(t, m.StopAll(ctx))
	assert.False(t, good.IsRunning())
}

func TestManager_StartAllFailsWhenNoneStart(t *testing.T) {
	m := NewManager()
	m.RegisterChannel(ChannelDiscord, &stubChannel{BaseChannel: NewBaseChannel(ChannelDiscord, nil, nil), startErr: fmt.Errorf("down")})
	assert.Error(t, m.StartAll(context.Background()))
}
