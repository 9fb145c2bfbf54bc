package whatsapp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/chatrelay/internal/channels"
)

// outboundFrame is the bridge's send command. Type selects which fields apply.
type outboundFrame struct {
	Type       string              `json:"type"`
	To         string              `json:"to"`
	Content    string              `json:"content,omitempty"`
	Buttons    []channels.Button   `json:"buttons,omitempty"`
	ButtonText string              `json:"button_text,omitempty"`
	Items      []channels.ListItem `json:"items,omitempty"`
	URL        string              `json:"url,omitempty"`
	Caption    string              `json:"caption,omitempty"`
	Latitude   float64             `json:"latitude,omitempty"`
	Longitude  float64             `json:"longitude,omitempty"`
}

func (c *Channel) write(f outboundFrame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal whatsapp frame: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("whatsapp bridge not connected")
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("send whatsapp %s: %w", f.Type, err)
	}
	return nil
}

func (c *Channel) SendText(_ context.Context, chatID, text string) error {
	return c.write(outboundFrame{Type: "message", To: chatID, Content: text})
}

func (c *Channel) SendButtons(_ context.Context, chatID, text string, buttons []channels.Button) error {
	return c.write(outboundFrame{Type: "buttons", To: chatID, Content: text, Buttons: buttons})
}

func (c *Channel) SendList(_ context.Context, chatID, text, buttonText string, items []channels.ListItem) error {
	if buttonText == "" {
		buttonText = "Choose"
	}
	return c.write(outboundFrame{Type: "list", To: chatID, Content: text, ButtonText: buttonText, Items: items})
}

func (c *Channel) SendImage(_ context.Context, chatID, url, caption string) error {
	return c.write(outboundFrame{Type: "image", To: chatID, URL: url, Caption: caption})
}

func (c *Channel) SendLocationRequest(_ context.Context, chatID, text string, loc channels.Location) error {
	if loc.IsRequest() {
		return c.write(outboundFrame{Type: "location_request", To: chatID, Content: text})
	}
	return c.write(outboundFrame{Type: "location", To: chatID, Content: text, Latitude: loc.Latitude, Longitude: loc.Longitude})
}
