package channels

// Button is a quick-reply option.
type Button struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// ListItem is one row of a selectable list.
type ListItem struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// Location is a point to show, or, with zero coordinates, a request for
// the user's own location.
type Location struct {
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
	Label     string  `json:"label,omitempty"`
}

// IsRequest reports whether the location asks the user to share theirs.
func (l Location) IsRequest() bool { return l.Latitude == 0 && l.Longitude == 0 }

// OutboundMessage is the canonical, channel-independent reply.
type OutboundMessage struct {
	Text           string     `json:"text,omitempty"`
	Buttons        []Button   `json:"buttons,omitempty"`
	ListItems      []ListItem `json:"listItems,omitempty"`
	ListButtonText string     `json:"listButtonText,omitempty"`
	ImageURL       string     `json:"imageUrl,omitempty"`
	ImageCaption   string     `json:"imageCaption,omitempty"`
	Location       *Location  `json:"location,omitempty"`
}

// IsEmpty reports whether there is nothing to deliver.
func (m OutboundMessage) IsEmpty() bool {
	return m.Text == "" && len(m.Buttons) == 0 && len(m.ListItems) == 0 &&
		m.ImageURL == "" && m.Location == nil
}

// RenderedMessage is an OutboundMessage adapted to one channel's capabilities.
// Every field it still carries is natively supported by that channel.
type RenderedMessage struct {
	Channel string `json:"channel"`
	OutboundMessage
}
