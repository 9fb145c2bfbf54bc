package channels

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

const (
	ellipsis    = "..."
	minTruncate = len(ellipsis) + 1
)

// Render adapts msg to the named channel's capability profile.
func Render(channel string, msg OutboundMessage) RenderedMessage {
	out := RenderWith(CapabilitiesFor(channel), msg)
	out.Channel = channel
	return out
}

// RenderWith degrades each field the profile cannot carry into text.
// Nothing is dropped: buttons, list items, images, and locations that do not
// fit are converted to text lines, and the text limit is enforced last.
func RenderWith(caps Capabilities, msg OutboundMessage) RenderedMessage {
	out := RenderedMessage{OutboundMessage: OutboundMessage{
		Text:           msg.Text,
		ListButtonText: msg.ListButtonText,
	}}
	var extra []string

	switch {
	case len(msg.Buttons) == 0:
	case caps.MaxButtons == 0:
		extra = append(extra, numberedButtons(msg.Buttons, 1))
	case caps.MaxButtons > 0 && len(msg.Buttons) > caps.MaxButtons:
		out.Buttons = slices.Clone(msg.Buttons[:caps.MaxButtons])
		rest := msg.Buttons[caps.MaxButtons:]
		extra = append(extra, fmt.Sprintf("Reply with text for %d more:\n%s",
			len(rest), numberedButtons(rest, caps.MaxButtons+1)))
	default:
		out.Buttons = slices.Clone(msg.Buttons)
	}

	if len(msg.ListItems) > 0 {
		if caps.SupportsLists {
			out.ListItems = slices.Clone(msg.ListItems)
		} else {
			block := numberedList(msg.ListItems)
			if msg.ListButtonText != "" {
				block = msg.ListButtonText + ":\n" + block
			}
			extra = append(extra, block)
			out.ListButtonText = ""
		}
	} else {
		out.ListButtonText = ""
	}

	if msg.ImageURL != "" {
		if caps.SupportsImages {
			out.ImageURL = msg.ImageURL
			out.ImageCaption = msg.ImageCaption
		} else {
			line := msg.ImageURL
			if msg.ImageCaption != "" {
				line = msg.ImageCaption + " " + msg.ImageURL
			}
			extra = append(extra, line)
		}
	}

	if msg.Location != nil {
		if caps.SupportsLocation {
			loc := *msg.Location
			out.Location = &loc
		} else {
			extra = append(extra, locationLine(*msg.Location))
		}
	}

	if len(extra) > 0 {
		parts := make([]string, 0, len(extra)+1)
		if strings.TrimSpace(out.Text) != "" {
			parts = append(parts, out.Text)
		}
		parts = append(parts, extra...)
		out.Text = strings.Join(parts, "\n\n")
	}

	out.Text = Truncate(out.Text, caps.MaxTextLength)
	return out
}

// Truncate shortens s to at most max characters. When it cuts, it prefers
// the last space before the limit and always ends with "...".
// max < 0 means no limit; smaller positive limits are raised to minTruncate
// so a cut text keeps one character before the ellipsis.
func Truncate(s string, max int) string {
	if max < 0 {
		return s
	}
	if max < minTruncate {
		max = minTruncate
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}

	limit := max - len(ellipsis)
	cut := runes[:limit]
	if !isSpace(runes[limit]) {
		if idx := lastSpace(cut); idx > 0 {
			cut = cut[:idx]
		}
	}
	return strings.TrimRight(string(cut), " \t\n") + ellipsis
}

func isSpace(r rune) bool { return r == ' ' || r == '\n' || r == '\t' }

func lastSpace(r []rune) int {
	for i := len(r) - 1; i >= 0; i-- {
		if isSpace(r[i]) {
			return i
		}
	}
	return -1
}

func numberedButtons(buttons []Button, start int) string {
	var sb strings.Builder
	for i, b := range buttons {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(strconv.Itoa(start + i))
		sb.WriteString(". ")
		sb.WriteString(b.Title)
	}
	return sb.String()
}

func numberedList(items []ListItem) string {
	var sb strings.Builder
	for i, it := range items {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(strconv.Itoa(i + 1))
		sb.WriteString(". ")
		sb.WriteString(it.Title)
		if it.Description != "" {
			sb.WriteString(" - ")
			sb.WriteString(it.Description)
		}
	}
	return sb.String()
}

func locationLine(l Location) string {
	if l.IsRequest() {
		if l.Label != "" {
			return l.Label + ": please type your address."
		}
		return "Please type your address."
	}
	link := fmt.Sprintf("https://maps.google.com/?q=%s,%s",
		strconv.FormatFloat(l.Latitude, 'f', -1, 64),
		strconv.FormatFloat(l.Longitude, 'f', -1, 64))
	if l.Label != "" {
		return l.Label + ": " + link
	}
	return link
}
