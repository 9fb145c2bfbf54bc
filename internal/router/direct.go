package router

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/nextlevelbuilder/chatrelay/internal/channels"
	"github.com/nextlevelbuilder/chatrelay/internal/sessions"
	"github.com/nextlevelbuilder/chatrelay/internal/tracing"
)

// Direct-answer intents are served by a business service without a flow.
const (
	IntentCheckWallet   = "check_wallet"
	IntentLoyaltyPoints = "loyalty_points"
	IntentReorder       = "reorder"
	IntentViewWishlist  = "view_wishlist"
	IntentAddWishlist   = "add_to_wishlist"
	IntentCancelOrder   = "cancel_order"
	IntentRefund        = "refund_request"
	IntentConvertPoints = "convert_points"
)

// directCall performs one business call for an authenticated user.
type directCall func(ctx context.Context, s Services, t *turn, userID string) (*BusinessResult, error)

type directIntent struct {
	available func(Services) bool
	call      directCall
	render    func(t *turn, res *BusinessResult) channels.OutboundMessage
}

var directIntents = map[string]directIntent{
	IntentCheckWallet: {
		available: func(s Services) bool { return s.Wallet != nil },
		call: func(ctx context.Context, s Services, _ *turn, uid string) (*BusinessResult, error) {
			return s.Wallet.Balance(ctx, uid)
		},
		render: valueMessage("balance", msgWalletBalance),
	},
	IntentLoyaltyPoints: {
		available: func(s Services) bool { return s.Loyalty != nil },
		call: func(ctx context.Context, s Services, _ *turn, uid string) (*BusinessResult, error) {
			return s.Loyalty.Points(ctx, uid)
		},
		render: valueMessage("points", msgLoyaltyPoints),
	},
	IntentConvertPoints: {
		available: func(s Services) bool { return s.Loyalty != nil },
		call: func(ctx context.Context, s Services, _ *turn, uid string) (*BusinessResult, error) {
			return s.Loyalty.ConvertToWallet(ctx, uid)
		},
		render: doneMessage,
	},
	IntentReorder: {
		available: func(s Services) bool { return s.Orders != nil },
		call: func(ctx context.Context, s Services, _ *turn, uid string) (*BusinessResult, error) {
			return s.Orders.Reorder(ctx, uid)
		},
		render: doneMessage,
	},
	IntentCancelOrder: {
		available: func(s Services) bool { return s.Orders != nil },
		call: func(ctx context.Context, s Services, t *turn, uid string) (*BusinessResult, error) {
			orderID := t.sess.Data.String(sessions.KeyLastOrderID)
			if orderID == "" {
				return &BusinessResult{Message: localize(t.lang, msgNoRecentOrder)}, nil
			}
			return s.Orders.CancelOrder(ctx, uid, orderID)
		},
		render: doneMessage,
	},
	IntentRefund: {
		available: func(s Services) bool { return s.Orders != nil },
		call: func(ctx context.Context, s Services, t *turn, uid string) (*BusinessResult, error) {
			orderID := t.sess.Data.String(sessions.KeyLastOrderID)
			if orderID == "" {
				return &BusinessResult{Message: localize(t.lang, msgNoRecentOrder)}, nil
			}
			return s.Orders.RequestRefund(ctx, uid, orderID, t.ev.RawText)
		},
		render: doneMessage,
	},
	IntentViewWishlist: {
		available: func(s Services) bool { return s.Wishlist != nil },
		call: func(ctx context.Context, s Services, _ *turn, uid string) (*BusinessResult, error) {
			return s.Wishlist.List(ctx, uid)
		},
		render: wishlistMessage,
	},
	IntentAddWishlist: {
		available: func(s Services) bool { return s.Wishlist != nil },
		call: func(ctx context.Context, s Services, t *turn, uid string) (*BusinessResult, error) {
			return s.Wishlist.Add(ctx, uid, wishlistItem(t.ev.RawText))
		},
		render: func(t *turn, res *BusinessResult) channels.OutboundMessage {
			if res.Message != "" {
				return channels.OutboundMessage{Text: res.Message}
			}
			return channels.OutboundMessage{Text: localize(t.lang, msgWishlistAdded)}
		},
	},
}

// IsDirectIntent reports whether name is answered without a flow.
func IsDirectIntent(name string) bool {
	_, ok := directIntents[name]
	return ok
}

// handleDirect answers a direct intent. The active flow is suspended first
// so back can resume it. Intents whose service is not configured fall
// through to the normal pipeline. Free text never interrupts a critical
// wait state and needs flow-switch confidence.
func (r *Router) handleDirect(ctx context.Context, t *turn, name string) (*Response, error) {
	di, ok := directIntents[name]
	if !t.ev.IsAction() {
		if t.hasFlow && IsCriticalState(t.active.CurrentState) {
			return nil, nil
		}
		var confidence float64
		if t.decision != nil {
			confidence = t.decision.Confidence
		}
		if !ok && t.cls != nil {
			name = t.cls.Intent
			di, ok = directIntents[name]
			confidence = t.cls.Confidence
		}
		if confidence < r.cfg.FlowSwitchThreshold {
			return nil, nil
		}
	}
	if !ok || !di.available(r.deps.Services) {
		return nil, nil
	}

	if t.hasFlow {
		if err := r.deps.Sessions.Update(ctx, t.ev.Identifier, sessions.SuspendPatch(t.active)); err != nil {
			return nil, fmt.Errorf("suspend flow: %w", err)
		}
		t.hasFlow = false
	}

	if !t.sess.Data.Bool(sessions.KeyAuthenticated) {
		return r.respond(t, HandledDirect, "", "login_required:"+name, channels.OutboundMessage{
			Text:    localize(t.lang, msgLoginRequired),
			Buttons: []channels.Button{{ID: "login", Title: localize(t.lang, msgLoginButton)}},
		}), nil
	}

	userID := t.sess.Data.String(sessions.KeyUserID)
	if userID == "" {
		userID = t.ev.Identifier
	}
	ctx, span := tracing.StartSpan(ctx, "router.direct", tracing.String("intent", name))
	res, err := call(ctx, r.cfg.CollaboratorTimeout, func(ctx context.Context) (*BusinessResult, error) {
		return di.call(ctx, r.deps.Services, t, userID)
	})
	tracing.End(span, err)
	if err != nil || res == nil {
		slog.Warn("direct answer failed", "identifier", t.ev.Identifier, "intent", name, "error", err)
		return r.respond(t, HandledDirect, "", "direct_error:"+name,
			channels.OutboundMessage{Text: localize(t.lang, msgGeneric)}), nil
	}

	msg := di.render(t, res)
	if msg.IsEmpty() {
		msg.Text = localize(t.lang, msgGeneric)
	}
	return r.respond(t, HandledDirect, "", "direct:"+name, msg), nil
}

func valueMessage(field, key string) func(*turn, *BusinessResult) channels.OutboundMessage {
	return func(t *turn, res *BusinessResult) channels.OutboundMessage {
		if v, ok := res.Data[field]; ok && res.Success {
			return channels.OutboundMessage{Text: localize(t.lang, key, v)}
		}
		if res.Message != "" {
			return channels.OutboundMessage{Text: res.Message}
		}
		return channels.OutboundMessage{Text: localize(t.lang, msgGeneric)}
	}
}

func doneMessage(t *turn, res *BusinessResult) channels.OutboundMessage {
	if res.Message != "" {
		return channels.OutboundMessage{Text: res.Message}
	}
	if res.Success {
		return channels.OutboundMessage{Text: localize(t.lang, msgRequestDone)}
	}
	return channels.OutboundMessage{Text: localize(t.lang, msgGeneric)}
}

func wishlistMessage(t *turn, res *BusinessResult) channels.OutboundMessage {
	if !res.Success {
		return doneMessage(t, res)
	}
	raw, _ := res.Data["items"].([]any)
	if len(raw) == 0 {
		return channels.OutboundMessage{Text: localize(t.lang, msgWishlistEmpty)}
	}
	msg := channels.OutboundMessage{Text: localize(t.lang, msgWishlistHeader)}
	for i, it := range raw {
		item := channels.ListItem{ID: fmt.Sprintf("wishlist_%d", i+1)}
		switch v := it.(type) {
		case string:
			item.Title = v
		case map[string]any:
			if id, ok := v["id"].(string); ok && id != "" {
				item.ID = id
			}
			item.Title, _ = v["name"].(string)
			item.Description, _ = v["description"].(string)
		}
		if item.Title != "" {
			msg.ListItems = append(msg.ListItems, item)
		}
	}
	return msg
}

var wishlistNoise = regexp.MustCompile(`(?i)\b(please|pls|add|save|put|to|in|into|my|the|wishlist|wish\s+list)\b`)

// wishlistItem strips the command words from "add paneer tikka to my wishlist".
func wishlistItem(text string) string {
	return strings.Join(strings.Fields(wishlistNoise.ReplaceAllString(text, " ")), " ")
}
